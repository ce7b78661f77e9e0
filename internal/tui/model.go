package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatrelay/internal/client"
	"chatrelay/internal/models"
)

// snapshotMsg carries a session update into the bubbletea loop.
type snapshotMsg client.Snapshot

type sendDoneMsg struct {
	text string
	err  error
}

type model struct {
	ctx       context.Context
	session   *client.Session
	snap      client.Snapshot
	viewport  viewport.Model
	textInput textinput.Model
	spinner   spinner.Model
	err       error
	ready     bool

	userStyle      lipgloss.Style
	assistantStyle lipgloss.Style
	errStyle       lipgloss.Style
	hintStyle      lipgloss.Style
}

func newModel(ctx context.Context, session *client.Session) model {
	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.Focus()
	ti.CharLimit = 4000
	ti.Width = 50

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		ctx:            ctx,
		session:        session,
		snap:           session.Snapshot(),
		textInput:      ti,
		spinner:        sp,
		userStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
		assistantStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		errStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		hintStyle:      lipgloss.NewStyle().Faint(true),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			// One turn at a time. The snapshot may lag behind the session.
			if m.snap.Loading || m.session.Loading() {
				return m, nil
			}
			text := m.textInput.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.textInput.SetValue("")
			m.err = nil
			session, ctx := m.session, m.ctx
			return m, func() tea.Msg {
				return sendDoneMsg{text: text, err: session.ComposeAndSend(ctx, text)}
			}
		}

	case snapshotMsg:
		m.snap = client.Snapshot(msg)
		m.refresh()
		return m, nil

	case sendDoneMsg:
		if errors.Is(msg.err, client.ErrBusy) && m.textInput.Value() == "" {
			m.textInput.SetValue(msg.text)
			m.textInput.CursorEnd()
		}
		if msg.err != nil && !errors.Is(msg.err, client.ErrEmptyInput) && !errors.Is(msg.err, client.ErrBusy) {
			m.err = msg.err
		}
		m.snap = m.session.Snapshot()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		footerHeight := lipgloss.Height(m.footerView())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - footerHeight
		}
		m.textInput.Width = msg.Width - 4
		m.refresh()
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m model) transcript() string {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	body := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, msg := range m.snap.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := m.assistantStyle.Render("Assistant")
		if msg.Role == models.RoleUser {
			label = m.userStyle.Render("You")
		}
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(body.Render(msg.Content))
	}
	return b.String()
}

func (m model) footerView() string {
	status := m.hintStyle.Render("enter to send, esc to quit")
	switch {
	case m.snap.Loading:
		status = m.spinner.View() + m.hintStyle.Render(" waiting for the assistant...")
	case m.err != nil:
		status = m.errStyle.Render("Error: " + m.err.Error())
	}
	return fmt.Sprintf("%s\n%s", status, m.textInput.View())
}

func (m model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return fmt.Sprintf("%s\n%s", m.viewport.View(), m.footerView())
}
