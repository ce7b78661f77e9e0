package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"chatrelay/internal/client"
)

// Options controls how the chat screen starts.
type Options struct {
	// RevealGreeting types Greeting into an empty session word by word.
	RevealGreeting bool
	Greeting       string
	WordDelay      time.Duration
}

// Run drives session from a full-screen terminal UI until the user quits.
func Run(ctx context.Context, session *client.Session, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(ctx, session), tea.WithAltScreen(), tea.WithContext(ctx))
	session.OnUpdate(func(s client.Snapshot) { p.Send(snapshotMsg(s)) })

	if opts.RevealGreeting {
		go func() {
			_ = session.RevealGreeting(ctx, opts.Greeting, opts.WordDelay)
		}()
	}

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run chat ui: %w", err)
	}
	return nil
}
