package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/models"
)

const DefaultGreeting = "Hello! I'm an AI assistant. How can I help you today?"

var (
	ErrEmptyInput = errors.New("nothing to send")
	ErrBusy       = errors.New("a reply is already in flight")
)

// Transport delivers a conversation to the relay and feeds the reply back
// through apply, one delta at a time and in arrival order.
type Transport interface {
	Exchange(ctx context.Context, conversation []models.ChatMessage, apply func(models.Delta)) error
}

// Snapshot is a copy of the session state handed to observers.
type Snapshot struct {
	Messages []models.ChatMessage
	Input    string
	Loading  bool
}

// Session owns one conversation. At most one turn is in flight at a time.
type Session struct {
	mu        sync.Mutex
	messages  []models.ChatMessage
	input     string
	loading   bool
	transport Transport
	observers []func(Snapshot)
	log       zerolog.Logger
}

type Option func(*Session)

// WithGreeting replaces the seeded assistant greeting.
func WithGreeting(text string) Option {
	return func(s *Session) {
		s.messages = []models.ChatMessage{{Role: models.RoleAssistant, Content: text}}
	}
}

// WithoutGreeting starts from an empty conversation, e.g. before RevealGreeting.
func WithoutGreeting() Option {
	return func(s *Session) { s.messages = nil }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		messages:  []models.ChatMessage{{Role: models.RoleAssistant, Content: DefaultGreeting}},
		transport: transport,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnUpdate registers fn to run after every state change.
func (s *Session) OnUpdate(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Messages() []models.ChatMessage {
	return s.Snapshot().Messages
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Send submits the current input.
func (s *Session) Send(ctx context.Context) error {
	return s.ComposeAndSend(ctx, s.Input())
}

// ComposeAndSend appends text as a user message and sends the whole
// conversation. It returns ErrEmptyInput or ErrBusy without changing any
// state when text is blank or a turn is already in flight. Loading is
// cleared on every exit path; transport errors are logged and returned.
func (s *Session) ComposeAndSend(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return ErrEmptyInput
	}
	s.messages = append(s.messages, models.ChatMessage{Role: models.RoleUser, Content: text})
	s.input = ""
	s.loading = true
	conversation := cloneMessages(s.messages)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	defer s.finishTurn()

	if err := s.transport.Exchange(ctx, conversation, s.ApplyDelta); err != nil {
		s.log.Error().Err(err).Msg("Error fetching assistant message")
		return err
	}
	return nil
}

func (s *Session) finishTurn() {
	s.mu.Lock()
	s.loading = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// ApplyDelta merges a fragment into the trailing message iff that message is
// from the assistant; otherwise it starts a new assistant message. Deltas
// without content are ignored.
func (s *Session) ApplyDelta(d models.Delta) {
	if d.Content == nil {
		return
	}

	s.mu.Lock()
	n := len(s.messages)
	if n > 0 && s.messages[n-1].Role == models.RoleAssistant {
		s.messages[n-1].Content += *d.Content
	} else {
		s.messages = append(s.messages, models.ChatMessage{Role: models.RoleAssistant, Content: *d.Content})
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// RevealGreeting types text into the conversation word by word.
func (s *Session) RevealGreeting(ctx context.Context, text string, delay time.Duration) error {
	for i, w := range models.SplitWords(text) {
		if i > 0 {
			if err := wait(ctx, delay); err != nil {
				return err
			}
		}
		s.ApplyDelta(models.TextDelta(w))
	}
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Messages: cloneMessages(s.messages),
		Input:    s.input,
		Loading:  s.loading,
	}
}

func (s *Session) notify(snap Snapshot) {
	s.mu.Lock()
	observers := append([]func(Snapshot){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func cloneMessages(in []models.ChatMessage) []models.ChatMessage {
	return append([]models.ChatMessage(nil), in...)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
