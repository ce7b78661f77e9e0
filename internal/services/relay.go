package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/models"
)

// Provider is an upstream chat-completion API. The messages it receives
// already start with the relay's system instruction.
type Provider interface {
	CreateCompletion(ctx context.Context, messages []models.ChatMessage) (string, error)
	CreateCompletionStream(ctx context.Context, messages []models.ChatMessage) (DeltaStream, error)
}

// DeltaStream yields completion fragments in provider order. Recv returns
// io.EOF once the provider signals completion.
type DeltaStream interface {
	Recv() (models.Delta, error)
	Close() error
}

var ErrEmptyCompletion = errors.New("no response message")

// UpstreamError wraps any failure talking to the provider.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("upstream %s: %v", e.Op, e.Err) }

func (e *UpstreamError) Unwrap() error { return e.Err }

type RelayService struct {
	provider     Provider
	systemPrompt string
	timeout      time.Duration
	log          zerolog.Logger
}

func NewRelayService(provider Provider, systemPrompt string, timeout time.Duration, log zerolog.Logger) *RelayService {
	return &RelayService{
		provider:     provider,
		systemPrompt: systemPrompt,
		timeout:      timeout,
		log:          log,
	}
}

// WithSystemInstruction returns a new conversation with the fixed system
// message at index 0 followed by messages in their original order.
func (s *RelayService) WithSystemInstruction(messages []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(messages)+1)
	out = append(out, models.ChatMessage{Role: models.RoleSystem, Content: s.systemPrompt})
	return append(out, messages...)
}

func (s *RelayService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Complete issues a single blocking completion and returns its text.
func (s *RelayService) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	text, err := s.provider.CreateCompletion(ctx, s.WithSystemInstruction(messages))
	if err != nil {
		return "", &UpstreamError{Op: "completion", Err: err}
	}
	if text == "" {
		return "", &UpstreamError{Op: "completion", Err: ErrEmptyCompletion}
	}

	s.log.Debug().
		Int("messages", len(messages)).
		Int("chars", len(text)).
		Dur("took", time.Since(start)).
		Msg("completion received")
	return text, nil
}

// OpenStream starts a streaming completion. The returned stream is bound to
// ctx and the upstream timeout; closing it releases both.
func (s *RelayService) OpenStream(ctx context.Context, messages []models.ChatMessage) (DeltaStream, error) {
	ctx, cancel := s.withTimeout(ctx)

	stream, err := s.provider.CreateCompletionStream(ctx, s.WithSystemInstruction(messages))
	if err != nil {
		cancel()
		return nil, &UpstreamError{Op: "stream", Err: err}
	}
	return &boundStream{stream: stream, cancel: cancel}, nil
}

type boundStream struct {
	stream DeltaStream
	cancel context.CancelFunc
}

func (b *boundStream) Recv() (models.Delta, error) {
	d, err := b.stream.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		return d, &UpstreamError{Op: "stream", Err: err}
	}
	return d, err
}

func (b *boundStream) Close() error {
	defer b.cancel()
	return b.stream.Close()
}
