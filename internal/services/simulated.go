package services

import (
	"context"
	"io"
	"time"

	"chatrelay/internal/models"
)

const simulatedReply = "This is a simulated reply. No language model was contacted."

// SimulatedProvider answers locally after a fixed delay, revealing its reply
// one word at a time when streamed.
type SimulatedProvider struct {
	Reply     string
	Delay     time.Duration
	WordDelay time.Duration
}

func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{
		Reply:     simulatedReply,
		Delay:     500 * time.Millisecond,
		WordDelay: 60 * time.Millisecond,
	}
}

func (p *SimulatedProvider) CreateCompletion(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if err := sleepCtx(ctx, p.Delay); err != nil {
		return "", err
	}
	return p.Reply, nil
}

func (p *SimulatedProvider) CreateCompletionStream(ctx context.Context, messages []models.ChatMessage) (DeltaStream, error) {
	if err := sleepCtx(ctx, p.Delay); err != nil {
		return nil, err
	}
	return &wordStream{ctx: ctx, words: models.SplitWords(p.Reply), delay: p.WordDelay}, nil
}

type wordStream struct {
	ctx   context.Context
	words []string
	delay time.Duration
	sent  int
}

func (s *wordStream) Recv() (models.Delta, error) {
	if s.sent >= len(s.words) {
		return models.Delta{}, io.EOF
	}
	if s.sent > 0 {
		if err := sleepCtx(s.ctx, s.delay); err != nil {
			return models.Delta{}, err
		}
	}
	w := s.words[s.sent]
	s.sent++
	return models.TextDelta(w), nil
}

func (s *wordStream) Close() error { return nil }

func sleepCtx(ctx context.Context, d time.Duration) error {
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
