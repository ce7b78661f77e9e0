package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"chatrelay/internal/models"
)

// GeminiProvider relays conversations to Gemini through a chat session.
type GeminiProvider struct {
	client *genai.Client
	model  string
	temp   float32
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, temperature float32) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, temp: temperature}, nil
}

func (p *GeminiProvider) Close() {
	p.client.Close()
}

// session maps the conversation onto a Gemini chat and returns the part to
// send as the final user turn.
func (p *GeminiProvider) session(messages []models.ChatMessage) (*genai.ChatSession, genai.Part, error) {
	system, history, last, err := geminiConversation(messages)
	if err != nil {
		return nil, nil, err
	}

	model := p.client.GenerativeModel(p.model)
	// The Gemini SDK exposes no frequency penalty.
	model.SetTemperature(p.temp)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history
	return cs, genai.Text(last), nil
}

type geminiTurn struct {
	role  string
	parts []string
}

// geminiConversation reshapes messages into what Gemini accepts: history
// opens with a user turn and roles alternate. System messages and assistant
// turns that precede the first user turn move into the system instruction;
// consecutive turns from the same role are merged.
func geminiConversation(messages []models.ChatMessage) (system string, history []*genai.Content, last string, err error) {
	var instruction []string
	var turns []geminiTurn
	for _, m := range messages {
		switch {
		case m.Role == models.RoleSystem:
			instruction = append(instruction, m.Content)
		case m.Role == models.RoleAssistant && len(turns) == 0:
			instruction = append(instruction, "You opened this conversation by saying: "+m.Content)
		default:
			role := geminiRole(m.Role)
			if n := len(turns); n > 0 && turns[n-1].role == role {
				turns[n-1].parts = append(turns[n-1].parts, m.Content)
				continue
			}
			turns = append(turns, geminiTurn{role: role, parts: []string{m.Content}})
		}
	}

	if len(turns) == 0 || turns[len(turns)-1].role != "user" {
		return "", nil, "", errors.New("conversation must end with a user message")
	}

	for _, t := range turns[:len(turns)-1] {
		history = append(history, &genai.Content{
			Role:  t.role,
			Parts: []genai.Part{genai.Text(strings.Join(t.parts, "\n\n"))},
		})
	}
	final := turns[len(turns)-1]
	return strings.Join(instruction, "\n\n"), history, strings.Join(final.parts, "\n\n"), nil
}

func geminiRole(r models.Role) string {
	if r == models.RoleAssistant {
		return "model"
	}
	return "user"
}

func (p *GeminiProvider) CreateCompletion(ctx context.Context, messages []models.ChatMessage) (string, error) {
	cs, last, err := p.session(messages)
	if err != nil {
		return "", err
	}
	resp, err := cs.SendMessage(ctx, last)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return extractText(resp), nil
}

func (p *GeminiProvider) CreateCompletionStream(ctx context.Context, messages []models.ChatMessage) (DeltaStream, error) {
	cs, last, err := p.session(messages)
	if err != nil {
		return nil, err
	}
	return &geminiStream{iter: cs.SendMessageStream(ctx, last)}, nil
}

type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *geminiStream) Recv() (models.Delta, error) {
	resp, err := s.iter.Next()
	if errors.Is(err, iterator.Done) {
		return models.Delta{}, io.EOF
	}
	if err != nil {
		return models.Delta{}, fmt.Errorf("Gemini API error: %w", err)
	}
	return models.TextDelta(extractText(resp)), nil
}

// Close is a no-op; the iterator stops when its context is cancelled.
func (s *geminiStream) Close() error { return nil }

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
