package services

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"chatrelay/internal/models"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	client           *openai.Client
	model            string
	temperature      float32
	frequencyPenalty float32
}

func NewOpenAIProvider(apiKey, baseURL, model string, temperature, frequencyPenalty float32) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:           openai.NewClientWithConfig(cfg),
		model:            model,
		temperature:      temperature,
		frequencyPenalty: frequencyPenalty,
	}
}

func (p *OpenAIProvider) request(messages []models.ChatMessage) openai.ChatCompletionRequest {
	omsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		omsgs = append(omsgs, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:            p.model,
		Messages:         omsgs,
		Temperature:      p.temperature,
		FrequencyPenalty: p.frequencyPenalty,
	}
}

func (p *OpenAIProvider) CreateCompletion(ctx context.Context, messages []models.ChatMessage) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(messages))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) CreateCompletionStream(ctx context.Context, messages []models.ChatMessage) (DeltaStream, error) {
	req := p.request(messages)
	req.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (models.Delta, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return models.Delta{}, io.EOF
	}
	if err != nil {
		return models.Delta{}, err
	}
	// Usage-only chunks carry no choices.
	if len(resp.Choices) == 0 {
		return models.Delta{}, nil
	}
	return models.TextDelta(resp.Choices[0].Delta.Content), nil
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
