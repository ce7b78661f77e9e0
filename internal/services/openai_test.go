package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/models"
)

type upstreamRequest struct {
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	Stream           bool    `json:"stream"`
	Messages         []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fakeOpenAI(t *testing.T, handle func(w http.ResponseWriter, req upstreamRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req upstreamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handle(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_CreateCompletion(t *testing.T) {
	var got upstreamRequest
	srv := fakeOpenAI(t, func(w http.ResponseWriter, req upstreamRequest) {
		got = req
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"cmpl-1","object":"chat.completion","model":"gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`)
	})

	p := NewOpenAIProvider("test-key", srv.URL, "gpt-4o-mini", 0.6, 1.2)
	text, err := p.CreateCompletion(context.Background(), []models.ChatMessage{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, "hi", text)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.6, got.Temperature, 1e-6)
	assert.InDelta(t, 1.2, got.FrequencyPenalty, 1e-6)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "sys", got.Messages[0].Content)
}

func TestOpenAIProvider_CreateCompletion_NoChoices(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, req upstreamRequest) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"cmpl-1","object":"chat.completion","choices":[]}`)
	})

	p := NewOpenAIProvider("test-key", srv.URL, "gpt-4o-mini", 0.6, 1.2)
	_, err := p.CreateCompletion(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "x"}})

	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIProvider_CreateCompletion_UpstreamError(t *testing.T) {
	p := NewOpenAIProvider("wrong-key", fakeOpenAI(t, nil).URL, "gpt-4o-mini", 0.6, 1.2)

	_, err := p.CreateCompletion(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "x"}})

	assert.Error(t, err)
}

func TestOpenAIProvider_CreateCompletionStream(t *testing.T) {
	var got upstreamRequest
	srv := fakeOpenAI(t, func(w http.ResponseWriter, req upstreamRequest) {
		got = req
		w.Header().Set("Content-Type", "text/event-stream")
		chunk := `{"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{%s}}]}`
		fmt.Fprintf(w, "data: "+chunk+"\n\n", `"role":"assistant"`)
		fmt.Fprintf(w, "data: "+chunk+"\n\n", `"content":"He"`)
		fmt.Fprintf(w, "data: "+chunk+"\n\n", `"content":"llo"`)
		io.WriteString(w, `data: {"id":"c","object":"chat.completion.chunk","choices":[]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})

	p := NewOpenAIProvider("test-key", srv.URL, "gpt-4o-mini", 0.6, 1.2)
	stream, err := p.CreateCompletionStream(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "x"}})
	require.NoError(t, err)
	defer stream.Close()

	var deltas []models.Delta
	for {
		d, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		deltas = append(deltas, d)
	}

	assert.True(t, got.Stream)
	require.Len(t, deltas, 4)
	require.NotNil(t, deltas[0].Content, "role-only chunk is a present empty fragment")
	assert.Equal(t, "", deltas[0].Text())
	assert.Equal(t, "He", deltas[1].Text())
	assert.Equal(t, "llo", deltas[2].Text())
	assert.Nil(t, deltas[3].Content, "usage-only chunk carries no fragment")
}
