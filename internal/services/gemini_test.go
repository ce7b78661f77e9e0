package services

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/models"
)

func contentText(t *testing.T, c *genai.Content) string {
	t.Helper()
	require.Len(t, c.Parts, 1)
	text, ok := c.Parts[0].(genai.Text)
	require.True(t, ok)
	return string(text)
}

func TestGeminiConversation_GreetingMovesToInstruction(t *testing.T) {
	system, history, last, err := geminiConversation([]models.ChatMessage{
		{Role: models.RoleSystem, Content: "Be brief."},
		{Role: models.RoleAssistant, Content: "Hello! How can I help?"},
		{Role: models.RoleUser, Content: "hi"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Be brief.\n\nYou opened this conversation by saying: Hello! How can I help?", system)
	assert.Empty(t, history)
	assert.Equal(t, "hi", last)
}

func TestGeminiConversation_AlternatesRoles(t *testing.T) {
	_, history, last, err := geminiConversation([]models.ChatMessage{
		{Role: models.RoleSystem, Content: "Be brief."},
		{Role: models.RoleAssistant, Content: "Hello!"},
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "answer"},
		{Role: models.RoleUser, Content: "lost turn"},
		{Role: models.RoleUser, Content: "retry"},
	})

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "first", contentText(t, history[0]))
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, "answer", contentText(t, history[1]))
	assert.Equal(t, "lost turn\n\nretry", last)
}

func TestGeminiConversation_MergesHistoryTurns(t *testing.T) {
	_, history, last, err := geminiConversation([]models.ChatMessage{
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleUser, Content: "b"},
		{Role: models.RoleAssistant, Content: "c"},
		{Role: models.RoleAssistant, Content: "d"},
		{Role: models.RoleUser, Content: "e"},
	})

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "a\n\nb", contentText(t, history[0]))
	assert.Equal(t, "c\n\nd", contentText(t, history[1]))
	assert.Equal(t, "e", last)
}

func TestGeminiConversation_RequiresFinalUserTurn(t *testing.T) {
	tests := map[string][]models.ChatMessage{
		"empty":          nil,
		"only system":    {{Role: models.RoleSystem, Content: "x"}},
		"only greeting":  {{Role: models.RoleSystem, Content: "x"}, {Role: models.RoleAssistant, Content: "hi"}},
		"ends assistant": {{Role: models.RoleUser, Content: "q"}, {Role: models.RoleAssistant, Content: "a"}},
	}
	for name, messages := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := geminiConversation(messages)
			assert.Error(t, err)
		})
	}
}

func TestGeminiProvider_Session(t *testing.T) {
	p, err := NewGeminiProvider(context.Background(), "test-key", "gemini-2.0-flash", 0.6)
	require.NoError(t, err)
	defer p.Close()

	cs, part, err := p.session([]models.ChatMessage{
		{Role: models.RoleSystem, Content: "Be brief."},
		{Role: models.RoleAssistant, Content: "Hello!"},
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleUser, Content: "second"},
	})

	require.NoError(t, err)
	assert.Empty(t, cs.History)
	assert.Equal(t, genai.Text("first\n\nsecond"), part)
}
