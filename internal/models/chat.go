package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is only produced by the relay for its fixed instruction.
	RoleSystem Role = "system"
)

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Stream   *bool         `json:"stream,omitempty"`
}

// Delta is one incremental piece of assistant text. A nil Content means the
// upstream chunk carried no text at all.
type Delta struct {
	Content *string
}

// TextDelta builds a delta carrying s, including the empty string.
func TextDelta(s string) Delta {
	return Delta{Content: &s}
}

// Text returns the fragment, or "" when the delta is empty.
func (d Delta) Text() string {
	if d.Content == nil {
		return ""
	}
	return *d.Content
}

var ErrInvalidRequestBody = errors.New("invalid request body")

// DecodeChatRequest parses a chat request and rejects bodies whose messages
// field is missing, null, not an array, or holds unknown roles, and bodies
// with anything but whitespace after the JSON object.
func DecodeChatRequest(r io.Reader) (*ChatRequest, error) {
	var raw struct {
		Messages json.RawMessage `json:"messages"`
		Stream   *bool           `json:"stream"`
	}
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, ErrInvalidRequestBody
	}
	// Exactly one JSON value.
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		return nil, ErrInvalidRequestBody
	}

	trimmed := bytes.TrimSpace(raw.Messages)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrInvalidRequestBody
	}

	var messages []ChatMessage
	if err := json.Unmarshal(trimmed, &messages); err != nil {
		return nil, ErrInvalidRequestBody
	}
	for _, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return nil, ErrInvalidRequestBody
		}
	}

	return &ChatRequest{Messages: messages, Stream: raw.Stream}, nil
}
