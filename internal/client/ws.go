package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"chatrelay/internal/models"
)

// WSTransport streams replies over the relay's WebSocket endpoint. Each
// exchange uses its own connection.
type WSTransport struct {
	dialer *websocket.Dialer
	url    string
}

func NewWSTransport(url string) *WSTransport {
	return &WSTransport{dialer: websocket.DefaultDialer, url: url}
}

// RelayError is an error frame sent by the relay.
type RelayError struct{ Message string }

func (e *RelayError) Error() string { return "relay error: " + e.Message }

func (t *WSTransport) Exchange(ctx context.Context, conversation []models.ChatMessage, apply func(models.Delta)) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteJSON(models.ChatRequest{Messages: conversation}); err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}

	started := false
	for {
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read reply stream: %w", err)
		}

		switch frame.Type {
		case models.FrameDelta:
			if !started {
				apply(models.TextDelta(""))
				started = true
			}
			apply(models.TextDelta(frame.Content))
		case models.FrameDone:
			if !started {
				apply(models.TextDelta(""))
			}
			return nil
		case models.FrameError:
			return &RelayError{Message: frame.Error}
		default:
			return errors.New("unexpected frame type " + frame.Type)
		}
	}
}
