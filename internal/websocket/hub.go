package websocket

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/models"
	"chatrelay/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type streamOpener interface {
	OpenStream(ctx context.Context, messages []models.ChatMessage) (services.DeltaStream, error)
}

// Hub serves the streaming chat relay over WebSocket connections and keeps
// track of them so they can be closed on shutdown.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*websocket.Conn
	relay       streamOpener
	log         zerolog.Logger
}

func NewHub(relay streamOpener, log zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]*websocket.Conn),
		relay:       relay,
		log:         log,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	id := uuid.New()
	h.registerConnection(id, conn)

	go h.serve(id, conn)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll closes every open connection; their in-flight turns are cancelled.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.connections {
		conn.Close()
		delete(h.connections, id)
	}
}

func (h *Hub) registerConnection(id uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[id] = conn
	h.log.Info().Str("conn_id", id.String()).Int("total", len(h.connections)).Msg("WebSocket connected")
}

func (h *Hub) unregisterConnection(id uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()
	delete(h.connections, id)
	h.log.Info().Str("conn_id", id.String()).Msg("WebSocket disconnected")
}

// serve handles one turn at a time. Reads happen on a separate goroutine so a
// disconnect cancels the turn in progress.
func (h *Hub) serve(id uuid.UUID, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer h.unregisterConnection(id, conn)
	defer cancel()

	requests := make(chan []byte)
	go func() {
		defer close(requests)
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Warn().Err(err).Str("conn_id", id.String()).Msg("WebSocket read error")
				}
				return
			}
			select {
			case requests <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	log := h.log.With().Str("conn_id", id.String()).Logger()
	for data := range requests {
		if err := h.relayTurn(ctx, conn, data, log); err != nil {
			log.Info().Err(err).Msg("WebSocket write failed")
			return
		}
	}
}

// relayTurn streams one reply. The returned error is only set when the
// connection can no longer be written to.
func (h *Hub) relayTurn(ctx context.Context, conn *websocket.Conn, data []byte, log zerolog.Logger) error {
	req, err := models.DecodeChatRequest(bytes.NewReader(data))
	if err != nil {
		return conn.WriteJSON(models.WSFrame{Type: models.FrameError, Error: "Invalid request body"})
	}

	stream, err := h.relay.OpenStream(ctx, req.Messages)
	if err != nil {
		log.Error().Err(err).Int("messages", len(req.Messages)).Msg("chat stream failed to open")
		return conn.WriteJSON(models.WSFrame{Type: models.FrameError, Error: "Internal server error"})
	}
	defer stream.Close()

	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return conn.WriteJSON(models.WSFrame{Type: models.FrameDone})
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("chat stream failed mid-response")
			return conn.WriteJSON(models.WSFrame{Type: models.FrameError, Error: "Internal server error"})
		}
		if delta.Content == nil {
			continue
		}
		if err := conn.WriteJSON(models.WSFrame{Type: models.FrameDelta, Content: *delta.Content}); err != nil {
			return err
		}
	}
}
