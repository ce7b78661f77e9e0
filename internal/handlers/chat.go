package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"chatrelay/internal/middleware"
	"chatrelay/internal/models"
	"chatrelay/internal/services"
)

const (
	msgInvalidRequestBody = "Invalid request body"
	msgInternalError      = "Internal server error"
)

type chatRelay interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
	OpenStream(ctx context.Context, messages []models.ChatMessage) (services.DeltaStream, error)
}

type ChatHandler struct {
	relay     chatRelay
	streaming bool
	log       zerolog.Logger
}

// NewChatHandler builds the /chat handler. streaming selects the default
// response mode; a request may override it with its "stream" field.
func NewChatHandler(relay chatRelay, streaming bool, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{relay: relay, streaming: streaming, log: log}
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	req, err := models.DecodeChatRequest(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, msgInvalidRequestBody)
		return
	}

	streaming := h.streaming
	if req.Stream != nil {
		streaming = *req.Stream
	}

	if streaming {
		h.stream(w, r, req.Messages)
		return
	}

	reply, err := h.relay.Complete(r.Context(), req.Messages)
	if err != nil {
		h.logger(r).Error().Err(err).Int("messages", len(req.Messages)).Msg("chat completion failed")
		writeText(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	writeText(w, http.StatusOK, reply)
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, messages []models.ChatMessage) {
	log := h.logger(r)

	stream, err := h.relay.OpenStream(r.Context(), messages)
	if err != nil {
		log.Error().Err(err).Int("messages", len(messages)).Msg("chat stream failed to open")
		writeText(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	defer stream.Close()

	rw := newStreamWriter(w)
	if err := rw.Start(); err != nil {
		log.Warn().Err(err).Msg("chat stream: client gone before first flush")
		return
	}

	fragments := 0
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			rw.Close()
			log.Debug().Int("fragments", fragments).Msg("chat stream completed")
			return
		}
		if err != nil {
			if r.Context().Err() != nil {
				log.Info().Int("fragments", fragments).Msg("chat stream cancelled by client")
				return
			}
			// Headers are already sent; abort so the caller sees a truncated
			// body rather than a clean end of stream.
			log.Error().Err(err).Int("fragments", fragments).Msg("chat stream failed mid-response")
			panic(http.ErrAbortHandler)
		}
		if delta.Content == nil {
			continue
		}
		if err := rw.Write(*delta.Content); err != nil {
			log.Info().Err(err).Int("fragments", fragments).Msg("chat stream: client disconnected")
			return
		}
		fragments++
	}
}

func (h *ChatHandler) logger(r *http.Request) *zerolog.Logger {
	l := h.log.With().Str("request_id", middleware.GetRequestID(r.Context())).Logger()
	return &l
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
