package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

type streamState int

const (
	stateIdle streamState = iota
	stateStarted
	stateStreaming
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStarted:
		return "started"
	case stateStreaming:
		return "streaming"
	case stateClosed:
		return "closed"
	}
	return fmt.Sprintf("streamState(%d)", int(s))
}

var errStreamState = errors.New("invalid stream transition")

// streamWriter relays fragments to a chunked response. It only moves forward:
// idle -> started -> streaming -> closed.
type streamWriter struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	state streamState
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	return &streamWriter{w: w, rc: http.NewResponseController(w)}
}

// Start sends the response headers and flushes them to the caller.
func (s *streamWriter) Start() error {
	if s.state != stateIdle {
		return fmt.Errorf("%w: start from %s", errStreamState, s.state)
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.state = stateStarted
	return s.rc.Flush()
}

// Write forwards one fragment and flushes it immediately. Empty fragments
// are accepted and produce no bytes on the wire.
func (s *streamWriter) Write(fragment string) error {
	if s.state != stateStarted && s.state != stateStreaming {
		return fmt.Errorf("%w: write in %s", errStreamState, s.state)
	}
	s.state = stateStreaming
	if _, err := io.WriteString(s.w, fragment); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *streamWriter) Close() {
	s.state = stateClosed
}
