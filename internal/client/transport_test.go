package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/models"
)

// relayStub decodes the chat request and records whether streaming was asked for.
func relayStub(t *testing.T, gotStream *atomic.Bool, reply func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if gotStream != nil && req.Stream != nil {
			gotStream.Store(*req.Stream)
		}
		reply(w)
	}))
}

func collect(deltas *[]string) func(models.Delta) {
	return func(d models.Delta) {
		if d.Content != nil {
			*deltas = append(*deltas, *d.Content)
		}
	}
}

func TestAtomicTransport(t *testing.T) {
	var gotStream atomic.Bool
	gotStream.Store(true)
	srv := relayStub(t, &gotStream, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Hi! How can I help?"))
	})
	defer srv.Close()

	tr := NewAtomicTransport(srv.URL)
	defer tr.Close()

	var deltas []string
	err := tr.Exchange(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}, collect(&deltas))

	require.NoError(t, err)
	assert.False(t, gotStream.Load())
	assert.Equal(t, []string{"Hi! How can I help?"}, deltas)
}

func TestAtomicTransport_KeepsSurroundingWhitespace(t *testing.T) {
	reply := "  indented code:\n    x := 1\n"
	srv := relayStub(t, nil, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(reply))
	})
	defer srv.Close()

	tr := NewAtomicTransport(srv.URL)
	defer tr.Close()

	s := NewSession(tr, WithoutGreeting())
	require.NoError(t, s.ComposeAndSend(context.Background(), "show me"))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.ChatMessage{Role: models.RoleAssistant, Content: reply}, msgs[1])
}

func TestAtomicTransport_ErrorStatus(t *testing.T) {
	srv := relayStub(t, nil, func(w http.ResponseWriter) {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	})
	defer srv.Close()

	tr := NewAtomicTransport(srv.URL)
	defer tr.Close()

	var deltas []string
	err := tr.Exchange(context.Background(), nil, collect(&deltas))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Contains(t, statusErr.Body, "Internal server error")
	assert.Empty(t, deltas)
}

func TestStreamTransport(t *testing.T) {
	var gotStream atomic.Bool
	srv := relayStub(t, &gotStream, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rc := http.NewResponseController(w)
		for _, part := range []string{"He", "llo"} {
			_, _ = w.Write([]byte(part))
			_ = rc.Flush()
		}
	})
	defer srv.Close()

	tr := NewStreamTransport(srv.URL)
	defer tr.Close()

	s := NewSession(tr, WithoutGreeting())
	var last Snapshot
	s.OnUpdate(func(snap Snapshot) { last = snap })

	require.NoError(t, s.ComposeAndSend(context.Background(), "greet me"))

	assert.True(t, gotStream.Load())
	require.Len(t, last.Messages, 2)
	assert.Equal(t, models.ChatMessage{Role: models.RoleAssistant, Content: "Hello"}, last.Messages[1])
	assert.False(t, last.Loading)
}

func TestStreamTransport_AppliesEmptyDeltaFirst(t *testing.T) {
	srv := relayStub(t, nil, func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	tr := NewStreamTransport(srv.URL)
	defer tr.Close()

	var deltas []string
	require.NoError(t, tr.Exchange(context.Background(), nil, collect(&deltas)))
	assert.Equal(t, []string{""}, deltas)
}

func TestStreamTransport_TruncatedBody(t *testing.T) {
	srv := relayStub(t, nil, func(w http.ResponseWriter) {
		_, _ = w.Write([]byte("partial"))
		_ = http.NewResponseController(w).Flush()
		panic(http.ErrAbortHandler)
	})
	defer srv.Close()

	tr := NewStreamTransport(srv.URL)
	defer tr.Close()

	s := NewSession(tr, WithoutGreeting())
	err := s.ComposeAndSend(context.Background(), "go")

	require.Error(t, err)
	assert.False(t, s.Loading())
	msgs := s.Messages()
	assert.Equal(t, "partial", msgs[len(msgs)-1].Content)
}

func TestStreamTransport_ErrorStatus(t *testing.T) {
	srv := relayStub(t, nil, func(w http.ResponseWriter) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
	})
	defer srv.Close()

	tr := NewStreamTransport(srv.URL)
	defer tr.Close()

	var deltas []string
	err := tr.Exchange(context.Background(), nil, collect(&deltas))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
	assert.Empty(t, deltas)
}

func TestReadFragments_SplitRunes(t *testing.T) {
	text := "héllo wörld 👋"

	var deltas []string
	err := readFragments(iotest.OneByteReader(strings.NewReader(text)), collect(&deltas))

	require.NoError(t, err)
	assert.Equal(t, text, strings.Join(deltas, ""))
	for _, d := range deltas {
		assert.NotContains(t, d, "\uFFFD")
	}
}

func TestReadFragments_InvalidTail(t *testing.T) {
	var deltas []string
	err := readFragments(strings.NewReader("ok\xe2\x82"), collect(&deltas))

	require.NoError(t, err)
	assert.Equal(t, "ok\uFFFD", strings.Join(deltas, ""))
}

func TestReadFragments_ReadError(t *testing.T) {
	var deltas []string
	err := readFragments(iotest.TimeoutReader(strings.NewReader("abc")), collect(&deltas))

	assert.ErrorIs(t, err, iotest.ErrTimeout)
	assert.Equal(t, []string{"abc"}, deltas)
}
