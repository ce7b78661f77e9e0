package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"resty.dev/v3"

	"chatrelay/internal/models"
)

const readChunkSize = 4 * 1024

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// AtomicTransport waits for the whole reply and applies it as one delta.
type AtomicTransport struct {
	client *resty.Client
	url    string
}

func NewAtomicTransport(url string) *AtomicTransport {
	return &AtomicTransport{client: resty.New(), url: url}
}

func (t *AtomicTransport) Exchange(ctx context.Context, conversation []models.ChatMessage, apply func(models.Delta)) error {
	stream := false
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(models.ChatRequest{Messages: conversation, Stream: &stream}).
		Post(t.url)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	if resp.IsError() {
		return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}

	apply(models.TextDelta(string(resp.Bytes())))
	return nil
}

func (t *AtomicTransport) Close() error {
	return t.client.Close()
}

// StreamTransport reads the reply body as it arrives and applies each
// decoded chunk as a delta.
type StreamTransport struct {
	client *resty.Client
	url    string
}

func NewStreamTransport(url string) *StreamTransport {
	return &StreamTransport{client: resty.New(), url: url}
}

func (t *StreamTransport) Exchange(ctx context.Context, conversation []models.ChatMessage, apply func(models.Delta)) error {
	stream := true
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept-Encoding", "identity").
		SetBody(models.ChatRequest{Messages: conversation, Stream: &stream}).
		SetDoNotParseResponse(true).
		Post(t.url)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return errors.New("relay returned an empty response")
	}
	body := resp.RawResponse.Body
	defer body.Close()

	if resp.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(body, readChunkSize))
		return &StatusError{Code: resp.StatusCode(), Body: string(msg)}
	}

	// The reply exists as soon as the relay starts streaming.
	apply(models.TextDelta(""))
	return readFragments(body, apply)
}

func (t *StreamTransport) Close() error {
	return t.client.Close()
}

// readFragments applies every chunk read from r, carrying runes that are
// split across chunk boundaries over to the next chunk.
func readFragments(r io.Reader, apply func(models.Delta)) error {
	var dec utf8Decoder
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if text := dec.decode(buf[:n]); text != "" {
				apply(models.TextDelta(text))
			}
		}
		if errors.Is(err, io.EOF) {
			if tail := dec.flush(); tail != "" {
				apply(models.TextDelta(tail))
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read reply stream: %w", err)
		}
	}
}

type utf8Decoder struct {
	pending []byte
}

func (d *utf8Decoder) decode(p []byte) string {
	data := append(d.pending, p...)

	cut := len(data)
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				cut = i
			}
			break
		}
	}

	d.pending = append([]byte(nil), data[cut:]...)
	return strings.ToValidUTF8(string(data[:cut]), "\uFFFD")
}

func (d *utf8Decoder) flush() string {
	s := strings.ToValidUTF8(string(d.pending), "\uFFFD")
	d.pending = nil
	return s
}

// SimulatedTransport answers without any network call: after Delay it
// reveals Reply word by word.
type SimulatedTransport struct {
	Reply     string
	Delay     time.Duration
	WordDelay time.Duration
}

func NewSimulatedTransport() *SimulatedTransport {
	return &SimulatedTransport{
		Reply:     "This is a simulated assistant reply, typed out one word at a time.",
		Delay:     time.Second,
		WordDelay: 80 * time.Millisecond,
	}
}

func (t *SimulatedTransport) Exchange(ctx context.Context, conversation []models.ChatMessage, apply func(models.Delta)) error {
	if err := wait(ctx, t.Delay); err != nil {
		return err
	}
	for i, w := range models.SplitWords(t.Reply) {
		if i > 0 {
			if err := wait(ctx, t.WordDelay); err != nil {
				return err
			}
		}
		apply(models.TextDelta(w))
	}
	return nil
}
