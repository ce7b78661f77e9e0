package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedProvider_Stream(t *testing.T) {
	p := &SimulatedProvider{Reply: "one two three"}

	stream, err := p.CreateCompletionStream(context.Background(), nil)
	require.NoError(t, err)

	var parts []string
	for {
		d, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		parts = append(parts, d.Text())
	}
	assert.Equal(t, []string{"one ", "two ", "three"}, parts)
}

func TestSimulatedProvider_RespectsCancellation(t *testing.T) {
	p := &SimulatedProvider{Reply: "never", Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.CreateCompletion(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
