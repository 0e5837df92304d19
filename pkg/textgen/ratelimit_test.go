package textgen

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls    atomic.Int64
	response string
	err      error
	delay    time.Duration
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req Request) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.response, f.err
}

func (f *fakeProvider) TestConnection(ctx context.Context) error {
	_, err := f.Generate(ctx, Request{Prompt: "ping"})
	return err
}

func TestLimitedPassesThrough(t *testing.T) {
	inner := &fakeProvider{response: "hello"}
	p := NewLimited(inner, 0, 0)

	text, err := p.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "fake", p.Name())
}

func TestLimitedSpacesCalls(t *testing.T) {
	inner := &fakeProvider{response: "ok"}
	// 60 rpm = one token per second after the initial burst.
	p := NewLimited(inner, 60, 0)

	start := time.Now()
	for range 3 {
		_, err := p.Generate(context.Background(), Request{Prompt: "x"})
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	// First call uses the burst token, the next two wait ~1s each.
	assert.GreaterOrEqual(t, elapsed, 1500*time.Millisecond)
	assert.Equal(t, int64(3), inner.calls.Load())
}

func TestLimitedTimeout(t *testing.T) {
	inner := &fakeProvider{response: "slow", delay: 200 * time.Millisecond}
	p := NewLimited(inner, 0, 20*time.Millisecond)

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimitedHonorsCancelledContext(t *testing.T) {
	inner := &fakeProvider{response: "ok"}
	p := NewLimited(inner, 1, 0) // very slow refill

	ctx, cancel := context.WithCancel(context.Background())
	_, err := p.Generate(ctx, Request{Prompt: "first"})
	require.NoError(t, err)

	cancel()
	_, err = p.Generate(ctx, Request{Prompt: "second"})
	assert.Error(t, err)
	assert.Equal(t, int64(1), inner.calls.Load())
}
