package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker(threshold int, cooldown time.Duration) *Breaker {
	return NewBreaker("test", &BreakerConfig{
		FailureThreshold: threshold,
		Cooldown:         cooldown,
	})
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := testBreaker(3, time.Minute)
	errBoom := errors.New("boom")

	for i := 0; i < 2; i++ {
		b.RecordFailure(errBoom)
		assert.Equal(t, StateClosed, b.State())
	}
	b.RecordFailure(errBoom)
	assert.Equal(t, StateOpen, b.State())

	ok, err := b.Allow()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := testBreaker(3, time.Minute)
	errBoom := errors.New("boom")

	b.RecordFailure(errBoom)
	b.RecordFailure(errBoom)
	b.RecordSuccess()
	b.RecordFailure(errBoom)
	b.RecordFailure(errBoom)

	// Never three in a row, so still closed
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b := testBreaker(1, 20*time.Millisecond)
	b.RecordFailure(errors.New("boom"))
	require.Equal(t, StateOpen, b.State())

	ok, _ := b.Allow()
	require.False(t, ok)

	time.Sleep(30 * time.Millisecond)
	ok, err := b.Allow()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.State())

	// A successful probe closes the breaker
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := testBreaker(1, 20*time.Millisecond)
	b.RecordFailure(errors.New("boom"))

	time.Sleep(30 * time.Millisecond)
	ok, _ := b.Allow()
	require.True(t, ok)

	b.RecordFailure(errors.New("still down"))
	assert.Equal(t, StateOpen, b.State())
	ok, _ = b.Allow()
	assert.False(t, ok)
}

func TestRegistryReturnsSameBreakerPerName(t *testing.T) {
	r := NewRegistry(DefaultBreakerConfig())

	a := r.Get("platform")
	b := r.Get("platform")
	c := r.Get("engine")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Len(t, r.Stats(), 2)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	b := testBreaker(10, time.Minute)
	cfg := &RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}

	attempts := 0
	err := Do(context.Background(), b, cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateClosed, b.State())
}

func TestDoExhaustsAttempts(t *testing.T) {
	b := testBreaker(10, time.Minute)
	cfg := &RetryConfig{MaxAttempts: 2, BackoffBase: time.Millisecond}

	attempts := 0
	errBoom := errors.New("boom")
	err := Do(context.Background(), b, cfg, func(ctx context.Context) error {
		attempts++
		return errBoom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, attempts)
}

func TestDoShortCircuitsOnOpenBreaker(t *testing.T) {
	b := testBreaker(1, time.Minute)
	b.RecordFailure(errors.New("boom"))
	require.Equal(t, StateOpen, b.State())

	attempts := 0
	err := Do(context.Background(), b, DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, attempts)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	b := testBreaker(10, time.Minute)
	cfg := &RetryConfig{MaxAttempts: 5, BackoffBase: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, b, cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
