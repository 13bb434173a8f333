package circuit

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig bounds the retries applied around one external call.
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"` // Total attempts including the first
	BackoffBase time.Duration `json:"backoff_base"` // First retry delay, doubled per attempt
}

// DefaultRetryConfig returns safe defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
	}
}

// Do runs fn with bounded retries and exponential backoff, consulting the
// breaker before every attempt. The breaker sees every outcome; an open
// breaker short-circuits without consuming attempts. Cancellation of ctx
// stops the retry loop between attempts.
func Do(ctx context.Context, b *Breaker, cfg *RetryConfig, fn func(ctx context.Context) error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	backoff := cfg.BackoffBase

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ok, err := b.Allow(); !ok {
			return err
		}

		err := fn(ctx)
		if err == nil {
			b.RecordSuccess()
			return nil
		}
		b.RecordFailure(err)
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: retry aborted: %w", b.Name(), ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", b.Name(), cfg.MaxAttempts, lastErr)
}
