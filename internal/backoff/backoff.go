// Package backoff retries a function with bounded exponential backoff
// and jitter. Only errors the caller's predicate accepts are retried;
// everything else fails fast.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 4
	defaultBaseDelay    = 25 * time.Millisecond
	defaultJitterFactor = 0.3
)

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	retryable    func(error) bool
}

// Option configures a Retry call.
type Option func(*config)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first backoff delay; subsequent delays double.
func WithBaseDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.baseDelay = d
		}
	}
}

// WithRetryable sets the predicate deciding which errors are retried.
// Without it nothing is retried.
func WithRetryable(fn func(error) bool) Option {
	return func(c *config) { c.retryable = fn }
}

// Retry executes fn up to the configured number of attempts, sleeping
// between attempts with exponential backoff plus jitter. It returns
// nil on the first success, the error unchanged when the predicate
// rejects it, the last error on exhaustion, or the context error if
// the context ends while waiting.
func Retry(ctx context.Context, fn func(context.Context) error, opts ...Option) error {
	cfg := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	var lastErr error

	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := time.Duration(rand.Float64() * float64(delay) * cfg.jitterFactor) //nolint:gosec // jitter only

			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if cfg.retryable == nil || !cfg.retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
