package retry

import (
	"context"
	"errors"
	"time"
)

// Config controls how Do spaces out attempts.
type Config struct {
	Attempts   int              // total attempts, including the first one
	BaseDelay  time.Duration    // delay before the second attempt
	Multiplier float64          // backoff growth factor; 1.0 means linear
	MaxDelay   time.Duration    // cap on any single delay; 0 means uncapped
	Retryable  func(error) bool // nil means every error is retryable
}

// Linear returns a Config with a constant delay between attempts.
func Linear(attempts int, delay time.Duration) Config {
	return Config{Attempts: attempts, BaseDelay: delay, Multiplier: 1.0}
}

// Exponential returns a Config that doubles the delay after each attempt,
// capped at maxDelay.
func Exponential(attempts int, base, maxDelay time.Duration) Config {
	return Config{Attempts: attempts, BaseDelay: base, Multiplier: 2.0, MaxDelay: maxDelay}
}

// WithRetryable returns a copy of the config using fn as the retryable-error
// predicate. Errors rejected by fn abort the loop immediately.
func (c Config) WithRetryable(fn func(error) bool) Config {
	c.Retryable = fn
	return c
}

// Do invokes fn until it succeeds, the attempts are exhausted, a
// non-retryable error occurs, or ctx is cancelled. The last error is
// returned on failure. There is no sleep after the final attempt.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(ErrAborted, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(ErrAborted, ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}
