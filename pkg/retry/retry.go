// Package retry provides retry functionality with exponential backoff and
// jitter. Used by the job dispatcher for failed evaluation triggers and by
// outbound notification delivery.
// No external dependencies - uses only standard library.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// PermanentError marks an error that must not be retried, regardless of
// the caller's RetryIf policy. Validation failures and missing references
// are wrapped this way so a redelivered trigger is dropped instead of
// burning retry attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is permanent (should not be retried).
func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// Config holds retry configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the factor by which delay grows after each attempt.
	// Default: 2.0
	Multiplier float64

	// JitterFactor adds randomness to delays (0.0 = none, 1.0 = full).
	// Default: 0.1
	JitterFactor float64

	// RetryIf decides whether an error should be retried. Permanent
	// errors are never retried even if RetryIf returns true. If nil,
	// every non-permanent error is retried.
	RetryIf func(error) bool

	// OnRetry is called before each retry attempt. Useful for logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = 2.0
	}
	return c
}

// Delay returns the backoff delay before the given retry attempt
// (attempt starts at 1 for the first retry), with jitter applied.
func (c Config) Delay(attempt int) time.Duration {
	cfg := c.normalized()

	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= cfg.Multiplier
		if delay >= float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
			break
		}
	}

	if cfg.JitterFactor > 0 {
		jitter := delay * cfg.JitterFactor
		delay = delay - jitter + rand.Float64()*jitter*2
	}

	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// Do executes fn with retries according to the config. It returns the
// last error when all attempts fail, or immediately on a permanent
// error or cancelled context.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg = cfg.normalized()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := cfg.Delay(attempt - 1)
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt-1, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
