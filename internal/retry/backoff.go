// Package retry implements exponential backoff with jitter for transient
// upstream failures, primarily reasoner calls that hit rate limits or
// timeouts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig controls the retry schedule
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          bool
	MaxAttempts     int
}

// DefaultBackoffConfig returns the schedule used when nothing is configured
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: 1 * time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
		MaxAttempts:     3,
	}
}

// Interval returns the delay preceding the given attempt (attempt 2 is the
// first retry).
func (c BackoffConfig) Interval(attempt int) time.Duration {
	if attempt <= 2 {
		return c.InitialInterval
	}

	interval := float64(c.InitialInterval) * math.Pow(c.Multiplier, float64(attempt-2))
	if interval > float64(c.MaxInterval) {
		interval = float64(c.MaxInterval)
	}

	duration := time.Duration(interval)
	if c.Jitter && duration > 1 {
		jitter := time.Duration(rand.Int63n(int64(duration / 2)))
		duration = duration/2 + jitter
	}

	return duration
}

// StopError wraps an error to halt retries immediately
type StopError struct {
	Err error
}

func (s StopError) Error() string {
	return s.Err.Error()
}

func (s StopError) Unwrap() error {
	return s.Err
}

// Stop marks an error as non-retryable
func Stop(err error) error {
	return StopError{Err: err}
}

// WithBackoff runs fn until it succeeds, the attempt budget is exhausted, the
// context is cancelled, or fn returns a StopError.
func WithBackoff(ctx context.Context, cfg BackoffConfig, fn func() error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(cfg.Interval(attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		var stopErr StopError
		if errors.As(err, &stopErr) {
			return stopErr.Err
		}
		if errors.Is(err, context.Canceled) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, lastErr)
}
