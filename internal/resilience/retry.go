package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts       int           // Total attempts, including the first
	InitialBackoff    time.Duration // Delay before the second attempt
	MaxBackoff        time.Duration // Upper bound for any single delay
	BackoffMultiplier float64       // Growth factor between delays
	Jitter            bool          // Add up to 25% random jitter to each delay

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called after a retryable failure, before sleeping.
	OnRetry func(failed Attempt, err error)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}
}

// Attempt is an immutable record of one try. NextDelay is the wait that
// follows this attempt if it fails with a retryable error.
type Attempt struct {
	Number    int
	NextDelay time.Duration
}

// FirstAttempt returns the attempt record the loop starts from
func FirstAttempt(cfg *RetryConfig) Attempt {
	return Attempt{Number: 1, NextDelay: cfg.InitialBackoff}
}

// Next derives the following attempt without mutating the receiver.
func (a Attempt) Next(cfg *RetryConfig) Attempt {
	next := time.Duration(float64(a.NextDelay) * cfg.BackoffMultiplier)
	if cfg.MaxBackoff > 0 && next > cfg.MaxBackoff {
		next = cfg.MaxBackoff
	}
	return Attempt{Number: a.Number + 1, NextDelay: next}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context, attempt Attempt) error

// IsRetryableError checks if an error is retryable
type IsRetryableError func(error) bool

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. It returns the last attempt made.
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError) (Attempt, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	attempt := FirstAttempt(config)
	for {
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}

		if isRetryable != nil && !isRetryable(err) {
			return attempt, err
		}

		if attempt.Number >= config.MaxAttempts {
			return attempt, &ExhaustedError{Attempts: attempt.Number, Err: err}
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt, err)
		}

		if sleepErr := sleep(ctx, jittered(attempt.NextDelay, config.Jitter)); sleepErr != nil {
			return attempt, errors.Join(err, sleepErr)
		}

		attempt = attempt.Next(config)
	}
}

// SleepContext waits for d or until ctx is done
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jittered(d time.Duration, enabled bool) time.Duration {
	if !enabled || d <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*0.25*rand.Float64())
}

// CalculateBackoff calculates the backoff duration for a given zero-based retry
func CalculateBackoff(attempt int, initialBackoff time.Duration, maxBackoff time.Duration, multiplier float64) time.Duration {
	backoff := time.Duration(float64(initialBackoff) * math.Pow(multiplier, float64(attempt)))
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
