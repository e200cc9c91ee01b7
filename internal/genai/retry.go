package genai

import (
	"context"
	"time"
)

// retryConfig configures exponential backoff for provider API calls.
type retryConfig struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

func defaultRetryConfig() retryConfig {
	return retryConfig{
		maxAttempts: 4,
		baseDelay:   200 * time.Millisecond,
		maxDelay:    5 * time.Second,
	}
}

// retryable marks an error as worth retrying (rate limit or server error).
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// retryWithBackoff runs fn with exponential backoff, retrying only errors
// wrapped in retryable. Stops early on context cancellation.
func retryWithBackoff[T any](ctx context.Context, cfg retryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := cfg.baseDelay
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if _, ok := err.(retryable); !ok {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt < cfg.maxAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
				delay *= 2
				if delay > cfg.maxDelay {
					delay = cfg.maxDelay
				}
			}
		}
	}
	if r, ok := lastErr.(retryable); ok {
		return zero, r.err
	}
	return zero, lastErr
}
