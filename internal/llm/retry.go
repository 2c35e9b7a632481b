package llm

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig bounds the retry loop around a single LLM-backed sub-step.
// Defaults follow the observer's failure budget: 3 attempts with
// 2s/4s/8s exponential backoff.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the standard observer retry schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseBackoff: 2 * time.Second}
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff
// between attempts (base, 2*base, 4*base, ...). Retries are per-task:
// callers wrap each sub-step independently so one failed extraction does
// not restart grading. Returns the last error after exhaustion; context
// cancellation stops the loop immediately.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	backoff := cfg.BaseBackoff
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return zero, fmt.Errorf("exhausted %d attempts: %w", cfg.MaxAttempts, lastErr)
}
