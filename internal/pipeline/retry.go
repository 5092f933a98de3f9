package pipeline

import (
	"context"
	"log"
	"time"
)

const (
	maxAttempts    = 3
	baseRetryDelay = 500 * time.Millisecond
)

// withRetry runs op up to maxAttempts times with exponential backoff
// (500ms, 1s, 2s). Context cancellation is never retried.
func withRetry(ctx context.Context, logger *log.Logger, label string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := baseRetryDelay * time.Duration(1<<attempt)
		logger.Printf("[pipeline] retry %d/%d for %s after %v: %v", attempt+1, maxAttempts, label, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
