package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted is wrapped into the error returned once every attempt failed
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryFixed calls fn up to retries+1 times, sleeping delay between attempts.
// It stops early when ctx is done.
func RetryFixed(ctx context.Context, retries int, delay time.Duration, fn func(attempt int) error, logger *Logger) error {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			logger.Debug("Retrying (attempt %d/%d) after %v...", attempt+1, retries+1, delay)
			if err := Sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := fn(attempt); err != nil {
			lastErr = err
			logger.Debug("Attempt %d failed: %v", attempt+1, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, retries+1, lastErr)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
