package errs

import (
	"context"
	"math/rand"
	"time"
)

// retrySleepFunc is the sleep function used between attempts (injectable for tests)
var retrySleepFunc = sleepCtx

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Retry runs fn up to maxAttempts times, sleeping between attempts with
// exponential backoff plus jitter. Only RetryableError results are
// retried; any other error returns immediately. The last error is
// returned once attempts are exhausted.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(baseDelay, attempt)
			if err := retrySleepFunc(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// backoffDelay computes base * 2^(attempt-1) with up to 25% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
