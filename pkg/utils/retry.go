package utils

import (
	"context"
	"time"
)

// RetrySleepFunc waits for d or until ctx is done.
type RetrySleepFunc func(ctx context.Context, d time.Duration) error

// RetryNotifyFunc is called after a failed attempt that will be retried.
type RetryNotifyFunc func(attempt int, err error)

// RetryPolicy is a bounded retry with a fixed backoff between attempts.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Sleep    RetrySleepFunc
	Notify   RetryNotifyFunc
}

// DefaultSendRetry is used by channel adapters for platform send calls.
var DefaultSendRetry = RetryPolicy{Attempts: 2, Backoff: 50 * time.Millisecond}

// Retry invokes op up to policy.Attempts times and returns the last error
// when every attempt fails. Cancelling ctx during a backoff stops early.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleepFn := policy.Sleep
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if policy.Notify != nil {
			policy.Notify(attempt, err)
		}
		if policy.Backoff > 0 {
			if sleepErr := sleepFn(ctx, policy.Backoff); sleepErr != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
