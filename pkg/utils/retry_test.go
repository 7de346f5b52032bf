package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func failingOp(failures int, calls *int) func(context.Context) error {
	return func(context.Context) error {
		*calls++
		if *calls <= failures {
			return fmt.Errorf("attempt %d failed", *calls)
		}
		return nil
	}
}

func TestRetry_SucceedsWhenAttemptsExceedFailures(t *testing.T) {
	for k := 0; k < 4; k++ {
		calls := 0
		err := Retry(context.Background(), RetryPolicy{Attempts: k + 1, Backoff: time.Second, Sleep: noSleep}, failingOp(k, &calls))
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, k+1, calls, "k=%d", k)
	}
}

func TestRetry_FailsAfterExactlyAttempts(t *testing.T) {
	for attempts := 1; attempts <= 3; attempts++ {
		calls := 0
		err := Retry(context.Background(), RetryPolicy{Attempts: attempts, Sleep: noSleep}, failingOp(attempts, &calls))
		require.Error(t, err)
		assert.Equal(t, attempts, calls)
		assert.Equal(t, fmt.Sprintf("attempt %d failed", attempts), err.Error(), "last error is propagated")
	}
}

func TestRetry_FixedBackoff(t *testing.T) {
	var waits []time.Duration
	calls := 0
	policy := RetryPolicy{
		Attempts: 3,
		Backoff:  50 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}

	require.Error(t, Retry(context.Background(), policy, failingOp(5, &calls)))
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, waits)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{}, failingOp(1, &calls))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sentinel := errors.New("send failed")
	calls := 0

	err := Retry(ctx, RetryPolicy{Attempts: 5, Backoff: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRetry_Notify(t *testing.T) {
	var notified []int
	calls := 0
	policy := RetryPolicy{
		Attempts: 3,
		Sleep:    noSleep,
		Notify:   func(attempt int, _ error) { notified = append(notified, attempt) },
	}
	require.NoError(t, Retry(context.Background(), policy, failingOp(2, &calls)))
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDefaultSendRetry(t *testing.T) {
	assert.Equal(t, 2, DefaultSendRetry.Attempts)
	assert.Equal(t, 50*time.Millisecond, DefaultSendRetry.Backoff)
}
