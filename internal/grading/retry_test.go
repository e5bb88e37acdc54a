package grading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		return nil
	}, nil)

	require.NoError(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(error) bool { return true })

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	permanent := errors.New("permanent")

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return permanent
	}, func(error) bool { return false })

	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustsAttemptBudget(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	transient := errors.New("still failing")

	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		return transient
	}, func(error) bool { return true })

	require.ErrorIs(t, err, transient)
	require.Equal(t, 3, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := policy.Do(ctx, func(context.Context) error {
		return errors.New("transient")
	}, func(error) bool { return true })

	require.ErrorIs(t, err, context.Canceled)
}
