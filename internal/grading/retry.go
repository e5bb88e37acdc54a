package grading

import (
	"context"
	"time"
)

// RetryPolicy is the single retry/backoff implementation shared by every
// pipeline stage that calls an external capability. Delays grow as
// base * 2^attempt, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Do invokes op until it succeeds, returns a non-retryable error, exhausts
// the attempt budget, or the context is cancelled. It returns the number of
// attempts made alongside the final error.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, retryable func(error) bool) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if waitErr := p.wait(ctx, attempt); waitErr != nil {
				return attempt, waitErr
			}
		}

		err = op(ctx)
		if err == nil {
			return attempt + 1, nil
		}
		if retryable != nil && !retryable(err) {
			return attempt + 1, err
		}
	}

	return maxAttempts, err
}

func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	delay := p.BaseDelay << uint(attempt-1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
