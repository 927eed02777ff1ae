package executor

import (
	"context"
	"time"
)

// RetryPolicy controls the retry decorator.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// BaseDelay is the delay before the first retry; each subsequent retry
	// doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero means no cap.
	MaxDelay time.Duration

	// OnRetry, if set, is called before each retry with the element's
	// index, the attempt number just failed (1-based), and its error.
	OnRetry func(index, attempt int, err error)
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	return p
}

// backoffDelay returns the delay before retrying after the given 1-based
// failed attempt: BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// WithRetry wraps a unit function so each element's invocation is retried
// with exponential backoff. Every error counts as retryable; once the
// attempt budget is exhausted the last error propagates unchanged. Retry
// state is per element and never delays sibling elements.
func WithRetry(unit UnitFunc, policy RetryPolicy) UnitFunc {
	policy = policy.normalized()

	return func(ctx context.Context, item interface{}, index int) (interface{}, error) {
		var lastErr error

		for attempt := 1; attempt <= policy.MaxRetries+1; attempt++ {
			output, err := unit(ctx, item, index)
			if err == nil {
				return output, nil
			}
			lastErr = err

			if attempt > policy.MaxRetries {
				break
			}
			if policy.OnRetry != nil {
				policy.OnRetry(index, attempt, err)
			}
			if err := sleep(ctx, policy.backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}

		return nil, lastErr
	}
}

// sleep waits for the given duration unless the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
