package executor

import (
	"context"

	"golang.org/x/time/rate"
)

// WithRateLimit wraps a unit function so invocations are spaced to at most
// eventsPerSecond, independent of (and composable with) the concurrency
// cap. burst allows short spikes; values below 1 are treated as 1.
func WithRateLimit(unit UnitFunc, eventsPerSecond float64, burst int) UnitFunc {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(eventsPerSecond), burst)

	return func(ctx context.Context, item interface{}, index int) (interface{}, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return unit(ctx, item, index)
	}
}
