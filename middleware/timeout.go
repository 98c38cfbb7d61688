package middleware

import (
	"context"
	"time"
)

// Timeout bounds every attempt by d unless the step carries its own
// Timeout. Zero d and no step timeout leaves the call unbounded.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, s *Step, next Handler) error {
		limit := d
		if s.Timeout > 0 {
			limit = s.Timeout
		}
		if limit <= 0 {
			return next(ctx)
		}
		ctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		return next(ctx)
	}
}
