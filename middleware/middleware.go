package middleware

import (
	"context"
	"time"

	"github.com/zephraph/sps/id"
)

// Step describes the step being executed.
type Step struct {
	RunID    id.RunID
	Workflow string
	Name     string
	// Attempt is 1 for the first try and grows with every retry of the
	// same step.
	Attempt int
	// Timeout, when non-zero, bounds a single attempt.
	Timeout time.Duration
}

// Handler runs the step body.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler. It must call next unless it short-circuits
// with an error.
type Middleware func(ctx context.Context, s *Step, next Handler) error

// Chain composes middleware; the first one listed is the outermost.
//
//	Chain(logging, recover) runs as logging → recover → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, s *Step, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw, inner := mws[i], h
			h = func(ctx context.Context) error { return mw(ctx, s, inner) }
		}
		return h(ctx)
	}
}
