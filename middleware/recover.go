package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover turns a panic in the step body into an error so the run is
// retried instead of taking down the worker.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, s *Step, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("step panicked",
					slog.String("workflow", s.Workflow),
					slog.String("run_id", s.RunID.String()),
					slog.String("step", s.Name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in step %s: %v", s.Name, r)
			}
		}()
		return next(ctx)
	}
}
