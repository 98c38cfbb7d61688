package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging logs each step attempt and its outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, s *Step, next Handler) error {
		attrs := []any{
			slog.String("workflow", s.Workflow),
			slog.String("run_id", s.RunID.String()),
			slog.String("step", s.Name),
			slog.Int("attempt", s.Attempt),
		}
		logger.Debug("step started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		if err != nil {
			logger.Warn("step failed", append(attrs, slog.String("error", err.Error()))...)
			return err
		}
		logger.Info("step completed", attrs...)
		return nil
	}
}
