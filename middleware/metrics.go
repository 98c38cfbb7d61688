package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records step duration and outcome on the global meter.
//
//   - sps.step.duration (histogram, seconds)
//   - sps.step.executions (counter)
//
// Both carry workflow, step and status ("ok" or "error").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(instrumentationName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The API hands back working noop instruments alongside any error.
	duration, _ := meter.Float64Histogram("sps.step.duration", //nolint:errcheck // noop fallback
		metric.WithDescription("Duration of a workflow step attempt"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter("sps.step.executions", //nolint:errcheck // noop fallback
		metric.WithDescription("Workflow step attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, s *Step, next Handler) error {
		start := time.Now()
		err := next(ctx)

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("workflow", s.Workflow),
			attribute.String("step", s.Name),
			attribute.String("status", status),
		)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		executions.Add(ctx, 1, attrs)
		return err
	}
}
