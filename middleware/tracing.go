package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zephraph/sps"

// Tracing wraps each step attempt in a span from the global provider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer is Tracing with an explicit tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, s *Step, next Handler) error {
		ctx, span := tracer.Start(ctx, "sps.workflow.step",
			trace.WithAttributes(
				attribute.String("sps.workflow", s.Workflow),
				attribute.String("sps.run_id", s.RunID.String()),
				attribute.String("sps.step", s.Name),
				attribute.Int("sps.attempt", s.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}
