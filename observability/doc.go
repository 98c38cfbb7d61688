// Package observability counts lifecycle events with OpenTelemetry.
// MetricsExtension is an ext.Extension; per-step timing lives in
// middleware.Metrics.
package observability
