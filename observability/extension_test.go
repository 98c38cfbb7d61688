package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/observability"
	"github.com/zephraph/sps/workflow"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

// totals sums every Int64 counter by name.
func totals(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("Name() = %q", e.Name())
	}
}

func TestMetricsExtension_Counters(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()
	run := &workflow.Run{ID: id.NewRunID(), Name: "event-management"}

	calls := []error{
		e.OnWorkflowStarted(ctx, run),
		e.OnWorkflowSuspended(ctx, run, time.Now()),
		e.OnWorkflowSuspended(ctx, run, time.Now()),
		e.OnWorkflowCompleted(ctx, run, time.Hour),
		e.OnWorkflowFailed(ctx, run, errors.New("x")),
		e.OnWorkflowCanceled(ctx, run),
		e.OnCronFired(ctx, "weekly-event", run.ID),
		e.OnGuestRegistered(ctx, id.NewEventID(), id.NewGuestID(), "going"),
		e.OnGuestRegistered(ctx, id.NewEventID(), id.NewGuestID(), "waitlisted"),
		e.OnGuestPromoted(ctx, id.NewEventID(), id.NewGuestID()),
	}
	for i, err := range calls {
		if err != nil {
			t.Fatalf("hook %d: %v", i, err)
		}
	}

	want := map[string]int64{
		"sps.workflow.started":   1,
		"sps.workflow.suspended": 2,
		"sps.workflow.completed": 1,
		"sps.workflow.failed":    1,
		"sps.workflow.canceled":  1,
		"sps.cron.fired":         1,
		"sps.guest.registered":   2,
		"sps.guest.promoted":     1,
	}
	got := totals(t, reader)
	for name, n := range want {
		if got[name] != n {
			t.Errorf("%s = %d, want %d", name, got[name], n)
		}
	}
}

func TestMetricsExtension_DefaultMeterSafe(t *testing.T) {
	e := observability.NewMetricsExtension()
	if err := e.OnGuestPromoted(context.Background(), id.NewEventID(), id.NewGuestID()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
