package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zephraph/sps/ext"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/workflow"
)

var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.WorkflowStarted   = (*MetricsExtension)(nil)
	_ ext.WorkflowSuspended = (*MetricsExtension)(nil)
	_ ext.WorkflowCompleted = (*MetricsExtension)(nil)
	_ ext.WorkflowFailed    = (*MetricsExtension)(nil)
	_ ext.WorkflowCanceled  = (*MetricsExtension)(nil)
	_ ext.CronFired         = (*MetricsExtension)(nil)
	_ ext.GuestRegistered   = (*MetricsExtension)(nil)
	_ ext.GuestPromoted     = (*MetricsExtension)(nil)
)

// MetricsExtension keeps one counter per lifecycle event. Workflow
// counters carry a "workflow" attribute; registrations carry "status".
type MetricsExtension struct {
	workflowStarted   metric.Int64Counter
	workflowSuspended metric.Int64Counter
	workflowCompleted metric.Int64Counter
	workflowFailed    metric.Int64Counter
	workflowCanceled  metric.Int64Counter
	cronFired         metric.Int64Counter
	guestRegistered   metric.Int64Counter
	guestPromoted     metric.Int64Counter
}

// NewMetricsExtension uses the global meter provider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter("github.com/zephraph/sps/observability"))
}

// NewMetricsExtensionWithMeter uses the given meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// On error the API still returns a usable noop counter.
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc)) //nolint:errcheck // noop fallback
		return c
	}
	return &MetricsExtension{
		workflowStarted:   counter("sps.workflow.started", "Workflow runs created"),
		workflowSuspended: counter("sps.workflow.suspended", "Workflow runs put to sleep"),
		workflowCompleted: counter("sps.workflow.completed", "Workflow runs completed"),
		workflowFailed:    counter("sps.workflow.failed", "Workflow runs failed"),
		workflowCanceled:  counter("sps.workflow.canceled", "Workflow runs canceled"),
		cronFired:         counter("sps.cron.fired", "Cron entries fired"),
		guestRegistered:   counter("sps.guest.registered", "Guest registrations"),
		guestPromoted:     counter("sps.guest.promoted", "Waitlist promotions"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func wf(r *workflow.Run) metric.AddOption {
	return metric.WithAttributes(attribute.String("workflow", r.Name))
}

// OnWorkflowStarted implements ext.WorkflowStarted.
func (m *MetricsExtension) OnWorkflowStarted(ctx context.Context, r *workflow.Run) error {
	m.workflowStarted.Add(ctx, 1, wf(r))
	return nil
}

// OnWorkflowSuspended implements ext.WorkflowSuspended.
func (m *MetricsExtension) OnWorkflowSuspended(ctx context.Context, r *workflow.Run, _ time.Time) error {
	m.workflowSuspended.Add(ctx, 1, wf(r))
	return nil
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (m *MetricsExtension) OnWorkflowCompleted(ctx context.Context, r *workflow.Run, _ time.Duration) error {
	m.workflowCompleted.Add(ctx, 1, wf(r))
	return nil
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (m *MetricsExtension) OnWorkflowFailed(ctx context.Context, r *workflow.Run, _ error) error {
	m.workflowFailed.Add(ctx, 1, wf(r))
	return nil
}

// OnWorkflowCanceled implements ext.WorkflowCanceled.
func (m *MetricsExtension) OnWorkflowCanceled(ctx context.Context, r *workflow.Run) error {
	m.workflowCanceled.Add(ctx, 1, wf(r))
	return nil
}

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, entryName string, _ id.RunID) error {
	m.cronFired.Add(ctx, 1, metric.WithAttributes(attribute.String("entry", entryName)))
	return nil
}

// OnGuestRegistered implements ext.GuestRegistered.
func (m *MetricsExtension) OnGuestRegistered(ctx context.Context, _ id.EventID, _ id.GuestID, status string) error {
	m.guestRegistered.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	return nil
}

// OnGuestPromoted implements ext.GuestPromoted.
func (m *MetricsExtension) OnGuestPromoted(ctx context.Context, _ id.EventID, _ id.GuestID) error {
	m.guestPromoted.Add(ctx, 1)
	return nil
}
