package audithook

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/zephraph/sps/ext"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/workflow"
)

var (
	_ ext.Extension             = (*Extension)(nil)
	_ ext.WorkflowStarted       = (*Extension)(nil)
	_ ext.WorkflowStepCompleted = (*Extension)(nil)
	_ ext.WorkflowStepFailed    = (*Extension)(nil)
	_ ext.WorkflowSuspended     = (*Extension)(nil)
	_ ext.WorkflowCompleted     = (*Extension)(nil)
	_ ext.WorkflowFailed        = (*Extension)(nil)
	_ ext.WorkflowCanceled      = (*Extension)(nil)
	_ ext.CronFired             = (*Extension)(nil)
	_ ext.GuestRegistered       = (*Extension)(nil)
	_ ext.GuestPromoted         = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error { return f(ctx, event) }

// AuditEvent is one entry of the trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// LogRecorder writes each event as one slog record, at warn level for
// warnings and error level for critical events.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		keys := make([]string, 0, len(evt.Metadata))
		for k := range evt.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		meta := make([]any, 0, len(keys))
		for _, k := range keys {
			meta = append(meta, slog.Any(k, evt.Metadata[k]))
		}
		logger.LogAttrs(ctx, level, "audit",
			slog.String("action", evt.Action),
			slog.String("category", evt.Category),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.Group("meta", meta...),
		)
		return nil
	})
}

// Extension records lifecycle events through a Recorder.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil means all
	logger   *slog.Logger
}

// New returns an Extension recording through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{recorder: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Workflow hooks ──────────────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (e *Extension) OnWorkflowStarted(ctx context.Context, r *workflow.Run) error {
	return e.run(ctx, ActionWorkflowStarted, SeverityInfo, OutcomeSuccess, r, nil)
}

// OnWorkflowStepCompleted implements ext.WorkflowStepCompleted.
func (e *Extension) OnWorkflowStepCompleted(ctx context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error {
	return e.run(ctx, ActionWorkflowStepCompleted, SeverityInfo, OutcomeSuccess, r, nil,
		"step_name", stepName,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnWorkflowStepFailed implements ext.WorkflowStepFailed.
func (e *Extension) OnWorkflowStepFailed(ctx context.Context, r *workflow.Run, stepName string, stepErr error) error {
	return e.run(ctx, ActionWorkflowStepFailed, SeverityWarning, OutcomeFailure, r, stepErr,
		"step_name", stepName,
		"attempt", r.Attempt+1,
	)
}

// OnWorkflowSuspended implements ext.WorkflowSuspended.
func (e *Extension) OnWorkflowSuspended(ctx context.Context, r *workflow.Run, wakeAt time.Time) error {
	return e.run(ctx, ActionWorkflowSuspended, SeverityInfo, OutcomeSuccess, r, nil,
		"wake_at", wakeAt.UTC().Format(time.RFC3339),
	)
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (e *Extension) OnWorkflowCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	return e.run(ctx, ActionWorkflowCompleted, SeverityInfo, OutcomeSuccess, r, nil,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (e *Extension) OnWorkflowFailed(ctx context.Context, r *workflow.Run, runErr error) error {
	return e.run(ctx, ActionWorkflowFailed, SeverityCritical, OutcomeFailure, r, runErr)
}

// OnWorkflowCanceled implements ext.WorkflowCanceled.
func (e *Extension) OnWorkflowCanceled(ctx context.Context, r *workflow.Run) error {
	return e.run(ctx, ActionWorkflowCanceled, SeverityWarning, OutcomeSuccess, r, nil)
}

// ── Cron and RSVP hooks ─────────────────────────────

// OnCronFired implements ext.CronFired.
func (e *Extension) OnCronFired(ctx context.Context, entryName string, runID id.RunID) error {
	return e.record(ctx, ActionCronFired, SeverityInfo, OutcomeSuccess,
		ResourceCron, entryName, CategoryCron, nil,
		"run_id", runID.String(),
	)
}

// OnGuestRegistered implements ext.GuestRegistered.
func (e *Extension) OnGuestRegistered(ctx context.Context, eventID id.EventID, guestID id.GuestID, status string) error {
	return e.record(ctx, ActionGuestRegistered, SeverityInfo, OutcomeSuccess,
		ResourceEvent, eventID.String(), CategoryRSVP, nil,
		"guest_id", guestID.String(),
		"status", status,
	)
}

// OnGuestPromoted implements ext.GuestPromoted.
func (e *Extension) OnGuestPromoted(ctx context.Context, eventID id.EventID, guestID id.GuestID) error {
	return e.record(ctx, ActionGuestPromoted, SeverityInfo, OutcomeSuccess,
		ResourceEvent, eventID.String(), CategoryRSVP, nil,
		"guest_id", guestID.String(),
	)
}

func (e *Extension) run(ctx context.Context, action, severity, outcome string, r *workflow.Run, err error, kv ...any) error {
	kv = append(kv, "workflow_name", r.Name)
	return e.record(ctx, action, severity, outcome, ResourceWorkflow, r.ID.String(), CategoryWorkflow, err, kv...)
}

// record sends an event if action is enabled. Recorder failures are
// logged and swallowed.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kv ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			meta[key] = kv[i+1]
		}
	}
	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = reason
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}
	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit record failed",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
