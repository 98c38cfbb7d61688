package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/workflow"
)

// entry pairs a hook with the name of the extension that provides it.
type entry[H any] struct {
	name string
	hook H
}

// add appends e to list when it implements H.
func add[H any](list []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name: name, hook: h})
	}
	return list
}

// Registry dispatches lifecycle events to extensions. Hooks are sorted
// into per-event lists at registration, so an emit walks only the
// extensions that care. Register must not race with emits.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	workflowStarted       []entry[WorkflowStarted]
	workflowStepCompleted []entry[WorkflowStepCompleted]
	workflowStepFailed    []entry[WorkflowStepFailed]
	workflowSuspended     []entry[WorkflowSuspended]
	workflowCompleted     []entry[WorkflowCompleted]
	workflowFailed        []entry[WorkflowFailed]
	workflowCanceled      []entry[WorkflowCanceled]
	cronFired             []entry[CronFired]
	guestRegistered       []entry[GuestRegistered]
	guestPromoted         []entry[GuestPromoted]
	shutdown              []entry[Shutdown]
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	n := e.Name()

	r.workflowStarted = add(r.workflowStarted, n, e)
	r.workflowStepCompleted = add(r.workflowStepCompleted, n, e)
	r.workflowStepFailed = add(r.workflowStepFailed, n, e)
	r.workflowSuspended = add(r.workflowSuspended, n, e)
	r.workflowCompleted = add(r.workflowCompleted, n, e)
	r.workflowFailed = add(r.workflowFailed, n, e)
	r.workflowCanceled = add(r.workflowCanceled, n, e)
	r.cronFired = add(r.cronFired, n, e)
	r.guestRegistered = add(r.guestRegistered, n, e)
	r.guestPromoted = add(r.guestPromoted, n, e)
	r.shutdown = add(r.shutdown, n, e)
}

// Extensions returns the registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitWorkflowStarted notifies WorkflowStarted hooks.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, run *workflow.Run) {
	for _, e := range r.workflowStarted {
		r.check("OnWorkflowStarted", e.name, e.hook.OnWorkflowStarted(ctx, run))
	}
}

// EmitWorkflowStepCompleted notifies WorkflowStepCompleted hooks.
func (r *Registry) EmitWorkflowStepCompleted(ctx context.Context, run *workflow.Run, stepName string, elapsed time.Duration) {
	for _, e := range r.workflowStepCompleted {
		r.check("OnWorkflowStepCompleted", e.name, e.hook.OnWorkflowStepCompleted(ctx, run, stepName, elapsed))
	}
}

// EmitWorkflowStepFailed notifies WorkflowStepFailed hooks.
func (r *Registry) EmitWorkflowStepFailed(ctx context.Context, run *workflow.Run, stepName string, stepErr error) {
	for _, e := range r.workflowStepFailed {
		r.check("OnWorkflowStepFailed", e.name, e.hook.OnWorkflowStepFailed(ctx, run, stepName, stepErr))
	}
}

// EmitWorkflowSuspended notifies WorkflowSuspended hooks.
func (r *Registry) EmitWorkflowSuspended(ctx context.Context, run *workflow.Run, wakeAt time.Time) {
	for _, e := range r.workflowSuspended {
		r.check("OnWorkflowSuspended", e.name, e.hook.OnWorkflowSuspended(ctx, run, wakeAt))
	}
}

// EmitWorkflowCompleted notifies WorkflowCompleted hooks.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	for _, e := range r.workflowCompleted {
		r.check("OnWorkflowCompleted", e.name, e.hook.OnWorkflowCompleted(ctx, run, elapsed))
	}
}

// EmitWorkflowFailed notifies WorkflowFailed hooks.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, run *workflow.Run, runErr error) {
	for _, e := range r.workflowFailed {
		r.check("OnWorkflowFailed", e.name, e.hook.OnWorkflowFailed(ctx, run, runErr))
	}
}

// EmitWorkflowCanceled notifies WorkflowCanceled hooks.
func (r *Registry) EmitWorkflowCanceled(ctx context.Context, run *workflow.Run) {
	for _, e := range r.workflowCanceled {
		r.check("OnWorkflowCanceled", e.name, e.hook.OnWorkflowCanceled(ctx, run))
	}
}

// EmitCronFired notifies CronFired hooks.
func (r *Registry) EmitCronFired(ctx context.Context, entryName string, runID id.RunID) {
	for _, e := range r.cronFired {
		r.check("OnCronFired", e.name, e.hook.OnCronFired(ctx, entryName, runID))
	}
}

// EmitGuestRegistered notifies GuestRegistered hooks.
func (r *Registry) EmitGuestRegistered(ctx context.Context, eventID id.EventID, guestID id.GuestID, status string) {
	for _, e := range r.guestRegistered {
		r.check("OnGuestRegistered", e.name, e.hook.OnGuestRegistered(ctx, eventID, guestID, status))
	}
}

// EmitGuestPromoted notifies GuestPromoted hooks.
func (r *Registry) EmitGuestPromoted(ctx context.Context, eventID id.EventID, guestID id.GuestID) {
	for _, e := range r.guestPromoted {
		r.check("OnGuestPromoted", e.name, e.hook.OnGuestPromoted(ctx, eventID, guestID))
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.check("OnShutdown", e.name, e.hook.OnShutdown(ctx))
	}
}

// check logs a hook error. Hook errors never reach the caller.
func (r *Registry) check(hook, extName string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
