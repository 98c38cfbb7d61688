package ext

import (
	"context"
	"time"

	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/workflow"
)

// Extension is implemented by every extension.
type Extension interface {
	Name() string
}

// WorkflowStarted fires when a run is created.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, r *workflow.Run) error
}

// WorkflowStepCompleted fires after a step is checkpointed.
type WorkflowStepCompleted interface {
	OnWorkflowStepCompleted(ctx context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error
}

// WorkflowStepFailed fires when a step attempt fails.
type WorkflowStepFailed interface {
	OnWorkflowStepFailed(ctx context.Context, r *workflow.Run, stepName string, err error) error
}

// WorkflowSuspended fires when a run is persisted as sleeping, either at
// a durable sleep or for a retry backoff.
type WorkflowSuspended interface {
	OnWorkflowSuspended(ctx context.Context, r *workflow.Run, wakeAt time.Time) error
}

// WorkflowCompleted fires when a run completes.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error
}

// WorkflowFailed fires when a run fails terminally.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, r *workflow.Run, err error) error
}

// WorkflowCanceled fires when a run ends canceled.
type WorkflowCanceled interface {
	OnWorkflowCanceled(ctx context.Context, r *workflow.Run) error
}

// CronFired fires after a cron entry started a workflow run.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, runID id.RunID) error
}

// GuestRegistered fires after a registration changed an event's guest
// list. Status is the guest's resulting status.
type GuestRegistered interface {
	OnGuestRegistered(ctx context.Context, eventID id.EventID, guestID id.GuestID, status string) error
}

// GuestPromoted fires when a waitlisted guest is moved to going.
type GuestPromoted interface {
	OnGuestPromoted(ctx context.Context, eventID id.EventID, guestID id.GuestID) error
}

// Shutdown fires during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
