package audithook

// Audit actions, one per lifecycle hook.
const (
	ActionWorkflowStarted       = "workflow.started"
	ActionWorkflowStepCompleted = "workflow.step_completed"
	ActionWorkflowStepFailed    = "workflow.step_failed"
	ActionWorkflowSuspended     = "workflow.suspended"
	ActionWorkflowCompleted     = "workflow.completed"
	ActionWorkflowFailed        = "workflow.failed"
	ActionWorkflowCanceled      = "workflow.canceled"
	ActionCronFired             = "cron.fired"
	ActionGuestRegistered       = "guest.registered"
	ActionGuestPromoted         = "guest.promoted"
)

// Categories group related actions.
const (
	CategoryWorkflow = "sps.workflow"
	CategoryCron     = "sps.cron"
	CategoryRSVP     = "sps.rsvp"
)

// Resource types.
const (
	ResourceWorkflow = "workflow_run"
	ResourceCron     = "cron_entry"
	ResourceEvent    = "event"
)

// AllActions returns every action the extension emits.
func AllActions() []string {
	return []string{
		ActionWorkflowStarted,
		ActionWorkflowStepCompleted,
		ActionWorkflowStepFailed,
		ActionWorkflowSuspended,
		ActionWorkflowCompleted,
		ActionWorkflowFailed,
		ActionWorkflowCanceled,
		ActionCronFired,
		ActionGuestRegistered,
		ActionGuestPromoted,
	}
}
