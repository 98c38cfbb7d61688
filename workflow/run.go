package workflow

import (
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
)

// RunState is the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateRunning means a runner is replaying the handler now, or
	// crashed while doing so.
	RunStateRunning RunState = "running"
	// RunStateSleeping means the run is suspended until WakeAt.
	RunStateSleeping RunState = "sleeping"
	// RunStateCompleted means the handler returned nil.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means the run gave up.
	RunStateFailed RunState = "failed"
	// RunStateCanceled means a cancel request was honored.
	RunStateCanceled RunState = "canceled"
)

// Terminal reports whether no further execution will happen.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed || s == RunStateCanceled
}

// Run is one execution of a workflow.
type Run struct {
	sps.Entity

	ID    id.RunID `json:"id"`
	Name  string   `json:"name"`
	State RunState `json:"state"`
	Input []byte   `json:"input,omitempty"`
	Error string   `json:"error,omitempty"`

	// Attempt counts consecutive failures of the current step.
	Attempt int `json:"attempt"`
	// WakeAt is when a sleeping run becomes due.
	WakeAt time.Time `json:"wake_at"`

	// LockedBy and LockedUntil form the execution lease.
	LockedBy    string    `json:"locked_by,omitempty"`
	LockedUntil time.Time `json:"locked_until"`

	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Due reports whether a worker may claim the run at now: a sleeping run
// whose wake time has passed, or a running run whose lease expired.
func (r *Run) Due(now time.Time) bool {
	switch r.State {
	case RunStateSleeping:
		return !r.WakeAt.After(now)
	case RunStateRunning:
		return r.LockedUntil.Before(now)
	default:
		return false
	}
}
