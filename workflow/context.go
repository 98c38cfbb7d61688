package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zephraph/sps/id"
)

// StepEmitter receives step lifecycle events.
type StepEmitter interface {
	EmitStepCompleted(ctx context.Context, run *Run, stepName string, elapsed time.Duration)
	EmitStepFailed(ctx context.Context, run *Run, stepName string, err error)
}

// RunEmitter receives run lifecycle events. ext.Registry satisfies it
// through an adapter in package engine.
type RunEmitter interface {
	StepEmitter
	EmitWorkflowStarted(ctx context.Context, run *Run)
	EmitWorkflowSuspended(ctx context.Context, run *Run, wakeAt time.Time)
	EmitWorkflowCompleted(ctx context.Context, run *Run, elapsed time.Duration)
	EmitWorkflowFailed(ctx context.Context, run *Run, err error)
	EmitWorkflowCanceled(ctx context.Context, run *Run)
}

// ErrRunCanceled is returned from a step when the run has been canceled.
// Handlers should return it unchanged.
var ErrRunCanceled = errors.New("workflow: run canceled")

// SuspendError is returned from a sleep whose wake-up instant is still in
// the future. Handlers should return it unchanged; the runner persists
// the run as sleeping until WakeAt.
type SuspendError struct {
	Step   string
	WakeAt time.Time
}

func (e *SuspendError) Error() string {
	return fmt.Sprintf("workflow: suspended at %q until %s", e.Step, e.WakeAt.Format(time.RFC3339))
}

// StepError is a failed step attempt. The step is not checkpointed and
// the run is retried after a backoff delay.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %q: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Workflow is handed to a workflow handler. Its methods are the only
// durable operations; anything else the handler does runs again on
// every replay.
type Workflow struct {
	ctx    context.Context
	run    *Run
	runner *Runner
}

// Context returns the run's context.
func (w *Workflow) Context() context.Context { return w.ctx }

// RunID returns the run ID.
func (w *Workflow) RunID() id.RunID { return w.run.ID }

// Run returns the run being executed.
func (w *Workflow) Run() *Run { return w.run }

// Now returns the runner's clock reading.
func (w *Workflow) Now() time.Time { return w.runner.clock.Now() }

// Logger returns a logger carrying the run's attributes.
func (w *Workflow) Logger() *slog.Logger {
	return w.runner.logger.With(
		slog.String("workflow", w.run.Name),
		slog.String("run_id", w.run.ID.String()),
	)
}

// boundary runs before any step that has not completed yet: it observes
// cancel requests and extends the execution lease.
func (w *Workflow) boundary(step string) error {
	cur, err := w.runner.store.GetRun(w.ctx, w.run.ID)
	if err != nil {
		return &StepError{Step: step, Err: fmt.Errorf("reload run: %w", err)}
	}
	if cur.CanceledAt != nil {
		w.run.CanceledAt = cur.CanceledAt
		return ErrRunCanceled
	}
	w.run.LockedUntil = w.runner.clock.Now().UTC().Add(w.runner.lease)
	if err := w.runner.store.UpdateRun(w.ctx, w.run); err != nil {
		return &StepError{Step: step, Err: fmt.Errorf("extend lease: %w", err)}
	}
	return nil
}
