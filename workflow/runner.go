package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/backoff"
	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/middleware"
)

// Runner starts, resumes and cancels workflow runs.
type Runner struct {
	registry *Registry
	store    Store
	emitter  RunEmitter
	logger   *slog.Logger

	id          string
	clock       clock.Clock
	backoff     backoff.Strategy
	maxAttempts int
	lease       time.Duration
	chain       middleware.Middleware
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock sets the time source used for sleeps, backoff and leases.
func WithClock(c clock.Clock) RunnerOption { return func(r *Runner) { r.clock = c } }

// WithBackoff sets the delay between failed step attempts.
func WithBackoff(s backoff.Strategy) RunnerOption { return func(r *Runner) { r.backoff = s } }

// WithMaxAttempts sets how many consecutive failures of one step are
// tolerated before the run fails. Zero retries forever.
func WithMaxAttempts(n int) RunnerOption { return func(r *Runner) { r.maxAttempts = n } }

// WithLease sets how long an executing run stays owned by its runner
// between step boundaries.
func WithLease(d time.Duration) RunnerOption { return func(r *Runner) { r.lease = d } }

// WithMiddleware wraps every Do step attempt.
func WithMiddleware(mws ...middleware.Middleware) RunnerOption {
	return func(r *Runner) { r.chain = middleware.Chain(mws...) }
}

// NewRunner creates a runner.
func NewRunner(registry *Registry, store Store, emitter RunEmitter, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:    registry,
		store:       store,
		emitter:     emitter,
		logger:      logger,
		id:          "runner-" + id.NewWorkerID().String(),
		clock:       clock.Real{},
		backoff:     backoff.Default(),
		maxAttempts: 20,
		lease:       5 * time.Minute,
		chain:       middleware.Chain(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the workflow registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Start creates a run of the named workflow with a JSON-encoded input
// and executes it until it first suspends or finishes.
func Start[T any](ctx context.Context, runner *Runner, name string, input T) (*Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", name, err)
	}
	return runner.StartRaw(ctx, name, data)
}

// StartRaw is Start with pre-encoded input.
func (r *Runner) StartRaw(ctx context.Context, name string, input []byte) (*Run, error) {
	if _, ok := r.registry.Get(name); !ok {
		return nil, fmt.Errorf("start %q: %w", name, sps.ErrWorkflowNotFound)
	}

	now := r.clock.Now().UTC()
	run := &Run{
		Entity:      sps.NewEntity(),
		ID:          id.NewRunID(),
		Name:        name,
		State:       RunStateRunning,
		Input:       input,
		LockedBy:    r.id,
		LockedUntil: now.Add(r.lease),
		StartedAt:   now,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run for workflow %q: %w", name, err)
	}
	r.emitter.EmitWorkflowStarted(ctx, run)

	return run, r.execute(ctx, run)
}

// ClaimDue leases up to limit due runs to workerID.
func (r *Runner) ClaimDue(ctx context.Context, workerID string, limit int) ([]*Run, error) {
	return r.store.ClaimDueRuns(ctx, r.clock.Now().UTC(), workerID, r.lease, limit)
}

// Execute replays a run previously returned by ClaimDue.
func (r *Runner) Execute(ctx context.Context, run *Run) error {
	return r.execute(ctx, run)
}

// ResumeDue claims and executes due runs inline, for hosts without a
// worker pool. Every claimed run is executed even if an earlier one
// fails to persist; the failures are joined. It returns how many runs
// were executed.
func (r *Runner) ResumeDue(ctx context.Context, limit int) (int, error) {
	runs, err := r.ClaimDue(ctx, r.id, limit)
	if err != nil {
		return 0, fmt.Errorf("claim due runs: %w", err)
	}
	var errs []error
	for _, run := range runs {
		if err := r.execute(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return len(runs), errors.Join(errs...)
}

// Resume executes a non-terminal run now, regardless of its wake time.
// Sleeps whose saved target is still ahead suspend the run again.
func (r *Runner) Resume(ctx context.Context, runID id.RunID) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State.Terminal() {
		return fmt.Errorf("resume run %s in state %q: %w", runID, run.State, sps.ErrInvalidState)
	}

	run.State = RunStateRunning
	run.LockedBy = r.id
	run.LockedUntil = r.clock.Now().UTC().Add(r.lease)
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("lease run %s: %w", runID, err)
	}
	return r.execute(ctx, run)
}

// Cancel requests cancellation. A sleeping run is canceled at once; an
// executing run finishes its current step and ends canceled at the next
// step boundary.
func (r *Runner) Cancel(ctx context.Context, runID id.RunID) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State.Terminal() {
		return fmt.Errorf("cancel run %s in state %q: %w", runID, run.State, sps.ErrInvalidState)
	}

	now := r.clock.Now().UTC()
	run.CanceledAt = &now
	if run.State == RunStateSleeping {
		run.State = RunStateCanceled
		run.CompletedAt = &now
	}
	run.UpdatedAt = now
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("cancel run %s: %w", runID, err)
	}
	if run.State == RunStateCanceled {
		r.emitter.EmitWorkflowCanceled(ctx, run)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, run *Run) error {
	fn, ok := r.registry.Get(run.Name)
	if !ok {
		return r.finish(ctx, run, fmt.Errorf("run %s: %w", run.ID, sps.ErrWorkflowNotFound))
	}
	if run.CanceledAt != nil {
		return r.finish(ctx, run, ErrRunCanceled)
	}

	wf := &Workflow{ctx: ctx, run: run, runner: r}
	return r.finish(ctx, run, r.invoke(wf, fn))
}

func (r *Runner) invoke(wf *Workflow, fn RunnerFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("workflow %s panicked: %v", wf.run.Name, p)
		}
	}()
	return fn(wf, wf.run.Input)
}

// finish maps the handler's outcome to a run state and persists it. The
// write uses a context detached from ctx so a shutdown does not lose the
// outcome of work that already happened.
func (r *Runner) finish(ctx context.Context, run *Run, err error) error {
	now := r.clock.Now().UTC()
	run.LockedBy = ""
	run.LockedUntil = time.Time{}
	run.UpdatedAt = now

	var (
		suspend *SuspendError
		stepErr *StepError
		emit    func()
	)
	switch {
	case err == nil:
		run.State = RunStateCompleted
		run.Error = ""
		run.CompletedAt = &now
		elapsed := now.Sub(run.StartedAt)
		emit = func() { r.emitter.EmitWorkflowCompleted(ctx, run, elapsed) }

	case errors.As(err, &suspend):
		run.State = RunStateSleeping
		run.WakeAt = suspend.WakeAt
		if run.Attempt == 0 {
			run.Error = ""
		}
		emit = func() { r.emitter.EmitWorkflowSuspended(ctx, run, suspend.WakeAt) }

	case errors.Is(err, ErrRunCanceled):
		run.State = RunStateCanceled
		run.CompletedAt = &now
		emit = func() { r.emitter.EmitWorkflowCanceled(ctx, run) }

	case errors.As(err, &stepErr):
		run.Attempt++
		run.Error = err.Error()
		if r.maxAttempts > 0 && run.Attempt >= r.maxAttempts {
			run.State = RunStateFailed
			run.CompletedAt = &now
			emit = func() { r.emitter.EmitWorkflowFailed(ctx, run, err) }
			break
		}
		run.State = RunStateSleeping
		run.WakeAt = now.Add(r.backoff.Delay(run.Attempt))
		r.logger.Warn("workflow step failed, retry scheduled",
			slog.String("workflow", run.Name),
			slog.String("run_id", run.ID.String()),
			slog.String("step", stepErr.Step),
			slog.Int("attempt", run.Attempt),
			slog.Time("wake_at", run.WakeAt),
			slog.String("error", stepErr.Err.Error()),
		)
		emit = func() { r.emitter.EmitWorkflowSuspended(ctx, run, run.WakeAt) }

	default:
		run.State = RunStateFailed
		run.Error = err.Error()
		run.CompletedAt = &now
		emit = func() { r.emitter.EmitWorkflowFailed(ctx, run, err) }
	}

	if updateErr := r.store.UpdateRun(context.WithoutCancel(ctx), run); updateErr != nil {
		r.logger.Error("failed to persist run outcome",
			slog.String("run_id", run.ID.String()),
			slog.String("state", string(run.State)),
			slog.String("error", updateErr.Error()),
		)
		return fmt.Errorf("update run %s: %w", run.ID, updateErr)
	}
	emit()
	return nil
}
