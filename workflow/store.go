package workflow

import (
	"context"
	"time"

	"github.com/zephraph/sps/id"
)

// ListOpts filters and pages run listings.
type ListOpts struct {
	Limit  int
	Offset int
	// State filters by run state. Empty means all.
	State RunState
	// Name filters by workflow name. Empty means all.
	Name string
}

// Store persists runs and their checkpoints.
type Store interface {
	// CreateRun persists a new run.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun returns sps.ErrRunNotFound when the run does not exist.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun replaces a run. It never clears a stored CanceledAt, so a
	// cancel request recorded while the run executes survives the
	// runner's final write.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns runs ordered by creation, oldest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// ClaimDueRuns atomically leases up to limit due runs (see Run.Due)
	// to workerID until now+lease, setting them running.
	ClaimDueRuns(ctx context.Context, now time.Time, workerID string, lease time.Duration, limit int) ([]*Run, error)

	// SaveCheckpoint records the result of a completed step. Saving the
	// same step twice replaces the data.
	SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error

	// GetCheckpoint returns the data saved for a step and whether one
	// exists. Completed steps with no result have empty, non-nil data.
	GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, bool, error)

	// ListCheckpoints returns a run's checkpoints in creation order.
	ListCheckpoints(ctx context.Context, runID id.RunID) ([]*Checkpoint, error)

	// DeleteCheckpointsAfter removes checkpoints created after afterStep.
	DeleteCheckpointsAfter(ctx context.Context, runID id.RunID, afterStep string) error
}
