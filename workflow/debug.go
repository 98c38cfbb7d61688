package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
)

// TimelineEntry is one completed step of a run.
type TimelineEntry struct {
	StepName  string    `json:"step_name"`
	Data      []byte    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GetTimeline returns a run's checkpoints as a chronological history.
// Sleep steps appear under their "sleep:" name with the wake-up instant
// as data.
func (r *Runner) GetTimeline(ctx context.Context, runID id.RunID) ([]TimelineEntry, error) {
	checkpoints, err := r.store.ListCheckpoints(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for run %s: %w", runID, err)
	}

	// IDs are K-sortable and break timestamp ties.
	sort.SliceStable(checkpoints, func(i, j int) bool {
		a, b := checkpoints[i], checkpoints[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID.String() < b.ID.String()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	entries := make([]TimelineEntry, len(checkpoints))
	for i, cp := range checkpoints {
		entries[i] = TimelineEntry{StepName: cp.StepName, Data: cp.Data, CreatedAt: cp.CreatedAt}
	}
	return entries, nil
}

// InspectStep returns the raw checkpoint of one step.
func (r *Runner) InspectStep(ctx context.Context, runID id.RunID, stepName string) ([]byte, error) {
	data, ok, err := r.store.GetCheckpoint(ctx, runID, stepName)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %q for run %s: %w", stepName, runID, err)
	}
	if !ok {
		return nil, sps.NotFound("inspect step", fmt.Sprintf("no checkpoint %q for run %s", stepName, runID))
	}
	return data, nil
}

// ReplayFrom forgets every step completed after fromStep and makes the
// run due immediately. Steps up to and including fromStep stay
// checkpointed; later steps run their effects again. Canceled runs
// cannot be replayed.
func (r *Runner) ReplayFrom(ctx context.Context, runID id.RunID, fromStep string) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State == RunStateCanceled {
		return fmt.Errorf("replay run %s: %w", runID, sps.ErrInvalidState)
	}

	if _, ok, err := r.store.GetCheckpoint(ctx, runID, fromStep); err != nil {
		return fmt.Errorf("get checkpoint %q for run %s: %w", fromStep, runID, err)
	} else if !ok {
		return sps.NotFound("replay", fmt.Sprintf("no checkpoint %q for run %s", fromStep, runID))
	}

	if err := r.store.DeleteCheckpointsAfter(ctx, runID, fromStep); err != nil {
		return fmt.Errorf("delete checkpoints after %q for run %s: %w", fromStep, runID, err)
	}

	now := r.clock.Now().UTC()
	run.State = RunStateSleeping
	run.WakeAt = now
	run.Attempt = 0
	run.Error = ""
	run.CompletedAt = nil
	run.LockedBy = ""
	run.LockedUntil = time.Time{}
	run.UpdatedAt = now
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("reset run %s: %w", runID, err)
	}
	return nil
}
