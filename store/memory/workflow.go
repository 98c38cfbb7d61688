package memory

import (
	"context"
	"sort"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/workflow"
)

func cloneRun(r *workflow.Run) *workflow.Run {
	c := *r
	c.Input = cloneBytes(r.Input)
	c.CanceledAt = cloneTime(r.CanceledAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	return &c
}

// CreateRun persists a new workflow run.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return sps.ErrRunExists
	}
	m.runs[key] = cloneRun(run)
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, sps.ErrRunNotFound
	}
	return cloneRun(r), nil
}

// UpdateRun replaces a run, keeping a stored CanceledAt.
func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	existing, ok := m.runs[key]
	if !ok {
		return sps.ErrRunNotFound
	}
	next := cloneRun(run)
	if next.CanceledAt == nil && existing.CanceledAt != nil {
		next.CanceledAt = cloneTime(existing.CanceledAt)
	}
	m.runs[key] = next
	return nil
}

// ListRuns returns workflow runs matching the given options.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Name != "" && r.Name != opts.Name {
			continue
		}
		result = append(result, cloneRun(r))
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].ID.String() < result[k].ID.String()
		}
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// ClaimDueRuns leases due runs, earliest wake time first.
func (m *Store) ClaimDueRuns(_ context.Context, now time.Time, workerID string, lease time.Duration, limit int) ([]*workflow.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*workflow.Run
	for _, r := range m.runs {
		if r.Due(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].WakeAt.Before(due[k].WakeAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*workflow.Run, 0, len(due))
	for _, r := range due {
		r.State = workflow.RunStateRunning
		r.LockedBy = workerID
		r.LockedUntil = now.Add(lease)
		r.UpdatedAt = now
		out = append(out, cloneRun(r))
	}
	return out, nil
}

// SaveCheckpoint records a step result. Checkpoint times are strictly
// increasing so creation order survives equal wall-clock readings.
func (m *Store) SaveCheckpoint(_ context.Context, runID id.RunID, stepName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if data == nil {
		data = []byte{}
	}
	now := time.Now().UTC()
	if !now.After(m.lastCkptAt) {
		now = m.lastCkptAt.Add(time.Nanosecond)
	}
	m.lastCkptAt = now

	key := runID.String()
	for _, cp := range m.checkpoints[key] {
		if cp.StepName == stepName {
			cp.Data = cloneBytes(data)
			return nil
		}
	}
	m.checkpoints[key] = append(m.checkpoints[key], &workflow.Checkpoint{
		ID:        id.NewCheckpointID(),
		RunID:     runID,
		StepName:  stepName,
		Data:      cloneBytes(data),
		CreatedAt: now,
	})
	return nil
}

// GetCheckpoint retrieves checkpoint data for a workflow step.
func (m *Store) GetCheckpoint(_ context.Context, runID id.RunID, stepName string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cp := range m.checkpoints[runID.String()] {
		if cp.StepName == stepName {
			return cloneBytes(cp.Data), true, nil
		}
	}
	return nil, false, nil
}

// ListCheckpoints returns a run's checkpoints in creation order.
func (m *Store) ListCheckpoints(_ context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.checkpoints[runID.String()]
	out := make([]*workflow.Checkpoint, 0, len(list))
	for _, cp := range list {
		c := *cp
		c.Data = cloneBytes(cp.Data)
		out = append(out, &c)
	}
	return out, nil
}

// DeleteCheckpointsAfter drops every checkpoint saved after afterStep.
func (m *Store) DeleteCheckpointsAfter(_ context.Context, runID id.RunID, afterStep string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runID.String()
	list := m.checkpoints[key]
	for i, cp := range list {
		if cp.StepName == afterStep {
			m.checkpoints[key] = list[:i+1]
			return nil
		}
	}
	return sps.NotFound("delete checkpoints", "no checkpoint "+afterStep+" for run "+key)
}
