package memory

import (
	"context"
	"sort"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/id"
)

func cloneEntry(e *cron.Entry) *cron.Entry {
	c := *e
	c.Payload = cloneBytes(e.Payload)
	c.LastRunAt = cloneTime(e.LastRunAt)
	c.NextRunAt = cloneTime(e.NextRunAt)
	c.LockedUntil = cloneTime(e.LockedUntil)
	return &c
}

// RegisterCron persists a new cron entry.
func (m *Store) RegisterCron(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.crons {
		if e.Name == entry.Name {
			return sps.ErrDuplicateCron
		}
	}
	m.crons[entry.ID.String()] = cloneEntry(entry)
	return nil
}

// GetCron retrieves a cron entry by ID.
func (m *Store) GetCron(_ context.Context, entryID id.CronID) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return nil, sps.ErrCronNotFound
	}
	return cloneEntry(e), nil
}

// GetCronByName retrieves a cron entry by its unique name.
func (m *Store) GetCronByName(_ context.Context, name string) (*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.crons {
		if e.Name == name {
			return cloneEntry(e), nil
		}
	}
	return nil, sps.ErrCronNotFound
}

// ListCrons returns all cron entries.
func (m *Store) ListCrons(_ context.Context) ([]*cron.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cron.Entry, 0, len(m.crons))
	for _, e := range m.crons {
		result = append(result, cloneEntry(e))
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// AcquireCronLock attempts to acquire the lock for a cron entry.
func (m *Store) AcquireCronLock(_ context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return false, sps.ErrCronNotFound
	}

	now := time.Now().UTC()
	if e.LockedBy != "" && e.LockedBy != workerID.String() && e.LockedUntil != nil && e.LockedUntil.After(now) {
		return false, nil
	}

	e.LockedBy = workerID.String()
	until := now.Add(ttl)
	e.LockedUntil = &until
	return true, nil
}

// ReleaseCronLock releases the lock if workerID holds it.
func (m *Store) ReleaseCronLock(_ context.Context, entryID id.CronID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return sps.ErrCronNotFound
	}
	if e.LockedBy != workerID.String() {
		return nil
	}
	e.LockedBy = ""
	e.LockedUntil = nil
	return nil
}

// UpdateCronLastRun records when a cron entry last fired.
func (m *Store) UpdateCronLastRun(_ context.Context, entryID id.CronID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entryID.String()]
	if !ok {
		return sps.ErrCronNotFound
	}
	e.LastRunAt = &at
	return nil
}

// UpdateCronEntry writes the mutable fields of an entry. Lock fields are
// owned by the lock calls and are left alone.
func (m *Store) UpdateCronEntry(_ context.Context, entry *cron.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.crons[entry.ID.String()]
	if !ok {
		return sps.ErrCronNotFound
	}
	e.Schedule = entry.Schedule
	e.Workflow = entry.Workflow
	e.Payload = cloneBytes(entry.Payload)
	e.NextRunAt = cloneTime(entry.NextRunAt)
	if entry.LastRunAt != nil {
		e.LastRunAt = cloneTime(entry.LastRunAt)
	}
	e.Enabled = entry.Enabled
	e.UpdatedAt = entry.UpdatedAt
	return nil
}

// DeleteCron removes a cron entry by ID.
func (m *Store) DeleteCron(_ context.Context, entryID id.CronID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryID.String()
	if _, ok := m.crons[key]; !ok {
		return sps.ErrCronNotFound
	}
	delete(m.crons, key)
	return nil
}
