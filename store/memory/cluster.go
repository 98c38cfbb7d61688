package memory

import (
	"context"
	"sort"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/id"
)

func cloneWorker(w *cluster.Worker) *cluster.Worker {
	c := *w
	c.LeaderUntil = cloneTime(w.LeaderUntil)
	if w.Metadata != nil {
		c.Metadata = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// RegisterWorker adds or replaces a worker record.
func (m *Store) RegisterWorker(_ context.Context, w *cluster.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers[w.ID.String()] = cloneWorker(w)
	return nil
}

// DeregisterWorker removes a worker and gives up its leadership.
func (m *Store) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workerID.String()
	if _, ok := m.workers[key]; !ok {
		return sps.ErrWorkerNotFound
	}
	delete(m.workers, key)
	if m.leader == key {
		m.leader = ""
		m.leaderUntil = time.Time{}
	}
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (m *Store) HeartbeatWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return sps.ErrWorkerNotFound
	}
	w.LastSeen = time.Now().UTC()
	if w.State == cluster.WorkerDead {
		w.State = cluster.WorkerActive
	}
	return nil
}

// ListWorkers returns all registered workers.
func (m *Store) ListWorkers(_ context.Context) ([]*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		result = append(result, cloneWorker(w))
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ReapDeadWorkers marks workers not seen within threshold as dead.
func (m *Store) ReapDeadWorkers(_ context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var dead []*cluster.Worker
	for _, w := range m.workers {
		if w.State != cluster.WorkerDead && w.LastSeen.Before(cutoff) {
			w.State = cluster.WorkerDead
			dead = append(dead, cloneWorker(w))
		}
	}
	return dead, nil
}

// AcquireLeadership attempts to become the cluster leader.
func (m *Store) AcquireLeadership(_ context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := workerID.String()
	if m.leader != "" && m.leader != key && m.leaderUntil.After(now) {
		return false, nil
	}

	if prev, ok := m.workers[m.leader]; ok && m.leader != key {
		prev.IsLeader = false
		prev.LeaderUntil = nil
	}
	m.leader = key
	m.leaderUntil = now.Add(ttl)
	if w, ok := m.workers[key]; ok {
		w.IsLeader = true
		until := m.leaderUntil
		w.LeaderUntil = &until
	}
	return true, nil
}

// RenewLeadership extends the lease if workerID holds it.
func (m *Store) RenewLeadership(_ context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := workerID.String()
	if m.leader != key || m.leaderUntil.Before(now) {
		return false, nil
	}
	m.leaderUntil = now.Add(ttl)
	if w, ok := m.workers[key]; ok {
		until := m.leaderUntil
		w.LeaderUntil = &until
	}
	return true, nil
}

// GetLeader returns the current leader, or nil if the lease is free.
func (m *Store) GetLeader(_ context.Context) (*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.leader == "" || m.leaderUntil.Before(time.Now().UTC()) {
		return nil, nil //nolint:nilnil // no leader is not an error
	}
	w, ok := m.workers[m.leader]
	if !ok {
		return nil, nil //nolint:nilnil // leader without a worker record
	}
	return cloneWorker(w), nil
}
