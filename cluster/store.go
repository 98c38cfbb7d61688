package cluster

import (
	"context"
	"time"

	"github.com/zephraph/sps/id"
)

// Store persists worker registrations and the leadership lease.
type Store interface {
	RegisterWorker(ctx context.Context, w *Worker) error
	DeregisterWorker(ctx context.Context, workerID id.WorkerID) error

	// HeartbeatWorker refreshes LastSeen. It returns sps.ErrWorkerNotFound
	// for unknown workers.
	HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error

	ListWorkers(ctx context.Context) ([]*Worker, error)

	// ReapDeadWorkers marks workers not seen within threshold as dead and
	// returns them.
	ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*Worker, error)

	// AcquireLeadership takes the lease if nobody holds an unexpired one.
	AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// RenewLeadership extends the lease if workerID holds it.
	RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// GetLeader returns the current leader, or nil when the lease is free.
	GetLeader(ctx context.Context) (*Worker, error)
}

// IsLeader reports whether workerID holds the leadership lease.
func IsLeader(ctx context.Context, s Store, workerID id.WorkerID) (bool, error) {
	leader, err := s.GetLeader(ctx)
	if err != nil {
		return false, err
	}
	return leader != nil && leader.ID.String() == workerID.String(), nil
}
