package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/id"
)

// RegisterWorker adds or replaces a worker record.
func (s *Store) RegisterWorker(ctx context.Context, w *cluster.Worker) error {
	wID := w.ID.String()
	data, err := marshal(w)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, workerKey(wID), data, 0)
		pipe.SAdd(ctx, workerIDsKey, wID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sps/redis: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker and releases its leadership.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	wID := workerID.String()
	n, err := s.rdb.Exists(ctx, workerKey(wID)).Result()
	if err != nil {
		return fmt.Errorf("sps/redis: deregister worker: %w", err)
	}
	if n == 0 {
		return sps.ErrWorkerNotFound
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, workerKey(wID))
		pipe.SRem(ctx, workerIDsKey, wID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sps/redis: deregister worker: %w", err)
	}

	err = s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		leader, err := tx.Get(ctx, leaderKey).Result()
		if err != nil || leader != wID {
			return nil //nolint:nilerr // no lease held by this worker
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, leaderKey)
			return nil
		})
		return err
	}, leaderKey)
	if err != nil && !errors.Is(err, goredis.TxFailedErr) {
		s.logger.Warn("failed to release leadership on deregister", "error", err)
	}
	return nil
}

// modifyWorker applies fn to the stored worker under WATCH.
func (s *Store) modifyWorker(ctx context.Context, wID string, fn func(w *cluster.Worker)) error {
	key := workerKey(wID)
	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		var w cluster.Worker
		if err := getEntity(ctx, tx, key, &w); err != nil {
			if isNotFound(err) {
				return sps.ErrWorkerNotFound
			}
			return err
		}
		fn(&w)
		data, err := marshal(&w)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, sps.ErrWorkerNotFound) {
		return fmt.Errorf("sps/redis: update worker: %w", err)
	}
	return err
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	return s.modifyWorker(ctx, workerID.String(), func(w *cluster.Worker) {
		w.LastSeen = time.Now().UTC()
		if w.State == cluster.WorkerDead {
			w.State = cluster.WorkerActive
		}
	})
}

// ListWorkers returns all registered workers.
func (s *Store) ListWorkers(ctx context.Context) ([]*cluster.Worker, error) {
	ids, err := s.rdb.SMembers(ctx, workerIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("sps/redis: list workers: %w", err)
	}

	workers := make([]*cluster.Worker, 0, len(ids))
	for _, wID := range ids {
		var w cluster.Worker
		if getErr := getEntity(ctx, s.rdb, workerKey(wID), &w); getErr != nil {
			if isNotFound(getErr) {
				continue
			}
			return nil, fmt.Errorf("sps/redis: list workers: %w", getErr)
		}
		workers = append(workers, &w)
	}
	sort.Slice(workers, func(i, k int) bool {
		return workers[i].CreatedAt.Before(workers[k].CreatedAt)
	})
	return workers, nil
}

// ReapDeadWorkers marks workers not seen within threshold as dead.
func (s *Store) ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	workers, err := s.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-threshold)
	var dead []*cluster.Worker
	for _, w := range workers {
		if w.State == cluster.WorkerDead || !w.LastSeen.Before(cutoff) {
			continue
		}
		var reaped bool
		err := s.modifyWorker(ctx, w.ID.String(), func(cur *cluster.Worker) {
			if cur.State != cluster.WorkerDead && cur.LastSeen.Before(cutoff) {
				cur.State = cluster.WorkerDead
				reaped = true
			}
		})
		if err != nil && !errors.Is(err, sps.ErrWorkerNotFound) {
			return dead, err
		}
		if reaped {
			w.State = cluster.WorkerDead
			dead = append(dead, w)
		}
	}
	return dead, nil
}

func (s *Store) markLeader(ctx context.Context, wID string, ttl time.Duration) {
	until := time.Now().UTC().Add(ttl)
	err := s.modifyWorker(ctx, wID, func(w *cluster.Worker) {
		w.IsLeader = true
		w.LeaderUntil = &until
	})
	if err != nil && !errors.Is(err, sps.ErrWorkerNotFound) {
		s.logger.Warn("failed to update leader fields", "error", err)
	}
}

// AcquireLeadership takes the lease with SET NX PX.
func (s *Store) AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	wID := workerID.String()

	ok, err := s.rdb.SetNX(ctx, leaderKey, wID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("sps/redis: acquire leadership: %w", err)
	}
	if ok {
		s.markLeader(ctx, wID, ttl)
		return true, nil
	}
	return s.RenewLeadership(ctx, workerID, ttl)
}

// RenewLeadership extends the lease if workerID holds it.
func (s *Store) RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	wID := workerID.String()
	var renewed bool
	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, leaderKey).Result()
		if isRedisNil(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != wID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.PExpire(ctx, leaderKey, ttl)
			return nil
		})
		renewed = err == nil
		return err
	}, leaderKey)
	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sps/redis: renew leadership: %w", err)
	}
	if renewed {
		s.markLeader(ctx, wID, ttl)
	}
	return renewed, nil
}

// GetLeader returns the current leader, or nil if the lease is free.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Worker, error) {
	wID, err := s.rdb.Get(ctx, leaderKey).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil //nolint:nilnil // no leader is not an error
		}
		return nil, fmt.Errorf("sps/redis: get leader: %w", err)
	}

	var w cluster.Worker
	if err := getEntity(ctx, s.rdb, workerKey(wID), &w); err != nil {
		if isNotFound(err) {
			return nil, nil //nolint:nilnil // lease held by a deregistered worker
		}
		return nil, fmt.Errorf("sps/redis: get leader: %w", err)
	}
	return &w, nil
}
