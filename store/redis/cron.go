package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/id"
)

// RegisterCron persists a new cron entry. The name index is claimed with
// HSETNX so concurrent registrations of one name cannot both succeed.
func (s *Store) RegisterCron(ctx context.Context, entry *cron.Entry) error {
	eID := entry.ID.String()

	ok, err := s.rdb.HSetNX(ctx, cronNamesKey, entry.Name, eID).Result()
	if err != nil {
		return fmt.Errorf("sps/redis: register cron name: %w", err)
	}
	if !ok {
		return sps.ErrDuplicateCron
	}

	stored := *entry
	stored.LockedBy = ""
	stored.LockedUntil = nil
	data, err := marshal(&stored)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, cronKey(eID), data, 0)
		pipe.SAdd(ctx, cronIDsKey, eID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sps/redis: register cron: %w", err)
	}
	return nil
}

// loadCron reads an entry and fills its lock fields from the lock key.
func (s *Store) loadCron(ctx context.Context, eID string) (*cron.Entry, error) {
	var e cron.Entry
	if err := getEntity(ctx, s.rdb, cronKey(eID), &e); err != nil {
		if isNotFound(err) {
			return nil, sps.ErrCronNotFound
		}
		return nil, fmt.Errorf("sps/redis: get cron: %w", err)
	}

	holder, err := s.rdb.Get(ctx, cronLockKey(eID)).Result()
	switch {
	case err == nil:
		ttl, ttlErr := s.rdb.PTTL(ctx, cronLockKey(eID)).Result()
		if ttlErr == nil && ttl > 0 {
			until := time.Now().UTC().Add(ttl)
			e.LockedBy = holder
			e.LockedUntil = &until
		}
	case isRedisNil(err):
	default:
		return nil, fmt.Errorf("sps/redis: get cron lock: %w", err)
	}
	return &e, nil
}

// GetCron retrieves a cron entry by ID.
func (s *Store) GetCron(ctx context.Context, entryID id.CronID) (*cron.Entry, error) {
	return s.loadCron(ctx, entryID.String())
}

// GetCronByName retrieves a cron entry by its unique name.
func (s *Store) GetCronByName(ctx context.Context, name string) (*cron.Entry, error) {
	eID, err := s.rdb.HGet(ctx, cronNamesKey, name).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, sps.ErrCronNotFound
		}
		return nil, fmt.Errorf("sps/redis: get cron by name: %w", err)
	}
	return s.loadCron(ctx, eID)
}

// ListCrons returns all cron entries.
func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	ids, err := s.rdb.SMembers(ctx, cronIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("sps/redis: list crons: %w", err)
	}

	entries := make([]*cron.Entry, 0, len(ids))
	for _, eID := range ids {
		e, getErr := s.loadCron(ctx, eID)
		if errors.Is(getErr, sps.ErrCronNotFound) {
			continue
		}
		if getErr != nil {
			return nil, getErr
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, k int) bool {
		return entries[i].CreatedAt.Before(entries[k].CreatedAt)
	})
	return entries, nil
}

func (s *Store) cronExists(ctx context.Context, eID string) error {
	n, err := s.rdb.Exists(ctx, cronKey(eID)).Result()
	if err != nil {
		return fmt.Errorf("sps/redis: cron exists: %w", err)
	}
	if n == 0 {
		return sps.ErrCronNotFound
	}
	return nil
}

// AcquireCronLock takes the entry lock with SET NX PX. A worker already
// holding the lock extends it.
func (s *Store) AcquireCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	eID := entryID.String()
	if err := s.cronExists(ctx, eID); err != nil {
		return false, err
	}

	ok, err := s.rdb.SetNX(ctx, cronLockKey(eID), workerID.String(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("sps/redis: acquire cron lock: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := s.rdb.Get(ctx, cronLockKey(eID)).Result()
	if err != nil && !isRedisNil(err) {
		return false, fmt.Errorf("sps/redis: acquire cron lock get: %w", err)
	}
	if holder != workerID.String() {
		return false, nil
	}
	if err := s.rdb.PExpire(ctx, cronLockKey(eID), ttl).Err(); err != nil {
		return false, fmt.Errorf("sps/redis: extend cron lock: %w", err)
	}
	return true, nil
}

// ReleaseCronLock deletes the lock if workerID holds it.
func (s *Store) ReleaseCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID) error {
	eID := entryID.String()
	if err := s.cronExists(ctx, eID); err != nil {
		return err
	}

	key := cronLockKey(eID)
	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		holder, err := tx.Get(ctx, key).Result()
		if isRedisNil(err) || (err == nil && holder != workerID.String()) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("sps/redis: release cron lock: %w", err)
	}
	return nil
}

// modifyCron applies fn to the stored entry under WATCH.
func (s *Store) modifyCron(ctx context.Context, eID string, fn func(e *cron.Entry)) error {
	key := cronKey(eID)
	txf := func(tx *goredis.Tx) error {
		var e cron.Entry
		if err := getEntity(ctx, tx, key, &e); err != nil {
			if isNotFound(err) {
				return sps.ErrCronNotFound
			}
			return err
		}
		fn(&e)
		data, err := marshal(&e)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for range 5 {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, sps.ErrCronNotFound) {
			return fmt.Errorf("sps/redis: update cron: %w", err)
		}
		return err
	}
	return fmt.Errorf("sps/redis: update cron %s: too much contention", eID)
}

// UpdateCronLastRun records when a cron entry last fired.
func (s *Store) UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error {
	return s.modifyCron(ctx, entryID.String(), func(e *cron.Entry) {
		e.LastRunAt = &at
	})
}

// UpdateCronEntry writes the mutable fields of an entry.
func (s *Store) UpdateCronEntry(ctx context.Context, entry *cron.Entry) error {
	return s.modifyCron(ctx, entry.ID.String(), func(e *cron.Entry) {
		e.Schedule = entry.Schedule
		e.Workflow = entry.Workflow
		e.Payload = entry.Payload
		e.NextRunAt = entry.NextRunAt
		if entry.LastRunAt != nil {
			e.LastRunAt = entry.LastRunAt
		}
		e.Enabled = entry.Enabled
		e.UpdatedAt = entry.UpdatedAt
	})
}

// DeleteCron removes a cron entry, its name index and its lock.
func (s *Store) DeleteCron(ctx context.Context, entryID id.CronID) error {
	eID := entryID.String()
	e, err := s.loadCron(ctx, eID)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, cronKey(eID), cronLockKey(eID))
		pipe.SRem(ctx, cronIDsKey, eID)
		pipe.HDel(ctx, cronNamesKey, e.Name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sps/redis: delete cron: %w", err)
	}
	return nil
}
