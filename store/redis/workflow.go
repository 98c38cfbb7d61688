package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/workflow"
)

// dueScore is when a run becomes claimable, or false for terminal runs.
func dueScore(r *workflow.Run) (float64, bool) {
	switch r.State {
	case workflow.RunStateSleeping:
		return float64(r.WakeAt.UnixMilli()), true
	case workflow.RunStateRunning:
		return float64(r.LockedUntil.UnixMilli()), true
	default:
		return 0, false
	}
}

func writeRun(ctx context.Context, pipe goredis.Pipeliner, r *workflow.Run) error {
	data, err := marshal(r)
	if err != nil {
		return err
	}
	key := r.ID.String()
	pipe.Set(ctx, runKey(key), data, 0)
	if score, ok := dueScore(r); ok {
		pipe.ZAdd(ctx, runsDueKey, goredis.Z{Score: score, Member: key})
	} else {
		pipe.ZRem(ctx, runsDueKey, key)
	}
	return nil
}

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	key := run.ID.String()
	data, err := marshal(run)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, runKey(key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("sps/redis: create run: %w", err)
	}
	if !ok {
		return sps.ErrRunExists
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, runIDsKey, key)
		if score, due := dueScore(run); due {
			pipe.ZAdd(ctx, runsDueKey, goredis.Z{Score: score, Member: key})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sps/redis: create run indexes: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	var r workflow.Run
	if err := getEntity(ctx, s.rdb, runKey(runID.String()), &r); err != nil {
		if isNotFound(err) {
			return nil, sps.ErrRunNotFound
		}
		return nil, fmt.Errorf("sps/redis: get run: %w", err)
	}
	return &r, nil
}

// UpdateRun replaces a run, keeping a stored CanceledAt. The read and
// write happen under WATCH so a concurrent cancel is never lost.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	key := runKey(run.ID.String())
	txf := func(tx *goredis.Tx) error {
		var existing workflow.Run
		if err := getEntity(ctx, tx, key, &existing); err != nil {
			if isNotFound(err) {
				return sps.ErrRunNotFound
			}
			return err
		}
		next := *run
		if next.CanceledAt == nil && existing.CanceledAt != nil {
			next.CanceledAt = existing.CanceledAt
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return writeRun(ctx, pipe, &next)
		})
		return err
	}

	for range 5 {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, sps.ErrRunNotFound) {
			return fmt.Errorf("sps/redis: update run: %w", err)
		}
		return err
	}
	return fmt.Errorf("sps/redis: update run %s: too much contention", run.ID)
}

// ListRuns returns workflow runs matching the given options.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	ids, err := s.rdb.SMembers(ctx, runIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("sps/redis: list runs: %w", err)
	}

	runs := make([]*workflow.Run, 0, len(ids))
	for _, rID := range ids {
		var r workflow.Run
		if getErr := getEntity(ctx, s.rdb, runKey(rID), &r); getErr != nil {
			if isNotFound(getErr) {
				continue
			}
			return nil, fmt.Errorf("sps/redis: list runs: %w", getErr)
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Name != "" && r.Name != opts.Name {
			continue
		}
		runs = append(runs, &r)
	}

	sort.Slice(runs, func(i, k int) bool {
		if runs[i].CreatedAt.Equal(runs[k].CreatedAt) {
			return runs[i].ID.String() < runs[k].ID.String()
		}
		return runs[i].CreatedAt.Before(runs[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(runs) {
			return nil, nil
		}
		runs = runs[opts.Offset:]
	}
	if opts.Limit > 0 && len(runs) > opts.Limit {
		runs = runs[:opts.Limit]
	}
	return runs, nil
}

// ClaimDueRuns leases due runs. Each candidate is re-checked and written
// under WATCH; a run another worker claims first is skipped.
func (s *Store) ClaimDueRuns(ctx context.Context, now time.Time, workerID string, lease time.Duration, limit int) ([]*workflow.Run, error) {
	candidates, err := s.rdb.ZRangeByScore(ctx, runsDueKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("sps/redis: claim due runs: %w", err)
	}

	var claimed []*workflow.Run
	for _, rID := range candidates {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		key := runKey(rID)
		var run *workflow.Run
		err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			var r workflow.Run
			if err := getEntity(ctx, tx, key, &r); err != nil {
				return err
			}
			if !r.Due(now) {
				return nil
			}
			r.State = workflow.RunStateRunning
			r.LockedBy = workerID
			r.LockedUntil = now.Add(lease)
			r.UpdatedAt = now
			if _, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				return writeRun(ctx, pipe, &r)
			}); err != nil {
				return err
			}
			run = &r
			return nil
		}, key)
		switch {
		case err == nil:
			if run != nil {
				claimed = append(claimed, run)
			}
		case errors.Is(err, goredis.TxFailedErr), isNotFound(err):
		default:
			return claimed, fmt.Errorf("sps/redis: claim run %s: %w", rID, err)
		}
	}
	return claimed, nil
}

// SaveCheckpoint records a step result. Re-saving a step keeps its
// original position.
func (s *Store) SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error {
	rID := runID.String()

	var cp workflow.Checkpoint
	err := getCheckpoint(ctx, s.rdb, rID, stepName, &cp)
	switch {
	case err == nil:
	case isNotFound(err):
		cp = workflow.Checkpoint{
			ID:        id.NewCheckpointID(),
			RunID:     runID,
			StepName:  stepName,
			CreatedAt: time.Now().UTC(),
		}
	default:
		return fmt.Errorf("sps/redis: save checkpoint: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	cp.Data = data

	raw, err := marshal(&cp)
	if err != nil {
		return err
	}
	seq, err := s.rdb.Incr(ctx, checkpointSeqKey).Result()
	if err != nil {
		return fmt.Errorf("sps/redis: save checkpoint seq: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, checkpointsKey(rID), stepName, raw)
		pipe.ZAddNX(ctx, checkpointOrderKey(rID), goredis.Z{Score: float64(seq), Member: stepName})
		return nil
	})
	if err != nil {
		return fmt.Errorf("sps/redis: save checkpoint: %w", err)
	}
	return nil
}

func getCheckpoint(ctx context.Context, c goredis.Cmdable, runID, stepName string, cp *workflow.Checkpoint) error {
	raw, err := c.HGet(ctx, checkpointsKey(runID), stepName).Bytes()
	if err != nil {
		if isRedisNil(err) {
			return errNotFound
		}
		return err
	}
	return json.Unmarshal(raw, cp)
}

// GetCheckpoint retrieves checkpoint data for a workflow step.
func (s *Store) GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, bool, error) {
	var cp workflow.Checkpoint
	if err := getCheckpoint(ctx, s.rdb, runID.String(), stepName, &cp); err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sps/redis: get checkpoint: %w", err)
	}
	if cp.Data == nil {
		cp.Data = []byte{}
	}
	return cp.Data, true, nil
}

// ListCheckpoints returns a run's checkpoints in save order.
func (s *Store) ListCheckpoints(ctx context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	rID := runID.String()
	steps, err := s.rdb.ZRange(ctx, checkpointOrderKey(rID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("sps/redis: list checkpoints: %w", err)
	}

	out := make([]*workflow.Checkpoint, 0, len(steps))
	for _, step := range steps {
		var cp workflow.Checkpoint
		if err := getCheckpoint(ctx, s.rdb, rID, step, &cp); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("sps/redis: list checkpoints: %w", err)
		}
		out = append(out, &cp)
	}
	return out, nil
}

// DeleteCheckpointsAfter drops every checkpoint saved after afterStep.
func (s *Store) DeleteCheckpointsAfter(ctx context.Context, runID id.RunID, afterStep string) error {
	rID := runID.String()
	score, err := s.rdb.ZScore(ctx, checkpointOrderKey(rID), afterStep).Result()
	if err != nil {
		if isRedisNil(err) {
			return sps.NotFound("delete checkpoints", "no checkpoint "+afterStep+" for run "+rID)
		}
		return fmt.Errorf("sps/redis: delete checkpoints: %w", err)
	}

	later, err := s.rdb.ZRangeByScore(ctx, checkpointOrderKey(rID), &goredis.ZRangeBy{
		Min: "(" + strconv.FormatFloat(score, 'f', -1, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return fmt.Errorf("sps/redis: delete checkpoints: %w", err)
	}
	if len(later) == 0 {
		return nil
	}

	members := make([]any, len(later))
	for i, step := range later {
		members[i] = step
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HDel(ctx, checkpointsKey(rID), later...)
		pipe.ZRem(ctx, checkpointOrderKey(rID), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sps/redis: delete checkpoints: %w", err)
	}
	return nil
}
