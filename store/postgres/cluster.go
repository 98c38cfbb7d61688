package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/id"
)

const workerColumns = `id, hostname, location_tag, concurrency, state, is_leader, leader_until,
	last_seen, metadata, created_at`

func scanWorker(row pgx.Row) (*cluster.Worker, error) {
	var (
		w     cluster.Worker
		rawID string
		state string
		meta  []byte
	)
	err := row.Scan(&rawID, &w.Hostname, &w.LocationTag, &w.Concurrency, &state, &w.IsLeader,
		&w.LeaderUntil, &w.LastSeen, &meta, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	workerID, err := id.ParseWorkerID(rawID)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: parse worker id: %w", err)
	}
	w.ID = workerID
	w.State = cluster.WorkerState(state)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &w.Metadata); err != nil {
			return nil, fmt.Errorf("sps/postgres: decode worker metadata: %w", err)
		}
	}
	w.LeaderUntil = utcPtr(w.LeaderUntil)
	w.LastSeen = utc(w.LastSeen)
	w.CreatedAt = utc(w.CreatedAt)
	return &w, nil
}

func collectWorkers(rows pgx.Rows) ([]*cluster.Worker, error) {
	defer rows.Close()
	var out []*cluster.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// RegisterWorker adds or replaces a worker record.
func (s *Store) RegisterWorker(ctx context.Context, w *cluster.Worker) error {
	var meta []byte
	if w.Metadata != nil {
		var err error
		if meta, err = json.Marshal(w.Metadata); err != nil {
			return fmt.Errorf("sps/postgres: encode worker metadata: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sps_workers (`+workerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			hostname = EXCLUDED.hostname, location_tag = EXCLUDED.location_tag,
			concurrency = EXCLUDED.concurrency, state = EXCLUDED.state,
			last_seen = EXCLUDED.last_seen, metadata = EXCLUDED.metadata`,
		w.ID.String(), w.Hostname, w.LocationTag, w.Concurrency, string(w.State), w.IsLeader,
		w.LeaderUntil, w.LastSeen, meta, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sps/postgres: register worker: %w", err)
	}
	return nil
}

// DeregisterWorker removes a worker and gives up its leadership.
func (s *Store) DeregisterWorker(ctx context.Context, workerID id.WorkerID) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM sps_workers WHERE id = $1`, workerID.String())
		if err != nil {
			return fmt.Errorf("sps/postgres: deregister worker: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return sps.ErrWorkerNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sps_leader WHERE worker_id = $1`, workerID.String()); err != nil {
			return fmt.Errorf("sps/postgres: release leadership: %w", err)
		}
		return nil
	})
}

// HeartbeatWorker updates the last-seen timestamp and revives a worker
// marked dead.
func (s *Store) HeartbeatWorker(ctx context.Context, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sps_workers SET last_seen = $2,
			state = CASE WHEN state = 'dead' THEN 'active' ELSE state END
		WHERE id = $1`,
		workerID.String(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sps/postgres: heartbeat worker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sps.ErrWorkerNotFound
	}
	return nil
}

// ListWorkers returns all registered workers, oldest first.
func (s *Store) ListWorkers(ctx context.Context) ([]*cluster.Worker, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+workerColumns+` FROM sps_workers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: list workers: %w", err)
	}
	workers, err := collectWorkers(rows)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: list workers: %w", err)
	}
	return workers, nil
}

// ReapDeadWorkers marks workers not seen within threshold as dead.
func (s *Store) ReapDeadWorkers(ctx context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE sps_workers SET state = 'dead'
		WHERE state <> 'dead' AND last_seen < $1
		RETURNING `+workerColumns,
		time.Now().UTC().Add(-threshold),
	)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: reap workers: %w", err)
	}
	workers, err := collectWorkers(rows)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: reap workers: %w", err)
	}
	return workers, nil
}

// AcquireLeadership takes the singleton lease row when it is free,
// expired or already ours.
func (s *Store) AcquireLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := now.Add(ttl)
	acquired := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var holder string
		err := tx.QueryRow(ctx, `
			INSERT INTO sps_leader (singleton, worker_id, until) VALUES (TRUE, $1, $2)
			ON CONFLICT (singleton) DO UPDATE SET worker_id = EXCLUDED.worker_id, until = EXCLUDED.until
			WHERE sps_leader.until < $3 OR sps_leader.worker_id = $1
			RETURNING worker_id`,
			workerID.String(), until, now,
		).Scan(&holder)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		acquired = true
		return markLeader(ctx, tx, workerID, until)
	})
	if err != nil {
		return false, fmt.Errorf("sps/postgres: acquire leadership: %w", err)
	}
	return acquired, nil
}

// RenewLeadership extends the lease if workerID holds it.
func (s *Store) RenewLeadership(ctx context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := now.Add(ttl)
	renewed := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE sps_leader SET until = $2 WHERE worker_id = $1 AND until >= $3`,
			workerID.String(), until, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		renewed = true
		return markLeader(ctx, tx, workerID, until)
	})
	if err != nil {
		return false, fmt.Errorf("sps/postgres: renew leadership: %w", err)
	}
	return renewed, nil
}

// GetLeader returns the current leader, or nil if the lease is free.
func (s *Store) GetLeader(ctx context.Context) (*cluster.Worker, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx, `
		SELECT `+prefixed("w", workerColumns)+`
		FROM sps_leader l JOIN sps_workers w ON w.id = l.worker_id
		WHERE l.until >= $1`,
		time.Now().UTC(),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, nil //nolint:nilnil // no leader is not an error
		}
		return nil, fmt.Errorf("sps/postgres: get leader: %w", err)
	}
	return w, nil
}

func markLeader(ctx context.Context, tx pgx.Tx, workerID id.WorkerID, until time.Time) error {
	if _, err := tx.Exec(ctx,
		`UPDATE sps_workers SET is_leader = FALSE, leader_until = NULL WHERE id <> $1 AND is_leader`,
		workerID.String()); err != nil {
		return err
	}
	_, err := tx.Exec(ctx,
		`UPDATE sps_workers SET is_leader = TRUE, leader_until = $2 WHERE id = $1`,
		workerID.String(), until)
	return err
}
