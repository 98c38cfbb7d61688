package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/id"
)

const cronColumns = `id, name, schedule, workflow, payload, last_run_at, next_run_at,
	locked_by, locked_until, enabled, created_at, updated_at`

func scanCron(row pgx.Row) (*cron.Entry, error) {
	var (
		e     cron.Entry
		rawID string
	)
	err := row.Scan(&rawID, &e.Name, &e.Schedule, &e.Workflow, &e.Payload, &e.LastRunAt,
		&e.NextRunAt, &e.LockedBy, &e.LockedUntil, &e.Enabled, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	entryID, err := id.ParseCronID(rawID)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: parse cron id: %w", err)
	}
	e.ID = entryID
	e.LastRunAt = utcPtr(e.LastRunAt)
	e.NextRunAt = utcPtr(e.NextRunAt)
	e.LockedUntil = utcPtr(e.LockedUntil)
	e.CreatedAt = utc(e.CreatedAt)
	e.UpdatedAt = utc(e.UpdatedAt)
	return &e, nil
}

// RegisterCron persists a new cron entry.
func (s *Store) RegisterCron(ctx context.Context, entry *cron.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sps_cron_entries (`+cronColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID.String(), entry.Name, entry.Schedule, entry.Workflow, entry.Payload,
		entry.LastRunAt, entry.NextRunAt, entry.LockedBy, entry.LockedUntil, entry.Enabled,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return sps.ErrDuplicateCron
		}
		return fmt.Errorf("sps/postgres: register cron: %w", err)
	}
	return nil
}

// GetCron retrieves a cron entry by ID.
func (s *Store) GetCron(ctx context.Context, entryID id.CronID) (*cron.Entry, error) {
	return s.getCron(ctx, `WHERE id = $1`, entryID.String())
}

// GetCronByName retrieves a cron entry by its unique name.
func (s *Store) GetCronByName(ctx context.Context, name string) (*cron.Entry, error) {
	return s.getCron(ctx, `WHERE name = $1`, name)
}

func (s *Store) getCron(ctx context.Context, where string, arg any) (*cron.Entry, error) {
	e, err := scanCron(s.pool.QueryRow(ctx, `SELECT `+cronColumns+` FROM sps_cron_entries `+where, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, sps.ErrCronNotFound
		}
		return nil, fmt.Errorf("sps/postgres: get cron: %w", err)
	}
	return e, nil
}

// ListCrons returns all cron entries, oldest first.
func (s *Store) ListCrons(ctx context.Context) ([]*cron.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+cronColumns+` FROM sps_cron_entries ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: list crons: %w", err)
	}
	defer rows.Close()

	var out []*cron.Entry
	for rows.Next() {
		e, err := scanCron(rows)
		if err != nil {
			return nil, fmt.Errorf("sps/postgres: list crons: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AcquireCronLock takes the entry lock when it is free, expired or
// already held by workerID.
func (s *Store) AcquireCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE sps_cron_entries SET locked_by = $2, locked_until = $3
		WHERE id = $1
		  AND (locked_by = '' OR locked_by = $2 OR locked_until IS NULL OR locked_until <= $4)`,
		entryID.String(), workerID.String(), now.Add(ttl), now,
	)
	if err != nil {
		return false, fmt.Errorf("sps/postgres: acquire cron lock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := s.cronExists(ctx, entryID); err != nil {
		return false, err
	}
	return false, nil
}

// ReleaseCronLock releases the lock if workerID holds it.
func (s *Store) ReleaseCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID) error {
	if _, err := s.pool.Exec(ctx, `
		UPDATE sps_cron_entries SET locked_by = '', locked_until = NULL
		WHERE id = $1 AND locked_by = $2`,
		entryID.String(), workerID.String(),
	); err != nil {
		return fmt.Errorf("sps/postgres: release cron lock: %w", err)
	}
	return s.cronExists(ctx, entryID)
}

// UpdateCronLastRun records when a cron entry last fired.
func (s *Store) UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sps_cron_entries SET last_run_at = $2 WHERE id = $1`, entryID.String(), at)
	if err != nil {
		return fmt.Errorf("sps/postgres: update cron last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sps.ErrCronNotFound
	}
	return nil
}

// UpdateCronEntry writes the mutable fields of an entry. Lock columns are
// left to the lock calls.
func (s *Store) UpdateCronEntry(ctx context.Context, entry *cron.Entry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sps_cron_entries SET
			schedule = $2, workflow = $3, payload = $4, next_run_at = $5,
			last_run_at = COALESCE($6, last_run_at), enabled = $7, updated_at = $8
		WHERE id = $1`,
		entry.ID.String(), entry.Schedule, entry.Workflow, entry.Payload, entry.NextRunAt,
		entry.LastRunAt, entry.Enabled, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sps/postgres: update cron entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sps.ErrCronNotFound
	}
	return nil
}

// DeleteCron removes a cron entry by ID.
func (s *Store) DeleteCron(ctx context.Context, entryID id.CronID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sps_cron_entries WHERE id = $1`, entryID.String())
	if err != nil {
		return fmt.Errorf("sps/postgres: delete cron: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sps.ErrCronNotFound
	}
	return nil
}

func (s *Store) cronExists(ctx context.Context, entryID id.CronID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sps_cron_entries WHERE id = $1)`, entryID.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sps/postgres: check cron: %w", err)
	}
	if !exists {
		return sps.ErrCronNotFound
	}
	return nil
}
