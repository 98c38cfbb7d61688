package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/workflow"
)

const runColumns = `id, name, state, input, error, attempt, wake_at, locked_by, locked_until,
	canceled_at, started_at, completed_at, created_at, updated_at`

func scanRun(row pgx.Row) (*workflow.Run, error) {
	var (
		r     workflow.Run
		rawID string
		state string
	)
	err := row.Scan(&rawID, &r.Name, &state, &r.Input, &r.Error, &r.Attempt, &r.WakeAt,
		&r.LockedBy, &r.LockedUntil, &r.CanceledAt, &r.StartedAt, &r.CompletedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	runID, err := id.ParseRunID(rawID)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: parse run id: %w", err)
	}
	r.ID = runID
	r.State = workflow.RunState(state)
	r.WakeAt = utc(r.WakeAt)
	r.LockedUntil = utc(r.LockedUntil)
	r.CanceledAt = utcPtr(r.CanceledAt)
	r.StartedAt = utc(r.StartedAt)
	r.CompletedAt = utcPtr(r.CompletedAt)
	r.CreatedAt = utc(r.CreatedAt)
	r.UpdatedAt = utc(r.UpdatedAt)
	return &r, nil
}

func collectRuns(rows pgx.Rows) ([]*workflow.Run, error) {
	defer rows.Close()
	var runs []*workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sps_workflow_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID.String(), run.Name, string(run.State), run.Input, run.Error, run.Attempt,
		run.WakeAt, run.LockedBy, run.LockedUntil, run.CanceledAt, run.StartedAt,
		run.CompletedAt, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return sps.ErrRunExists
		}
		return fmt.Errorf("sps/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM sps_workflow_runs WHERE id = $1`, runID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, sps.ErrRunNotFound
		}
		return nil, fmt.Errorf("sps/postgres: get run: %w", err)
	}
	return r, nil
}

// UpdateRun replaces a run. COALESCE keeps a stored canceled_at.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sps_workflow_runs SET
			name = $2, state = $3, input = $4, error = $5, attempt = $6, wake_at = $7,
			locked_by = $8, locked_until = $9, canceled_at = COALESCE($10, canceled_at),
			started_at = $11, completed_at = $12, updated_at = $13
		WHERE id = $1`,
		run.ID.String(), run.Name, string(run.State), run.Input, run.Error, run.Attempt,
		run.WakeAt, run.LockedBy, run.LockedUntil, run.CanceledAt, run.StartedAt,
		run.CompletedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sps/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sps.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs matching the given options.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	var limit any
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM sps_workflow_runs
		WHERE ($1 = '' OR state = $1) AND ($2 = '' OR name = $2)
		ORDER BY created_at, id
		LIMIT $3 OFFSET $4`,
		string(opts.State), opts.Name, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: list runs: %w", err)
	}
	runs, err := collectRuns(rows)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: list runs: %w", err)
	}
	return runs, nil
}

// ClaimDueRuns leases due runs with FOR UPDATE SKIP LOCKED so concurrent
// workers never claim the same run.
func (s *Store) ClaimDueRuns(ctx context.Context, now time.Time, workerID string, lease time.Duration, limit int) ([]*workflow.Run, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE sps_workflow_runs SET
			state = 'running', locked_by = $2, locked_until = $3, updated_at = $1
		WHERE id IN (
			SELECT id FROM sps_workflow_runs
			WHERE (state = 'sleeping' AND wake_at <= $1)
			   OR (state = 'running' AND locked_until < $1)
			ORDER BY wake_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+runColumns,
		now, workerID, now.Add(lease), lim,
	)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: claim due runs: %w", err)
	}
	runs, err := collectRuns(rows)
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: claim due runs: %w", err)
	}
	return runs, nil
}

// SaveCheckpoint upserts a step result and touches the run in one
// transaction.
func (s *Store) SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	now := time.Now().UTC()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sps_workflow_checkpoints (id, run_id, step_name, data, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (run_id, step_name) DO UPDATE SET data = EXCLUDED.data`,
			id.NewCheckpointID().String(), runID.String(), stepName, data, now,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE sps_workflow_runs SET updated_at = $2 WHERE id = $1`, runID.String(), now)
		return err
	})
	if err != nil {
		return fmt.Errorf("sps/postgres: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a workflow step.
func (s *Store) GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM sps_workflow_checkpoints WHERE run_id = $1 AND step_name = $2`,
		runID.String(), stepName,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sps/postgres: get checkpoint: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
}

// ListCheckpoints returns a run's checkpoints in save order.
func (s *Store) ListCheckpoints(ctx context.Context, runID id.RunID) ([]*workflow.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, step_name, data, created_at FROM sps_workflow_checkpoints
		WHERE run_id = $1 ORDER BY seq`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("sps/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Checkpoint
	for rows.Next() {
		var (
			cp    workflow.Checkpoint
			rawID string
		)
		if err := rows.Scan(&rawID, &cp.StepName, &cp.Data, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("sps/postgres: scan checkpoint: %w", err)
		}
		cpID, err := id.ParseCheckpointID(rawID)
		if err != nil {
			return nil, fmt.Errorf("sps/postgres: parse checkpoint id: %w", err)
		}
		cp.ID = cpID
		cp.RunID = runID
		cp.CreatedAt = utc(cp.CreatedAt)
		out = append(out, &cp)
	}
	return out, rows.Err()
}

// DeleteCheckpointsAfter drops every checkpoint saved after afterStep.
func (s *Store) DeleteCheckpointsAfter(ctx context.Context, runID id.RunID, afterStep string) error {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`SELECT seq FROM sps_workflow_checkpoints WHERE run_id = $1 AND step_name = $2`,
		runID.String(), afterStep,
	).Scan(&seq)
	if err != nil {
		if isNoRows(err) {
			return sps.NotFound("delete checkpoints", "no checkpoint "+afterStep+" for run "+runID.String())
		}
		return fmt.Errorf("sps/postgres: delete checkpoints: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM sps_workflow_checkpoints WHERE run_id = $1 AND seq > $2`,
		runID.String(), seq,
	); err != nil {
		return fmt.Errorf("sps/postgres: delete checkpoints: %w", err)
	}
	return nil
}
