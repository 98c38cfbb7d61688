package postgres

import (
	"context"
	"fmt"

	"github.com/zephraph/sps/door"
)

// LoadSnapshot returns the actor state saved under key.
func (s *Store) LoadSnapshot(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sps_actor_snapshots WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sps/postgres: load snapshot: %w", err)
	}
	return data, true, nil
}

// SaveSnapshot replaces the actor state saved under key.
func (s *Store) SaveSnapshot(ctx context.Context, key string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sps_actor_snapshots (key, data, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		key, data)
	if err != nil {
		return fmt.Errorf("sps/postgres: save snapshot: %w", err)
	}
	return nil
}

// DoorLocked reports the stored lock flag, true when unset.
func (s *Store) DoorLocked(ctx context.Context) (bool, error) {
	var locked bool
	err := s.pool.QueryRow(ctx, `SELECT locked FROM sps_door_state WHERE key = $1`, door.StateKey).Scan(&locked)
	if err != nil {
		if isNoRows(err) {
			return true, nil
		}
		return false, fmt.Errorf("sps/postgres: door state: %w", err)
	}
	return locked, nil
}

// SetDoorLocked stores the lock flag.
func (s *Store) SetDoorLocked(ctx context.Context, locked bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sps_door_state (key, locked, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET locked = EXCLUDED.locked, updated_at = EXCLUDED.updated_at`,
		door.StateKey, locked)
	if err != nil {
		return fmt.Errorf("sps/postgres: set door state: %w", err)
	}
	return nil
}
