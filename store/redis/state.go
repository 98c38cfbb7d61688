package redis

import (
	"context"
	"fmt"
)

// LoadSnapshot returns the actor state saved under key.
func (s *Store) LoadSnapshot(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, snapshotKey(key)).Bytes()
	if err != nil {
		if isRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sps/redis: load snapshot: %w", err)
	}
	return data, true, nil
}

// SaveSnapshot replaces the actor state saved under key.
func (s *Store) SaveSnapshot(ctx context.Context, key string, data []byte) error {
	if err := s.rdb.Set(ctx, snapshotKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("sps/redis: save snapshot: %w", err)
	}
	return nil
}

// DoorLocked reports the stored lock flag, true when unset.
func (s *Store) DoorLocked(ctx context.Context) (bool, error) {
	v, err := s.rdb.Get(ctx, doorKey).Result()
	if err != nil {
		if isRedisNil(err) {
			return true, nil
		}
		return true, fmt.Errorf("sps/redis: door state: %w", err)
	}
	return v != "0", nil
}

// SetDoorLocked stores the lock flag.
func (s *Store) SetDoorLocked(ctx context.Context, locked bool) error {
	v := "0"
	if locked {
		v = "1"
	}
	if err := s.rdb.Set(ctx, doorKey, v, 0).Err(); err != nil {
		return fmt.Errorf("sps/redis: set door state: %w", err)
	}
	return nil
}
