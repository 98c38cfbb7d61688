package memory

import "context"

// LoadSnapshot returns the actor state saved under key.
func (m *Store) LoadSnapshot(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.snapshots[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(data), true, nil
}

// SaveSnapshot replaces the actor state saved under key.
func (m *Store) SaveSnapshot(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[key] = cloneBytes(data)
	return nil
}

// DoorLocked reports the stored lock flag, true when unset.
func (m *Store) DoorLocked(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.door == nil {
		return true, nil
	}
	return *m.door, nil
}

// SetDoorLocked stores the lock flag.
func (m *Store) SetDoorLocked(_ context.Context, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.door = &locked
	return nil
}
