package actor

import "context"

// SnapshotStore persists serialized actor state under a key such as
// "rsvp:sps:nyc".
type SnapshotStore interface {
	// LoadSnapshot returns the saved state and whether one exists.
	LoadSnapshot(ctx context.Context, key string) ([]byte, bool, error)
	SaveSnapshot(ctx context.Context, key string, data []byte) error
}
