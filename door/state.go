package door

import "context"

// StateKey is the key the door's lock flag is stored under.
const StateKey = "sps:door"

// StateStore persists whether the buzz-in door is locked. A store with no
// saved value reports locked.
type StateStore interface {
	DoorLocked(ctx context.Context) (bool, error)
	SetDoorLocked(ctx context.Context, locked bool) error
}
