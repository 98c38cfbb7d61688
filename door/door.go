// Package door controls the building's buzz-in door. The door is pressed
// open through a SwitchBot and refuses to open while locked; the lock
// flag is persisted so every process agrees on it.
package door

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zephraph/sps"
)

// Presser triggers the physical buzzer. *SwitchBot satisfies it.
type Presser interface {
	Press(ctx context.Context) error
}

// Door is the door capability.
type Door struct {
	state   StateStore
	presser Presser
	logger  *slog.Logger
}

// New returns a Door whose lock flag lives in state.
func New(state StateStore, presser Presser, logger *slog.Logger) *Door {
	if logger == nil {
		logger = slog.Default()
	}
	return &Door{state: state, presser: presser, logger: logger}
}

// Open buzzes the door. It fails with sps.ErrDoorLocked while locked.
func (d *Door) Open(ctx context.Context) error {
	locked, err := d.state.DoorLocked(ctx)
	if err != nil {
		return fmt.Errorf("door: read lock state: %w", err)
	}
	if locked {
		return sps.ErrDoorLocked
	}
	if err := d.presser.Press(ctx); err != nil {
		return err
	}
	d.logger.Info("door opened")
	return nil
}

// SetLocked locks or unlocks the door.
func (d *Door) SetLocked(ctx context.Context, locked bool) error {
	if err := d.state.SetDoorLocked(ctx, locked); err != nil {
		return fmt.Errorf("door: set lock state: %w", err)
	}
	d.logger.Info("door lock changed", slog.Bool("locked", locked))
	return nil
}

// Locked reports whether the door is locked.
func (d *Door) Locked(ctx context.Context) (bool, error) {
	return d.state.DoorLocked(ctx)
}
