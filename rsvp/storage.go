package rsvp

import (
	"context"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
)

// FindEvent returns the first event matching f, or nil.
func (a *Actor) FindEvent(ctx context.Context, f EventFilter) (*Event, error) {
	return read(ctx, a, func(st *state) (*Event, error) {
		for _, e := range st.Events {
			if f.match(e) {
				return e.clone(), nil
			}
		}
		return nil, nil //nolint:nilnil // no match is not an error
	})
}

// InsertEvent is CreateEvent.
func (a *Actor) InsertEvent(ctx context.Context, in EventInput) (*Event, error) {
	return a.CreateEvent(ctx, in)
}

// UpdateEventStatus sets an event's lifecycle status.
func (a *Actor) UpdateEventStatus(ctx context.Context, eventID id.EventID, status EventStatus) error {
	switch status {
	case EventScheduled, EventInProgress, EventCompleted, EventCanceled:
	default:
		return sps.Invalidf("update event status", "unknown status %q", status)
	}
	_, err := a.setStatus(ctx, "update event status", eventID, status)
	return err
}

// ListGuestsWithStatus returns the guests holding status for eventID, or
// for any event when eventID is nil. Each guest appears once.
func (a *Actor) ListGuestsWithStatus(ctx context.Context, eventID id.EventID, status GuestStatus) ([]Guest, error) {
	return read(ctx, a, func(st *state) ([]Guest, error) {
		events := st.Events
		if !eventID.IsNil() {
			e, _ := st.event(eventID)
			if e == nil {
				return nil, sps.ErrEventNotFound
			}
			events = []*Event{e}
		}

		seen := make(map[string]bool)
		var out []Guest
		for _, e := range events {
			for _, r := range e.Guests {
				key := r.GuestID.String()
				if r.Status != status || seen[key] {
					continue
				}
				if g, ok := st.Guests[key]; ok {
					seen[key] = true
					out = append(out, *g)
				}
			}
		}
		return out, nil
	})
}

// ResetAllGoingStatus moves every going registration of every event to
// not-going and returns how many changed.
func (a *Actor) ResetAllGoingStatus(ctx context.Context) (int, error) {
	return mutate(ctx, a, func(st *state) (int, error) {
		n := 0
		for _, e := range st.Events {
			for i := range e.Guests {
				if e.Guests[i].Status == StatusGoing {
					e.Guests[i].Status = StatusNotGoing
					n++
				}
			}
		}
		return n, nil
	})
}
