package rsvp

import (
	"context"
	"log/slog"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/id"
)

// CreateEvent adds a scheduled event at its sorted position.
func (a *Actor) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	if err := a.check("create event", in); err != nil {
		return nil, err
	}
	return mutate(ctx, a, func(st *state) (*Event, error) {
		now := a.clock.Now().UTC()
		e := &Event{
			Entity:     sps.Entity{CreatedAt: now, UpdatedAt: now},
			ID:         id.NewEventID(),
			Location:   in.Location,
			StartDate:  in.StartDate.UTC(),
			EndDate:    in.EndDate.UTC(),
			GuestLimit: in.GuestLimit,
			Status:     EventScheduled,
			Guests:     []Registration{},
		}
		st.insertEvent(e)
		return e.clone(), nil
	})
}

// GetEvents returns every event in start order.
func (a *Actor) GetEvents(ctx context.Context) ([]*Event, error) {
	return read(ctx, a, func(st *state) ([]*Event, error) {
		out := make([]*Event, len(st.Events))
		for i, e := range st.Events {
			out[i] = e.clone()
		}
		return out, nil
	})
}

// GetEvent returns the event with eventID.
func (a *Actor) GetEvent(ctx context.Context, eventID id.EventID) (*Event, error) {
	return read(ctx, a, func(st *state) (*Event, error) {
		e, _ := st.event(eventID)
		if e == nil {
			return nil, sps.ErrEventNotFound
		}
		return e.clone(), nil
	})
}

// GetEventsByDate returns the events that overlap the New York calendar
// day of date.
func (a *Actor) GetEventsByDate(ctx context.Context, date time.Time) ([]*Event, error) {
	local := date.In(clock.NewYork)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, clock.NewYork)
	dayEnd := dayStart.AddDate(0, 0, 1)
	return read(ctx, a, func(st *state) ([]*Event, error) {
		var out []*Event
		for _, e := range st.Events {
			if e.StartDate.Before(dayEnd) && !e.EndDate.Before(dayStart) {
				out = append(out, e.clone())
			}
		}
		return out, nil
	})
}

// GetCurrentOrNextEvent returns the first event in progress at now, else
// the first one starting after now. It returns nil when there is neither.
func (a *Actor) GetCurrentOrNextEvent(ctx context.Context) (*Event, error) {
	return read(ctx, a, func(st *state) (*Event, error) {
		now := a.clock.Now()
		for _, e := range st.Events {
			if !e.StartDate.After(now) && !e.EndDate.Before(now) {
				return e.clone(), nil
			}
		}
		for _, e := range st.Events {
			if e.StartDate.After(now) {
				return e.clone(), nil
			}
		}
		return nil, nil //nolint:nilnil // no upcoming event is not an error
	})
}

// UpdateEvent applies patch. A guest limit below the number of guests
// already going is rejected; a raised limit promotes waitlisted guests.
func (a *Actor) UpdateEvent(ctx context.Context, eventID id.EventID, patch EventPatch) (*Event, error) {
	if err := a.check("update event", patch); err != nil {
		return nil, err
	}
	type result struct {
		event    *Event
		promoted []id.GuestID
	}
	res, err := mutate(ctx, a, func(st *state) (result, error) {
		e, i := st.event(eventID)
		if e == nil {
			return result{}, sps.ErrEventNotFound
		}
		if patch.GuestLimit != nil && *patch.GuestLimit < e.Going() {
			return result{}, sps.Invalidf("update event",
				"guest limit %d is below the %d guests going", *patch.GuestLimit, e.Going())
		}

		if patch.Location != nil {
			e.Location = *patch.Location
		}
		if patch.GuestLimit != nil {
			e.GuestLimit = *patch.GuestLimit
		}
		if patch.EndDate != nil {
			e.EndDate = patch.EndDate.UTC()
		}
		if patch.StartDate != nil && !patch.StartDate.Equal(e.StartDate) {
			e.StartDate = patch.StartDate.UTC()
			st.Events = append(st.Events[:i], st.Events[i+1:]...)
			st.insertEvent(e)
		}
		e.UpdatedAt = a.clock.Now().UTC()

		promoted := e.promote(-1)
		return result{event: e.clone(), promoted: promoted}, nil
	})
	if err != nil {
		return nil, err
	}
	for _, g := range res.promoted {
		a.emitter.EmitGuestPromoted(ctx, eventID, g)
	}
	return res.event, nil
}

// DeleteEvent removes an event and its guest list.
func (a *Actor) DeleteEvent(ctx context.Context, eventID id.EventID) error {
	_, err := mutate(ctx, a, func(st *state) (struct{}, error) {
		_, i := st.event(eventID)
		if i < 0 {
			return struct{}{}, sps.ErrEventNotFound
		}
		st.Events = append(st.Events[:i], st.Events[i+1:]...)
		return struct{}{}, nil
	})
	return err
}

// CancelEvent marks a scheduled or running event canceled. Canceling a
// canceled event is a no-op; a completed event cannot be canceled.
func (a *Actor) CancelEvent(ctx context.Context, eventID id.EventID) (*Event, error) {
	e, err := mutate(ctx, a, func(st *state) (*Event, error) {
		e, _ := st.event(eventID)
		switch {
		case e == nil:
			return nil, sps.ErrEventNotFound
		case e.Status == EventCompleted:
			return nil, sps.ErrEventEnded
		case e.Status != EventCanceled:
			e.Status = EventCanceled
			e.UpdatedAt = a.clock.Now().UTC()
		}
		return e.clone(), nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("event canceled", slog.String("event_id", eventID.String()))
	return e, nil
}

// RescheduleEvent puts a canceled event back on the schedule unless its
// start falls inside a break.
func (a *Actor) RescheduleEvent(ctx context.Context, eventID id.EventID) (*Event, error) {
	return mutate(ctx, a, func(st *state) (*Event, error) {
		e, _ := st.event(eventID)
		if e == nil {
			return nil, sps.ErrEventNotFound
		}
		if e.Status != EventCanceled {
			return nil, sps.ErrNotCanceled
		}
		for _, b := range st.Breaks {
			if b.Contains(e.StartDate) {
				return nil, sps.ErrInBreak
			}
		}
		e.Status = EventScheduled
		e.UpdatedAt = a.clock.Now().UTC()
		return e.clone(), nil
	})
}

func (a *Actor) setStatus(ctx context.Context, op string, eventID id.EventID, status EventStatus) (*Event, error) {
	e, err := mutate(ctx, a, func(st *state) (*Event, error) {
		e, _ := st.event(eventID)
		if e == nil {
			return nil, sps.ErrEventNotFound
		}
		e.Status = status
		e.UpdatedAt = a.clock.Now().UTC()
		return e.clone(), nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("event status changed",
		slog.String("op", op),
		slog.String("event_id", eventID.String()),
		slog.String("status", string(status)),
	)
	return e, nil
}
