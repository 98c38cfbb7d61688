package rsvp

import (
	"context"
	"strings"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (in GuestInput) normalized() GuestInput {
	return GuestInput{Name: strings.TrimSpace(in.Name), Email: normalizeEmail(in.Email)}
}

func (a *Actor) newGuest(in GuestInput) *Guest {
	now := a.clock.Now().UTC()
	return &Guest{
		Entity: sps.Entity{CreatedAt: now, UpdatedAt: now},
		ID:     id.NewGuestID(),
		Name:   in.Name,
		Email:  in.Email,
	}
}

// RegisterGuest records a guest without attaching them to an event. An
// existing guest with the same email is returned with Updated false.
func (a *Actor) RegisterGuest(ctx context.Context, in GuestInput) (Registered, error) {
	in = in.normalized()
	if err := a.check("register guest", in); err != nil {
		return Registered{}, err
	}
	return mutate(ctx, a, func(st *state) (Registered, error) {
		if g := st.guestByEmail(in.Email); g != nil {
			return Registered{Updated: false, Guest: *g}, nil
		}
		g := a.newGuest(in)
		st.Guests[g.ID.String()] = g
		return Registered{Updated: true, Guest: *g}, nil
	})
}

// RegisterGuestForEvent puts a guest on an event's list. Guests are
// matched by email. A guest already on the list keeps their status and
// Updated is false. A known guest new to the event is invited. A new
// guest is going while seats are free and waitlisted once the event is
// full.
func (a *Actor) RegisterGuestForEvent(ctx context.Context, eventID id.EventID, in GuestInput) (Registered, error) {
	in = in.normalized()
	if err := a.check("register guest", in); err != nil {
		return Registered{}, err
	}
	res, err := mutate(ctx, a, func(st *state) (Registered, error) {
		e, _ := st.event(eventID)
		if e == nil {
			return Registered{}, sps.ErrEventNotFound
		}

		if g := st.guestByEmail(in.Email); g != nil {
			if r := e.registration(g.ID); r != nil {
				return Registered{Status: r.Status, Updated: false, Guest: *g}, nil
			}
			e.Guests = append(e.Guests, Registration{GuestID: g.ID, Status: StatusInvited})
			return Registered{Status: StatusInvited, Updated: true, Guest: *g}, nil
		}

		status := StatusGoing
		if e.Full() {
			status = StatusWaitlisted
		}
		g := a.newGuest(in)
		st.Guests[g.ID.String()] = g
		e.Guests = append(e.Guests, Registration{GuestID: g.ID, Status: status})
		return Registered{Status: status, Updated: true, Guest: *g}, nil
	})
	if err != nil {
		return Registered{}, err
	}
	if res.Updated {
		a.emitter.EmitGuestRegistered(ctx, eventID, res.Guest.ID, string(res.Status))
	}
	return res, nil
}

// RemoveGuest takes a guest off an event's list. If that frees a seat the
// earliest waitlisted guest is promoted to going; at most one guest is
// promoted per removal.
func (a *Actor) RemoveGuest(ctx context.Context, eventID id.EventID, guestID id.GuestID) error {
	promoted, err := mutate(ctx, a, func(st *state) ([]id.GuestID, error) {
		e, _ := st.event(eventID)
		if e == nil {
			return nil, sps.ErrEventNotFound
		}
		if _, ok := st.Guests[guestID.String()]; !ok {
			return nil, sps.ErrGuestNotFound
		}

		key := guestID.String()
		kept := e.Guests[:0]
		for _, r := range e.Guests {
			if r.GuestID.String() != key {
				kept = append(kept, r)
			}
		}
		e.Guests = kept
		e.UpdatedAt = a.clock.Now().UTC()
		return e.promote(1), nil
	})
	if err != nil {
		return err
	}
	for _, g := range promoted {
		a.emitter.EmitGuestPromoted(ctx, eventID, g)
	}
	return nil
}

// SetGuestStatus changes a guest's answer for an event, adding them to
// the list if needed. Asking to go to a full event waitlists the guest.
// Leaving the going list promotes the earliest waitlisted guest. The
// resulting status is returned.
func (a *Actor) SetGuestStatus(ctx context.Context, eventID id.EventID, guestID id.GuestID, status GuestStatus) (GuestStatus, error) {
	if !status.Valid() {
		return "", sps.Invalidf("set guest status", "unknown status %q", status)
	}
	type result struct {
		status   GuestStatus
		promoted []id.GuestID
	}
	res, err := mutate(ctx, a, func(st *state) (result, error) {
		e, _ := st.event(eventID)
		if e == nil {
			return result{}, sps.ErrEventNotFound
		}
		if _, ok := st.Guests[guestID.String()]; !ok {
			return result{}, sps.ErrGuestNotFound
		}

		r := e.registration(guestID)
		if r == nil {
			e.Guests = append(e.Guests, Registration{GuestID: guestID, Status: StatusInvited})
			r = &e.Guests[len(e.Guests)-1]
		}
		if r.Status == status {
			return result{status: status}, nil
		}

		wasGoing := r.Status == StatusGoing
		if status == StatusGoing && e.Full() {
			status = StatusWaitlisted
		}
		r.Status = status
		e.UpdatedAt = a.clock.Now().UTC()

		var promoted []id.GuestID
		if wasGoing {
			promoted = e.promote(1)
		}
		return result{status: status, promoted: promoted}, nil
	})
	if err != nil {
		return "", err
	}
	for _, g := range res.promoted {
		a.emitter.EmitGuestPromoted(ctx, eventID, g)
	}
	return res.status, nil
}

// GetEventGuest returns a guest with their status for an event, or nil
// if the guest is not on its list.
func (a *Actor) GetEventGuest(ctx context.Context, eventID id.EventID, guestID id.GuestID) (*EventGuest, error) {
	return read(ctx, a, func(st *state) (*EventGuest, error) {
		e, _ := st.event(eventID)
		if e == nil {
			return nil, sps.ErrEventNotFound
		}
		g, ok := st.Guests[guestID.String()]
		r := e.registration(guestID)
		if !ok || r == nil {
			return nil, nil //nolint:nilnil // not registered is not an error
		}
		return &EventGuest{Guest: *g, Status: r.Status}, nil
	})
}

// GetEventGuests returns an event's guests in registration order.
func (a *Actor) GetEventGuests(ctx context.Context, eventID id.EventID) ([]EventGuest, error) {
	return read(ctx, a, func(st *state) ([]EventGuest, error) {
		e, _ := st.event(eventID)
		if e == nil {
			return nil, sps.ErrEventNotFound
		}
		out := make([]EventGuest, 0, len(e.Guests))
		for _, r := range e.Guests {
			if g, ok := st.Guests[r.GuestID.String()]; ok {
				out = append(out, EventGuest{Guest: *g, Status: r.Status})
			}
		}
		return out, nil
	})
}

// GetGuestByID returns the guest with guestID.
func (a *Actor) GetGuestByID(ctx context.Context, guestID id.GuestID) (*Guest, error) {
	return read(ctx, a, func(st *state) (*Guest, error) {
		g, ok := st.Guests[guestID.String()]
		if !ok {
			return nil, sps.ErrGuestNotFound
		}
		c := *g
		return &c, nil
	})
}

// GetGuestByEmail returns the guest registered with email.
func (a *Actor) GetGuestByEmail(ctx context.Context, email string) (*Guest, error) {
	return read(ctx, a, func(st *state) (*Guest, error) {
		g := st.guestByEmail(normalizeEmail(email))
		if g == nil {
			return nil, sps.ErrGuestNotFound
		}
		c := *g
		return &c, nil
	})
}
