package rsvp

import (
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
)

// EventStatus is the lifecycle phase of an event.
type EventStatus string

const (
	EventScheduled  EventStatus = "scheduled"
	EventInProgress EventStatus = "inprogress"
	EventCompleted  EventStatus = "completed"
	EventCanceled   EventStatus = "canceled"
)

// GuestStatus is a guest's answer for one event.
type GuestStatus string

const (
	StatusInvited    GuestStatus = "invited"
	StatusGoing      GuestStatus = "going"
	StatusWaitlisted GuestStatus = "waitlisted"
	StatusNotGoing   GuestStatus = "not-going"
)

// Valid reports whether s is a known guest status.
func (s GuestStatus) Valid() bool {
	switch s {
	case StatusInvited, StatusGoing, StatusWaitlisted, StatusNotGoing:
		return true
	}
	return false
}

// Registration is one guest's entry on an event's guest list.
type Registration struct {
	GuestID id.GuestID  `json:"guest_id"`
	Status  GuestStatus `json:"status"`
}

// Event is one meetup. Guests is kept in registration order.
type Event struct {
	sps.Entity

	ID         id.EventID     `json:"id"`
	Location   string         `json:"location"`
	StartDate  time.Time      `json:"start_date"`
	EndDate    time.Time      `json:"end_date"`
	GuestLimit int            `json:"guest_limit"`
	Status     EventStatus    `json:"status"`
	Guests     []Registration `json:"guests"`
}

// Going counts the registrations with status going.
func (e *Event) Going() int {
	n := 0
	for _, g := range e.Guests {
		if g.Status == StatusGoing {
			n++
		}
	}
	return n
}

// Full reports whether no seat is left.
func (e *Event) Full() bool { return e.Going() >= e.GuestLimit }

func (e *Event) registration(guestID id.GuestID) *Registration {
	key := guestID.String()
	for i := range e.Guests {
		if e.Guests[i].GuestID.String() == key {
			return &e.Guests[i]
		}
	}
	return nil
}

// promote moves up to limit of the earliest waitlisted guests to going
// while seats are free and returns them. A negative limit means no cap.
func (e *Event) promote(limit int) []id.GuestID {
	var promoted []id.GuestID
	for i := range e.Guests {
		if limit == 0 || e.Full() {
			break
		}
		if e.Guests[i].Status == StatusWaitlisted {
			e.Guests[i].Status = StatusGoing
			promoted = append(promoted, e.Guests[i].GuestID)
			limit--
		}
	}
	return promoted
}

func (e *Event) clone() *Event {
	c := *e
	c.Guests = append([]Registration(nil), e.Guests...)
	return &c
}

// Guest is a person known by email. Email is the dedup key.
type Guest struct {
	sps.Entity

	ID    id.GuestID `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
}

// EventGuest is a guest together with their status for one event.
type EventGuest struct {
	Guest
	Status GuestStatus `json:"status"`
}

// Break is a period with no meetups.
type Break struct {
	sps.Entity

	ID        id.BreakID `json:"id"`
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	Reason    string     `json:"reason,omitempty"`
}

// Contains reports whether t falls inside the break, bounds included.
func (b *Break) Contains(t time.Time) bool {
	return !t.Before(b.StartDate) && !t.After(b.EndDate)
}

// overlaps reports whether [start, end] intersects the break.
func (b *Break) overlaps(start, end time.Time) bool {
	return !b.StartDate.After(end) && !b.EndDate.Before(start)
}

// EventInput creates an event.
type EventInput struct {
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required"`
	Location   string    `json:"location" validate:"required"`
	GuestLimit int       `json:"guest_limit" validate:"gt=0"`
}

// EventPatch updates an event. Nil fields are left unchanged.
type EventPatch struct {
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Location   *string    `json:"location,omitempty" validate:"omitempty,min=1"`
	GuestLimit *int       `json:"guest_limit,omitempty" validate:"omitempty,gt=0"`
}

// GuestInput identifies a person registering.
type GuestInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// BreakInput schedules a break.
type BreakInput struct {
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
	Reason    string    `json:"reason,omitempty"`
}

// Registered is the outcome of a registration. Updated is false when
// nothing changed because the guest was already on the list.
type Registered struct {
	Status  GuestStatus `json:"status"`
	Updated bool        `json:"updated"`
	Guest   Guest       `json:"guest"`
}

// EventFilter selects an event by exact start instant and status.
type EventFilter struct {
	StartDate time.Time

	// Statuses matches any of the listed statuses. Empty matches all.
	Statuses []EventStatus
}

func (f EventFilter) match(e *Event) bool {
	if !e.StartDate.Equal(f.StartDate) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if e.Status == s {
			return true
		}
	}
	return false
}
