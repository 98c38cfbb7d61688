package rsvp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/actor"
	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/id"
)

// Emitter receives registration events. ext.Registry satisfies it.
type Emitter interface {
	EmitGuestRegistered(ctx context.Context, eventID id.EventID, guestID id.GuestID, status string)
	EmitGuestPromoted(ctx context.Context, eventID id.EventID, guestID id.GuestID)
}

type nopEmitter struct{}

func (nopEmitter) EmitGuestRegistered(context.Context, id.EventID, id.GuestID, string) {}
func (nopEmitter) EmitGuestPromoted(context.Context, id.EventID, id.GuestID)           {}

// state is everything the actor owns. It is only touched on the mailbox.
type state struct {
	Events []*Event          `json:"events"`
	Guests map[string]*Guest `json:"guests"`
	Breaks []*Break          `json:"breaks"`
}

func newState() *state {
	return &state{Guests: make(map[string]*Guest)}
}

func (s *state) clone() *state {
	c := &state{
		Events: make([]*Event, len(s.Events)),
		Guests: make(map[string]*Guest, len(s.Guests)),
		Breaks: make([]*Break, len(s.Breaks)),
	}
	for i, e := range s.Events {
		c.Events[i] = e.clone()
	}
	for k, g := range s.Guests {
		gc := *g
		c.Guests[k] = &gc
	}
	for i, b := range s.Breaks {
		bc := *b
		c.Breaks[i] = &bc
	}
	return c
}

func (s *state) event(eventID id.EventID) (*Event, int) {
	key := eventID.String()
	for i, e := range s.Events {
		if e.ID.String() == key {
			return e, i
		}
	}
	return nil, -1
}

func (s *state) guestByEmail(email string) *Guest {
	for _, g := range s.Guests {
		if g.Email == email {
			return g
		}
	}
	return nil
}

// insertEvent keeps Events ordered by start date; ties keep insertion
// order.
func (s *state) insertEvent(e *Event) {
	i := sort.Search(len(s.Events), func(i int) bool {
		return s.Events[i].StartDate.After(e.StartDate)
	})
	s.Events = append(s.Events, nil)
	copy(s.Events[i+1:], s.Events[i:])
	s.Events[i] = e
}

// Actor owns the events and guests of one location.
type Actor struct {
	tag       string
	mailbox   *actor.Mailbox
	st        *state
	snapshots actor.SnapshotStore
	emitter   Emitter
	clock     clock.Clock
	validate  *validator.Validate
	logger    *slog.Logger
}

// Option configures an Actor.
type Option func(*Actor)

// WithSnapshotStore persists the state after every mutation and restores
// it on start.
func WithSnapshotStore(s actor.SnapshotStore) Option { return func(a *Actor) { a.snapshots = s } }

// WithEmitter sets the receiver of registration events.
func WithEmitter(e Emitter) Option { return func(a *Actor) { a.emitter = e } }

// WithClock sets the time source.
func WithClock(c clock.Clock) Option { return func(a *Actor) { a.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Actor) { a.logger = l } }

// SnapshotKey is the key the actor for tag is persisted under.
func SnapshotKey(tag string) string { return "rsvp:" + tag }

// New starts the actor for tag, restoring its last snapshot if a snapshot
// store is configured.
func New(ctx context.Context, tag string, opts ...Option) (*Actor, error) {
	a := &Actor{
		tag:      tag,
		st:       newState(),
		emitter:  nopEmitter{},
		clock:    clock.Real{},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.snapshots != nil {
		data, ok, err := a.snapshots.LoadSnapshot(ctx, SnapshotKey(tag))
		if err != nil {
			return nil, fmt.Errorf("rsvp: load snapshot %q: %w", tag, err)
		}
		if ok {
			st := newState()
			if err := json.Unmarshal(data, st); err != nil {
				return nil, fmt.Errorf("rsvp: decode snapshot %q: %w", tag, err)
			}
			if st.Guests == nil {
				st.Guests = make(map[string]*Guest)
			}
			a.st = st
			a.logger.Info("rsvp state restored",
				slog.String("tag", tag),
				slog.Int("events", len(st.Events)),
				slog.Int("guests", len(st.Guests)),
			)
		}
	}

	a.mailbox = actor.New(64)
	return a, nil
}

// Tag returns the location tag the actor serves.
func (a *Actor) Tag() string { return a.tag }

// Close stops the mailbox.
func (a *Actor) Close() { a.mailbox.Close() }

// read runs fn against the live state on the mailbox.
func read[T any](ctx context.Context, a *Actor, fn func(st *state) (T, error)) (T, error) {
	return actor.Do(ctx, a.mailbox, func() (T, error) { return fn(a.st) })
}

// mutate runs fn against a copy of the state, saves the snapshot and only
// then installs the copy.
func mutate[T any](ctx context.Context, a *Actor, fn func(st *state) (T, error)) (T, error) {
	return actor.Do(ctx, a.mailbox, func() (T, error) {
		var zero T
		next := a.st.clone()
		out, err := fn(next)
		if err != nil {
			return zero, err
		}
		if a.snapshots != nil {
			data, err := json.Marshal(next)
			if err != nil {
				return zero, fmt.Errorf("rsvp: encode snapshot: %w", err)
			}
			if err := a.snapshots.SaveSnapshot(ctx, SnapshotKey(a.tag), data); err != nil {
				return zero, fmt.Errorf("rsvp: save snapshot: %w", err)
			}
		}
		a.st = next
		return out, nil
	})
}

func (a *Actor) check(op string, v any) error {
	if err := a.validate.Struct(v); err != nil {
		return sps.Invalid(op, err)
	}
	return nil
}
