package rsvp_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/rsvp"
	"github.com/zephraph/sps/store/memory"
)

// saturday is 2025-06-07 09:00 in New York.
var saturday = time.Date(2025, time.June, 7, 9, 0, 0, 0, clock.NewYork)

type recorder struct {
	mu         sync.Mutex
	registered []string
	promoted   []string
}

func (r *recorder) EmitGuestRegistered(_ context.Context, _ id.EventID, g id.GuestID, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, g.String()+":"+status)
}

func (r *recorder) EmitGuestPromoted(_ context.Context, _ id.EventID, g id.GuestID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promoted = append(r.promoted, g.String())
}

func newActor(t *testing.T, opts ...rsvp.Option) *rsvp.Actor {
	t.Helper()
	base := []rsvp.Option{
		rsvp.WithClock(clock.NewFake(saturday.AddDate(0, 0, -5))),
		rsvp.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	a, err := rsvp.New(context.Background(), "sps:test", append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func createEvent(t *testing.T, a *rsvp.Actor, start time.Time, limit int) *rsvp.Event {
	t.Helper()
	e, err := a.CreateEvent(context.Background(), rsvp.EventInput{
		StartDate:  start,
		EndDate:    start.Add(3 * time.Hour),
		Location:   "325 Gold Street",
		GuestLimit: limit,
	})
	require.NoError(t, err)
	return e
}

func fakeGuest(f *gofakeit.Faker) rsvp.GuestInput {
	return rsvp.GuestInput{Name: f.Name(), Email: f.Email()}
}

func TestCreateEventKeepsStartOrder(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()

	third := createEvent(t, a, saturday.AddDate(0, 0, 14), 5)
	first := createEvent(t, a, saturday, 5)
	second := createEvent(t, a, saturday.AddDate(0, 0, 7), 5)

	events, err := a.GetEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, second.ID, events[1].ID)
	assert.Equal(t, third.ID, events[2].ID)
	assert.Equal(t, rsvp.EventScheduled, events[0].Status)
}

func TestCreateEventValidation(t *testing.T) {
	a := newActor(t)

	_, err := a.CreateEvent(context.Background(), rsvp.EventInput{
		StartDate:  saturday,
		EndDate:    saturday.Add(time.Hour),
		Location:   "here",
		GuestLimit: 0,
	})
	require.Error(t, err)
	assert.True(t, sps.IsValidation(err))
}

func TestRegisterGuestForEvent(t *testing.T) {
	f := gofakeit.New(1)
	ctx := context.Background()

	t.Run("limit one", func(t *testing.T) {
		a := newActor(t)
		e := createEvent(t, a, saturday, 1)

		r1, err := a.RegisterGuestForEvent(ctx, e.ID, fakeGuest(f))
		require.NoError(t, err)
		assert.Equal(t, rsvp.StatusGoing, r1.Status)
		assert.True(t, r1.Updated)

		r2, err := a.RegisterGuestForEvent(ctx, e.ID, fakeGuest(f))
		require.NoError(t, err)
		assert.Equal(t, rsvp.StatusWaitlisted, r2.Status)
		assert.True(t, r2.Updated)
	})

	t.Run("same email twice", func(t *testing.T) {
		a := newActor(t)
		e := createEvent(t, a, saturday, 5)
		in := fakeGuest(f)

		first, err := a.RegisterGuestForEvent(ctx, e.ID, in)
		require.NoError(t, err)
		again, err := a.RegisterGuestForEvent(ctx, e.ID, in)
		require.NoError(t, err)

		assert.False(t, again.Updated)
		assert.Equal(t, first.Status, again.Status)
		assert.Equal(t, first.Guest.ID, again.Guest.ID)

		guests, err := a.GetEventGuests(ctx, e.ID)
		require.NoError(t, err)
		assert.Len(t, guests, 1)
	})

	t.Run("known guest is invited to another event", func(t *testing.T) {
		a := newActor(t)
		e1 := createEvent(t, a, saturday, 5)
		e2 := createEvent(t, a, saturday.AddDate(0, 0, 7), 5)
		in := fakeGuest(f)

		_, err := a.RegisterGuestForEvent(ctx, e1.ID, in)
		require.NoError(t, err)
		r, err := a.RegisterGuestForEvent(ctx, e2.ID, in)
		require.NoError(t, err)
		assert.Equal(t, rsvp.StatusInvited, r.Status)
		assert.True(t, r.Updated)
	})

	t.Run("unknown event", func(t *testing.T) {
		a := newActor(t)
		_, err := a.RegisterGuestForEvent(ctx, id.NewEventID(), fakeGuest(f))
		assert.ErrorIs(t, err, sps.ErrEventNotFound)
		assert.True(t, sps.IsNotFound(err))
	})

	t.Run("invalid guest", func(t *testing.T) {
		a := newActor(t)
		e := createEvent(t, a, saturday, 5)
		_, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "Ada", Email: "not-an-email"})
		require.Error(t, err)
		assert.True(t, sps.IsValidation(err))
	})
}

func TestConcurrentRegistrationsRespectLimit(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	e := createEvent(t, a, saturday, 5)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{
				Name:  fmt.Sprintf("guest %d", i),
				Email: fmt.Sprintf("guest%d@example.com", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := a.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Going())
	assert.Len(t, got.Guests, 40)
}

func TestRemoveGuestPromotesEarliestWaitlisted(t *testing.T) {
	f := gofakeit.New(2)
	rec := &recorder{}
	a := newActor(t, rsvp.WithEmitter(rec))
	ctx := context.Background()
	e := createEvent(t, a, saturday, 2)

	ra, err := a.RegisterGuestForEvent(ctx, e.ID, fakeGuest(f))
	require.NoError(t, err)
	rb, err := a.RegisterGuestForEvent(ctx, e.ID, fakeGuest(f))
	require.NoError(t, err)
	rc, err := a.RegisterGuestForEvent(ctx, e.ID, fakeGuest(f))
	require.NoError(t, err)
	rd, err := a.RegisterGuestForEvent(ctx, e.ID, fakeGuest(f))
	require.NoError(t, err)

	assert.Equal(t, rsvp.StatusGoing, ra.Status)
	assert.Equal(t, rsvp.StatusGoing, rb.Status)
	assert.Equal(t, rsvp.StatusWaitlisted, rc.Status)
	assert.Equal(t, rsvp.StatusWaitlisted, rd.Status)

	require.NoError(t, a.RemoveGuest(ctx, e.ID, ra.Guest.ID))

	c, err := a.GetEventGuest(ctx, e.ID, rc.Guest.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, rsvp.StatusGoing, c.Status)

	d, err := a.GetEventGuest(ctx, e.ID, rd.Guest.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, rsvp.StatusWaitlisted, d.Status)

	gone, err := a.GetEventGuest(ctx, e.ID, ra.Guest.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.Equal(t, []string{rc.Guest.ID.String()}, rec.promoted)
	assert.Len(t, rec.registered, 4)
}

func TestRemoveGuestWithoutWaitlist(t *testing.T) {
	f := gofakeit.New(3)
	a := newActor(t)
	ctx := context.Background()
	e := createEvent(t, a, saturday, 3)

	ra, err := a.RegisterGuestForEvent(ctx, e.ID, fakeGuest(f))
	require.NoError(t, err)
	rb, err := a.RegisterGuestForEvent(ctx, e.ID, fakeGuest(f))
	require.NoError(t, err)

	require.NoError(t, a.RemoveGuest(ctx, e.ID, ra.Guest.ID))

	guests, err := a.GetEventGuests(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, guests, 1)
	assert.Equal(t, rb.Guest.ID, guests[0].ID)
	assert.Equal(t, rsvp.StatusGoing, guests[0].Status)
}

func TestRemoveGuestNotFound(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	e := createEvent(t, a, saturday, 3)

	assert.ErrorIs(t, a.RemoveGuest(ctx, id.NewEventID(), id.NewGuestID()), sps.ErrEventNotFound)
	assert.ErrorIs(t, a.RemoveGuest(ctx, e.ID, id.NewGuestID()), sps.ErrGuestNotFound)
}

func TestThreeGuestsScenario(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	e := createEvent(t, a, saturday, 2)

	ra, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	rb, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "B", Email: "b@example.com"})
	require.NoError(t, err)
	rc, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "C", Email: "c@example.com"})
	require.NoError(t, err)

	assert.Equal(t, rsvp.StatusGoing, ra.Status)
	assert.Equal(t, rsvp.StatusGoing, rb.Status)
	assert.Equal(t, rsvp.StatusWaitlisted, rc.Status)

	require.NoError(t, a.RemoveGuest(ctx, e.ID, ra.Guest.ID))

	c, err := a.GetEventGuest(ctx, e.ID, rc.Guest.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, rsvp.StatusGoing, c.Status)
}

func TestSetGuestStatus(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	e := createEvent(t, a, saturday, 1)

	ra, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	rb, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "B", Email: "b@example.com"})
	require.NoError(t, err)
	require.Equal(t, rsvp.StatusWaitlisted, rb.Status)

	other, err := a.RegisterGuest(ctx, rsvp.GuestInput{Name: "C", Email: "c@example.com"})
	require.NoError(t, err)
	got, err := a.SetGuestStatus(ctx, e.ID, other.Guest.ID, rsvp.StatusGoing)
	require.NoError(t, err)
	assert.Equal(t, rsvp.StatusWaitlisted, got, "full event waitlists")

	got, err = a.SetGuestStatus(ctx, e.ID, ra.Guest.ID, rsvp.StatusNotGoing)
	require.NoError(t, err)
	assert.Equal(t, rsvp.StatusNotGoing, got)

	b, err := a.GetEventGuest(ctx, e.ID, rb.Guest.ID)
	require.NoError(t, err)
	assert.Equal(t, rsvp.StatusGoing, b.Status, "earliest waitlisted guest promoted")

	_, err = a.SetGuestStatus(ctx, e.ID, ra.Guest.ID, rsvp.GuestStatus("maybe"))
	assert.True(t, sps.IsValidation(err))
}

func TestRegisterGuestDedupsByEmail(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()

	first, err := a.RegisterGuest(ctx, rsvp.GuestInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.True(t, first.Updated)

	again, err := a.RegisterGuest(ctx, rsvp.GuestInput{Name: "Ada L", Email: " ADA@example.com"})
	require.NoError(t, err)
	assert.False(t, again.Updated)
	assert.Equal(t, first.Guest.ID, again.Guest.ID)

	byEmail, err := a.GetGuestByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.Guest.ID, byEmail.ID)

	byID, err := a.GetGuestByID(ctx, first.Guest.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", byID.Name)

	_, err = a.GetGuestByID(ctx, id.NewGuestID())
	assert.ErrorIs(t, err, sps.ErrGuestNotFound)
}

func TestUpdateEvent(t *testing.T) {
	rec := &recorder{}
	a := newActor(t, rsvp.WithEmitter(rec))
	ctx := context.Background()
	e := createEvent(t, a, saturday, 1)

	_, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	rb, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "B", Email: "b@example.com"})
	require.NoError(t, err)

	zero := 0
	_, err = a.UpdateEvent(ctx, e.ID, rsvp.EventPatch{GuestLimit: &zero})
	assert.True(t, sps.IsValidation(err))

	two := 2
	loc := "Brooklyn"
	updated, err := a.UpdateEvent(ctx, e.ID, rsvp.EventPatch{GuestLimit: &two, Location: &loc})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.GuestLimit)
	assert.Equal(t, "Brooklyn", updated.Location)
	assert.Equal(t, 2, updated.Going())
	assert.Equal(t, []string{rb.Guest.ID.String()}, rec.promoted)

	one := 1
	_, err = a.UpdateEvent(ctx, e.ID, rsvp.EventPatch{GuestLimit: &one})
	require.Error(t, err)
	assert.True(t, sps.IsValidation(err))

	_, err = a.UpdateEvent(ctx, id.NewEventID(), rsvp.EventPatch{Location: &loc})
	assert.ErrorIs(t, err, sps.ErrEventNotFound)
}

func TestUpdateEventStartReorders(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	first := createEvent(t, a, saturday, 5)
	second := createEvent(t, a, saturday.AddDate(0, 0, 7), 5)

	later := saturday.AddDate(0, 0, 14)
	_, err := a.UpdateEvent(ctx, first.ID, rsvp.EventPatch{StartDate: &later})
	require.NoError(t, err)

	events, err := a.GetEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, second.ID, events[0].ID)
	assert.Equal(t, first.ID, events[1].ID)
}

func TestDeleteEvent(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	e := createEvent(t, a, saturday, 5)

	require.NoError(t, a.DeleteEvent(ctx, e.ID))
	_, err := a.GetEvent(ctx, e.ID)
	assert.ErrorIs(t, err, sps.ErrEventNotFound)
	assert.ErrorIs(t, a.DeleteEvent(ctx, e.ID), sps.ErrEventNotFound)
}

func TestGetCurrentOrNextEvent(t *testing.T) {
	fake := clock.NewFake(saturday.Add(-time.Hour))
	a := newActor(t, rsvp.WithClock(fake))
	ctx := context.Background()

	none, err := a.GetCurrentOrNextEvent(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	this := createEvent(t, a, saturday, 5)
	next := createEvent(t, a, saturday.AddDate(0, 0, 7), 5)

	got, err := a.GetCurrentOrNextEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, this.ID, got.ID)

	fake.Set(saturday.Add(time.Hour))
	got, err = a.GetCurrentOrNextEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, this.ID, got.ID, "in progress wins")

	fake.Set(saturday.Add(4 * time.Hour))
	got, err = a.GetCurrentOrNextEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, next.ID, got.ID)
}

func TestGetEventsByDate(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	e := createEvent(t, a, saturday, 5)
	createEvent(t, a, saturday.AddDate(0, 0, 7), 5)

	// 23:30 New York is already Sunday in UTC.
	events, err := a.GetEventsByDate(ctx, time.Date(2025, time.June, 7, 23, 30, 0, 0, clock.NewYork))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, e.ID, events[0].ID)
}

func TestCancelAndReschedule(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	e := createEvent(t, a, saturday, 5)

	_, err := a.RescheduleEvent(ctx, e.ID)
	assert.ErrorIs(t, err, sps.ErrNotCanceled)

	canceled, err := a.CancelEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, rsvp.EventCanceled, canceled.Status)

	back, err := a.RescheduleEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, rsvp.EventScheduled, back.Status)
}

func TestCancelEventGuardsStatus(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()

	running := createEvent(t, a, saturday, 5)
	require.NoError(t, a.UpdateEventStatus(ctx, running.ID, rsvp.EventInProgress))
	canceled, err := a.CancelEvent(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, rsvp.EventCanceled, canceled.Status)

	again, err := a.CancelEvent(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, rsvp.EventCanceled, again.Status)

	done := createEvent(t, a, saturday.AddDate(0, 0, 7), 5)
	require.NoError(t, a.UpdateEventStatus(ctx, done.ID, rsvp.EventCompleted))
	_, err = a.CancelEvent(ctx, done.ID)
	require.ErrorIs(t, err, sps.ErrEventEnded)
	assert.Equal(t, sps.KindConflict, sps.KindOf(err))

	got, err := a.GetEvent(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, rsvp.EventCompleted, got.Status)

	_, err = a.CancelEvent(ctx, id.NewEventID())
	require.ErrorIs(t, err, sps.ErrEventNotFound)
}

func TestScheduleBreak(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	inside := createEvent(t, a, saturday, 5)
	outside := createEvent(t, a, saturday.AddDate(0, 0, 14), 5)

	brk, err := a.ScheduleBreak(ctx, rsvp.BreakInput{
		StartDate: saturday.AddDate(0, 0, -1),
		EndDate:   saturday.AddDate(0, 0, 7),
		Reason:    "summer",
	})
	require.NoError(t, err)
	assert.Equal(t, "summer", brk.Reason)

	got, err := a.GetEvent(ctx, inside.ID)
	require.NoError(t, err)
	assert.Equal(t, rsvp.EventCanceled, got.Status)

	got, err = a.GetEvent(ctx, outside.ID)
	require.NoError(t, err)
	assert.Equal(t, rsvp.EventScheduled, got.Status)

	_, err = a.RescheduleEvent(ctx, inside.ID)
	assert.ErrorIs(t, err, sps.ErrInBreak)

	_, err = a.ScheduleBreak(ctx, rsvp.BreakInput{
		StartDate: saturday.AddDate(0, 0, 7),
		EndDate:   saturday.AddDate(0, 0, 9),
	})
	assert.ErrorIs(t, err, sps.ErrBreakOverlap, "shared bound overlaps")

	_, err = a.ScheduleBreak(ctx, rsvp.BreakInput{StartDate: saturday, EndDate: saturday.Add(-time.Hour)})
	assert.True(t, sps.IsValidation(err))

	breaks, err := a.GetBreaks(ctx)
	require.NoError(t, err)
	assert.Len(t, breaks, 1)
}

func TestStorageCapability(t *testing.T) {
	a := newActor(t)
	ctx := context.Background()
	e1 := createEvent(t, a, saturday, 5)
	e2 := createEvent(t, a, saturday.AddDate(0, 0, 7), 5)

	found, err := a.FindEvent(ctx, rsvp.EventFilter{
		StartDate: saturday.UTC(),
		Statuses:  []rsvp.EventStatus{rsvp.EventScheduled, rsvp.EventInProgress},
	})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, e1.ID, found.ID)

	require.NoError(t, a.UpdateEventStatus(ctx, e1.ID, rsvp.EventCompleted))
	found, err = a.FindEvent(ctx, rsvp.EventFilter{
		StartDate: saturday,
		Statuses:  []rsvp.EventStatus{rsvp.EventScheduled, rsvp.EventInProgress},
	})
	require.NoError(t, err)
	assert.Nil(t, found)

	ra, err := a.RegisterGuestForEvent(ctx, e1.ID, rsvp.GuestInput{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = a.RegisterGuestForEvent(ctx, e2.ID, rsvp.GuestInput{Name: "B", Email: "b@example.com"})
	require.NoError(t, err)
	_, err = a.RegisterGuestForEvent(ctx, e2.ID, rsvp.GuestInput{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = a.SetGuestStatus(ctx, e2.ID, ra.Guest.ID, rsvp.StatusGoing)
	require.NoError(t, err)

	going, err := a.ListGuestsWithStatus(ctx, e1.ID, rsvp.StatusGoing)
	require.NoError(t, err)
	assert.Len(t, going, 1)

	all, err := a.ListGuestsWithStatus(ctx, id.Nil, rsvp.StatusGoing)
	require.NoError(t, err)
	assert.Len(t, all, 2, "guest going to two events is listed once")

	n, err := a.ResetAllGoingStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err = a.ListGuestsWithStatus(ctx, id.Nil, rsvp.StatusGoing)
	require.NoError(t, err)
	assert.Empty(t, all)

	err = a.UpdateEventStatus(ctx, e1.ID, rsvp.EventStatus("done"))
	assert.True(t, sps.IsValidation(err))
}

func TestSnapshotRestore(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	a := newActor(t, rsvp.WithSnapshotStore(store))
	e := createEvent(t, a, saturday, 2)
	r, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	a.Close()

	restored := newActor(t, rsvp.WithSnapshotStore(store))
	got, err := restored.GetEventGuest(ctx, e.ID, r.Guest.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rsvp.StatusGoing, got.Status)

	_, ok, err := store.LoadSnapshot(ctx, rsvp.SnapshotKey("sps:test"))
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingSnapshots struct{ *memory.Store }

func (failingSnapshots) SaveSnapshot(context.Context, string, []byte) error {
	return fmt.Errorf("disk full")
}

func TestFailedSaveLeavesStateUnchanged(t *testing.T) {
	a := newActor(t, rsvp.WithSnapshotStore(failingSnapshots{memory.New()}))

	_, err := a.CreateEvent(context.Background(), rsvp.EventInput{
		StartDate:  saturday,
		EndDate:    saturday.Add(3 * time.Hour),
		Location:   "here",
		GuestLimit: 1,
	})
	require.Error(t, err)

	events, err := a.GetEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCanceledContextLeavesStateUnchanged(t *testing.T) {
	a := newActor(t)
	e := createEvent(t, a, saturday, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.RegisterGuestForEvent(ctx, e.ID, rsvp.GuestInput{Name: "Ada", Email: "ada@example.com"})
	require.ErrorIs(t, err, context.Canceled)

	got, err := a.GetEvent(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Guests)
}

func TestRegistry(t *testing.T) {
	r := rsvp.NewRegistry(rsvp.WithClock(clock.NewFake(saturday)))
	defer r.Close()
	ctx := context.Background()

	nyc, err := r.Get(ctx, "sps:nyc")
	require.NoError(t, err)
	again, err := r.Get(ctx, "sps:nyc")
	require.NoError(t, err)
	assert.Same(t, nyc, again)

	other, err := r.Get(ctx, "sps:sf")
	require.NoError(t, err)
	assert.NotSame(t, nyc, other)
	assert.Equal(t, "sps:sf", other.Tag())
}
