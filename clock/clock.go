// Package clock holds the time arithmetic for the weekly event: the
// New York zone, "next Saturday at 9", wake-up offsets from the event
// date, and a Clock that tests can drive by hand.
package clock

import (
	"sync"
	"time"
	_ "time/tzdata" // containers often ship without zoneinfo
)

// NewYork is America/New_York, DST-aware. All event times are local to it.
var NewYork *time.Location

func init() {
	var err error
	NewYork, err = time.LoadLocation("America/New_York")
	if err != nil {
		panic("clock: load America/New_York: " + err.Error())
	}
}

// NextWeekdayAt returns the next instant strictly after now that falls on
// weekday at hour:minute in loc. If today is weekday and the time has
// already passed (or is exactly now), the result is a week later.
func NextWeekdayAt(now time.Time, weekday time.Weekday, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	ahead := (int(weekday) - int(local.Weekday()) + 7) % 7
	candidate := time.Date(local.Year(), local.Month(), local.Day()+ahead, hour, minute, 0, 0, loc)
	if !candidate.After(now) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+ahead+7, hour, minute, 0, 0, loc)
	}
	return candidate
}

// OffsetFromAnchor returns hour:minute in loc on the calendar day that is
// deltaDays away from anchor's calendar day in loc. Negative deltas go
// back in time. The wall-clock time is preserved across DST changes.
func OffsetFromAnchor(anchor time.Time, deltaDays, hour, minute int, loc *time.Location) time.Time {
	a := anchor.In(loc)
	return time.Date(a.Year(), a.Month(), a.Day()+deltaDays, hour, minute, 0, 0, loc)
}

// DelayUntil is target-now, or zero when target is not in the future.
func DelayUntil(now, target time.Time) time.Duration {
	if d := target.Sub(now); d > 0 {
		return d
	}
	return 0
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Fake is a manually advanced clock.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake set to t.
func NewFake(t time.Time) *Fake { return &Fake{now: t} }

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
