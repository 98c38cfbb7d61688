package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/mail"
	"github.com/zephraph/sps/rsvp"
	"github.com/zephraph/sps/workflow"
)

// WorkflowName is the registered name of the event workflow.
const WorkflowName = "event-management"

// Step names, in execution order.
const (
	StepCreateEvent    = "create-event"
	StepWaitWednesday  = "wait-for-wednesday"
	StepSendInvite     = "send-event-invite"
	StepWaitMorning    = "wait-for-saturday-morning"
	StepSendToday      = "send-event-today-emails"
	StepWaitEventStart = "wait-for-event-start"
	StepStartEvent     = "start-event"
	StepWaitEventEnd   = "wait-for-event-end"
	StepEndEvent       = "end-event"
)

// InviteStep names the step that sends the invite to one address.
func InviteStep(address string) string { return StepSendInvite + "/" + address }

// inviteList is the checkpointed result of StepSendInvite.
type inviteList struct {
	Addresses []string
}

// DayOfStep names the step that sends the day-of email to one guest.
func DayOfStep(guestID string) string { return StepSendToday + "/" + guestID }

type dayOfGuest struct {
	ID    string
	Name  string
	Email string
}

// dayOfList is the checkpointed result of StepSendToday.
type dayOfList struct {
	Guests []dayOfGuest
}

// Input is the workflow input.
type Input struct {
	ScheduledDate time.Time `json:"scheduled_date"`
}

// Lifecycle holds the capabilities the workflow acts on.
type Lifecycle struct {
	storage    Storage
	mailer     Mailer
	audience   Audience
	door       Door
	location   string
	guestLimit int
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithLocation sets the location written on created events.
func WithLocation(loc string) Option { return func(l *Lifecycle) { l.location = loc } }

// WithGuestLimit sets the capacity of created events.
func WithGuestLimit(n int) Option { return func(l *Lifecycle) { l.guestLimit = n } }

// New returns a Lifecycle. Location defaults to mail.EventLocation and the
// guest limit to 30.
func New(storage Storage, mailer Mailer, audience Audience, door Door, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		storage:    storage,
		mailer:     mailer,
		audience:   audience,
		door:       door,
		location:   mail.EventLocation,
		guestLimit: 30,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Definition returns the event-management workflow.
func (l *Lifecycle) Definition() *workflow.Definition[Input] {
	return workflow.NewWorkflow(WorkflowName, l.run)
}

// Register adds the workflow to reg.
func (l *Lifecycle) Register(reg *workflow.Registry) {
	workflow.RegisterDefinition(reg, l.Definition())
}

func at(date time.Time, deltaDays, hour, minute int) time.Time {
	return clock.OffsetFromAnchor(date, deltaDays, hour, minute, clock.NewYork)
}

func (l *Lifecycle) run(wf *workflow.Workflow, in Input) error {
	if in.ScheduledDate.IsZero() {
		return sps.Invalidf(WorkflowName, "scheduled date is required")
	}
	date := in.ScheduledDate
	log := wf.Logger().With(slog.Time("scheduled_date", date))

	raw, err := workflow.DoWithResult(wf, StepCreateEvent, func(ctx context.Context) (string, error) {
		e, err := l.createEvent(ctx, date)
		if err != nil {
			return "", err
		}
		return e.ID.String(), nil
	})
	if err != nil {
		return err
	}
	eventID, err := id.ParseEventID(raw)
	if err != nil {
		return fmt.Errorf("%s: bad event id %q: %w", WorkflowName, raw, err)
	}
	log = log.With(slog.String("event_id", raw))

	if err := wf.SleepUntil(StepWaitWednesday, at(date, -3, 12, 0)); err != nil {
		return err
	}
	// Recipient lists are checkpointed first and each recipient then gets
	// its own step, so a retry resends only the emails that failed.
	audience, err := workflow.DoWithResult(wf, StepSendInvite, func(ctx context.Context) (inviteList, error) {
		var list inviteList
		err := l.whenStatus(ctx, log, StepSendInvite, eventID, rsvp.EventScheduled, func(ctx context.Context, _ *rsvp.Event) error {
			addrs, err := l.audience.Recipients(ctx)
			if err != nil {
				return err
			}
			list.Addresses = addrs
			log.Info("sending event invite", slog.Int("recipients", len(addrs)))
			return nil
		})
		return list, err
	})
	if err != nil {
		return err
	}
	for _, addr := range audience.Addresses {
		if err := wf.Do(InviteStep(addr), func(ctx context.Context) error {
			return l.mailer.SendInvite(ctx, date, []string{addr})
		}); err != nil {
			return err
		}
	}

	if err := wf.SleepUntil(StepWaitMorning, at(date, 0, 7, 0)); err != nil {
		return err
	}
	today, err := workflow.DoWithResult(wf, StepSendToday, func(ctx context.Context) (dayOfList, error) {
		var list dayOfList
		err := l.whenStatus(ctx, log, StepSendToday, eventID, rsvp.EventScheduled, func(ctx context.Context, e *rsvp.Event) error {
			guests, err := l.storage.ListGuestsWithStatus(ctx, e.ID, rsvp.StatusGoing)
			if err != nil {
				return err
			}
			for _, g := range guests {
				list.Guests = append(list.Guests, dayOfGuest{ID: g.ID.String(), Name: g.Name, Email: g.Email})
			}
			log.Info("sending event day emails", slog.Int("recipients", len(list.Guests)))
			return nil
		})
		return list, err
	})
	if err != nil {
		return err
	}
	for _, g := range today.Guests {
		rcpt := mail.Recipient{Name: g.Name, Email: g.Email}
		if err := wf.Do(DayOfStep(g.ID), func(ctx context.Context) error {
			return l.mailer.SendToday(ctx, []mail.Recipient{rcpt})
		}); err != nil {
			return err
		}
	}

	if err := wf.SleepUntil(StepWaitEventStart, at(date, 0, 9, 0)); err != nil {
		return err
	}
	if err := wf.Do(StepStartEvent, func(ctx context.Context) error {
		return l.whenStatus(ctx, log, StepStartEvent, eventID, rsvp.EventScheduled, func(ctx context.Context, e *rsvp.Event) error {
			if err := l.door.SetLocked(ctx, false); err != nil {
				return err
			}
			return l.storage.UpdateEventStatus(ctx, e.ID, rsvp.EventInProgress)
		})
	}); err != nil {
		return err
	}

	if err := wf.SleepUntil(StepWaitEventEnd, at(date, 0, 12, 0)); err != nil {
		return err
	}
	return wf.Do(StepEndEvent, func(ctx context.Context) error {
		return l.whenStatus(ctx, log, StepEndEvent, eventID, rsvp.EventInProgress, func(ctx context.Context, e *rsvp.Event) error {
			if err := l.door.SetLocked(ctx, true); err != nil {
				return err
			}
			if err := l.storage.UpdateEventStatus(ctx, e.ID, rsvp.EventCompleted); err != nil {
				return err
			}
			n, err := l.storage.ResetAllGoingStatus(ctx)
			if err != nil {
				return err
			}
			log.Info("event closed", slog.Int("rsvps_reset", n))
			return nil
		})
	})
}

// createEvent reuses a live event already starting at date.
func (l *Lifecycle) createEvent(ctx context.Context, date time.Time) (*rsvp.Event, error) {
	existing, err := l.storage.FindEvent(ctx, rsvp.EventFilter{
		StartDate: date,
		Statuses:  []rsvp.EventStatus{rsvp.EventScheduled, rsvp.EventInProgress},
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return l.storage.InsertEvent(ctx, rsvp.EventInput{
		StartDate:  date,
		EndDate:    at(date, 0, 12, 0),
		Location:   l.location,
		GuestLimit: l.guestLimit,
	})
}

// whenStatus runs fn against the current event only if it is in want.
// A deleted event or one in another status skips the phase.
func (l *Lifecycle) whenStatus(
	ctx context.Context,
	log *slog.Logger,
	step string,
	eventID id.EventID,
	want rsvp.EventStatus,
	fn func(ctx context.Context, e *rsvp.Event) error,
) error {
	e, err := l.storage.GetEvent(ctx, eventID)
	switch {
	case errors.Is(err, sps.ErrEventNotFound):
		log.Warn("event gone, skipping phase", slog.String("step", step))
		return nil
	case err != nil:
		return err
	}
	if e.Status != want {
		log.Info("event not in expected status, skipping phase",
			slog.String("step", step),
			slog.String("status", string(e.Status)),
			slog.String("want", string(want)),
		)
		return nil
	}
	return fn(ctx, e)
}

// WeeklyTrigger returns the cron entry that starts one run per week,
// Mondays at 14:00 UTC, for the coming Saturday 09:00 New York time.
func WeeklyTrigger() cron.Definition {
	return cron.Definition{
		Name:     "weekly-event",
		Schedule: "0 14 * * 1",
		Workflow: WorkflowName,
		Input: func(firedAt time.Time) (any, error) {
			return Input{ScheduledDate: NextEventDate(firedAt)}, nil
		},
	}
}

// NextEventDate is the next Saturday 09:00 New York time after now.
func NextEventDate(now time.Time) time.Time {
	return clock.NextWeekdayAt(now, time.Saturday, 9, 0, clock.NewYork)
}
