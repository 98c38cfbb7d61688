package lifecycle

import (
	"context"
	"time"

	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/mail"
	"github.com/zephraph/sps/rsvp"
)

// Storage reads and writes event records. *rsvp.Actor satisfies it.
type Storage interface {
	FindEvent(ctx context.Context, f rsvp.EventFilter) (*rsvp.Event, error)
	InsertEvent(ctx context.Context, in rsvp.EventInput) (*rsvp.Event, error)
	GetEvent(ctx context.Context, eventID id.EventID) (*rsvp.Event, error)
	UpdateEventStatus(ctx context.Context, eventID id.EventID, status rsvp.EventStatus) error
	ListGuestsWithStatus(ctx context.Context, eventID id.EventID, status rsvp.GuestStatus) ([]rsvp.Guest, error)
	ResetAllGoingStatus(ctx context.Context) (int, error)
}

// Mailer sends the invite broadcast and the day-of batch.
// *mail.Service satisfies it.
type Mailer interface {
	SendInvite(ctx context.Context, eventDate time.Time, audience []string) error
	SendToday(ctx context.Context, recipients []mail.Recipient) error
}

// Audience lists who receives the invite. *mailinglist.List satisfies it.
type Audience interface {
	Recipients(ctx context.Context) ([]string, error)
}

// Door locks and unlocks the buzz-in door. *door.Door satisfies it.
type Door interface {
	SetLocked(ctx context.Context, locked bool) error
}
