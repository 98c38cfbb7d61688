// Package mailinglist owns the meetup's mailing list: addresses, whether
// they are verified and whether they unsubscribed. Entries are looked up
// by ID or by address. The verified, subscribed addresses are the
// audience of the weekly invite.
package mailinglist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/actor"
	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/id"
)

// Entry is one address on the list.
type Entry struct {
	ID           id.EmailID `json:"id"`
	Address      string     `json:"address"`
	Verified     bool       `json:"verified"`
	Unsubscribed bool       `json:"unsubscribed"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Mailer delivers list mail. *mail.Service satisfies it.
type Mailer interface {
	SendVerification(ctx context.Context, address, entryID string) error
	SendText(ctx context.Context, address, subject, text string) error
}

type state struct {
	Entries   map[string]*Entry `json:"entries"`
	byAddress map[string]string
}

func newState() *state {
	return &state{Entries: make(map[string]*Entry), byAddress: make(map[string]string)}
}

func (s *state) reindex() {
	s.byAddress = make(map[string]string, len(s.Entries))
	for k, e := range s.Entries {
		s.byAddress[e.Address] = k
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, e := range s.Entries {
		ec := *e
		c.Entries[k] = &ec
		c.byAddress[e.Address] = k
	}
	return c
}

func (s *state) byAddr(address string) *Entry {
	if k, ok := s.byAddress[address]; ok {
		return s.Entries[k]
	}
	return nil
}

// List is the mailing list actor for one context tag.
type List struct {
	tag       string
	mailbox   *actor.Mailbox
	st        *state
	mailer    Mailer
	snapshots actor.SnapshotStore
	clock     clock.Clock
	validate  *validator.Validate
	logger    *slog.Logger
}

// Option configures a List.
type Option func(*List)

// WithSnapshotStore persists the list after every change.
func WithSnapshotStore(s actor.SnapshotStore) Option { return func(l *List) { l.snapshots = s } }

// WithClock sets the time source.
func WithClock(c clock.Clock) Option { return func(l *List) { l.clock = c } }

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option { return func(l *List) { l.logger = lg } }

// SnapshotKey is the key the list for tag is persisted under.
func SnapshotKey(tag string) string { return "mailinglist:" + tag }

// New starts the list for tag.
func New(ctx context.Context, tag string, mailer Mailer, opts ...Option) (*List, error) {
	l := &List{
		tag:      tag,
		st:       newState(),
		mailer:   mailer,
		clock:    clock.Real{},
		validate: validator.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.snapshots != nil {
		data, ok, err := l.snapshots.LoadSnapshot(ctx, SnapshotKey(tag))
		if err != nil {
			return nil, fmt.Errorf("mailinglist: load snapshot %q: %w", tag, err)
		}
		if ok {
			st := newState()
			if err := json.Unmarshal(data, st); err != nil {
				return nil, fmt.Errorf("mailinglist: decode snapshot %q: %w", tag, err)
			}
			if st.Entries == nil {
				st.Entries = make(map[string]*Entry)
			}
			st.reindex()
			l.st = st
		}
	}
	l.mailbox = actor.New(64)
	return l, nil
}

// Close stops the mailbox.
func (l *List) Close() { l.mailbox.Close() }

func (l *List) mutate(ctx context.Context, fn func(st *state) (*Entry, error)) (*Entry, error) {
	return actor.Do(ctx, l.mailbox, func() (*Entry, error) {
		next := l.st.clone()
		e, err := fn(next)
		if err != nil {
			return nil, err
		}
		if l.snapshots != nil {
			data, err := json.Marshal(next)
			if err != nil {
				return nil, fmt.Errorf("mailinglist: encode snapshot: %w", err)
			}
			if err := l.snapshots.SaveSnapshot(ctx, SnapshotKey(l.tag), data); err != nil {
				return nil, fmt.Errorf("mailinglist: save snapshot: %w", err)
			}
		}
		l.st = next
		c := *e
		return &c, nil
	})
}

func (l *List) address(op, address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if err := l.validate.Var(address, "required,email"); err != nil {
		return "", sps.Invalid(op, err)
	}
	return address, nil
}

func (l *List) add(st *state, address string) *Entry {
	if e := st.byAddr(address); e != nil {
		return e
	}
	e := &Entry{ID: id.NewEmailID(), Address: address, CreatedAt: l.clock.Now().UTC()}
	st.Entries[e.ID.String()] = e
	st.byAddress[address] = e.ID.String()
	return e
}

// Subscribe adds address, or clears its unsubscribed flag if present.
func (l *List) Subscribe(ctx context.Context, address string) (*Entry, error) {
	address, err := l.address("subscribe", address)
	if err != nil {
		return nil, err
	}
	return l.mutate(ctx, func(st *state) (*Entry, error) {
		e := l.add(st, address)
		e.Unsubscribed = false
		return e, nil
	})
}

// Get returns the entry for address.
func (l *List) Get(ctx context.Context, address string) (*Entry, error) {
	address, err := l.address("get entry", address)
	if err != nil {
		return nil, err
	}
	return actor.Do(ctx, l.mailbox, func() (*Entry, error) {
		e := l.st.byAddr(address)
		if e == nil {
			return nil, sps.ErrEmailNotFound
		}
		c := *e
		return &c, nil
	})
}

// IsVerified reports whether address is on the list and verified.
func (l *List) IsVerified(ctx context.Context, address string) (bool, error) {
	address, err := l.address("is verified", address)
	if err != nil {
		return false, err
	}
	return actor.Do(ctx, l.mailbox, func() (bool, error) {
		e := l.st.byAddr(address)
		return e != nil && e.Verified, nil
	})
}

func (l *List) update(ctx context.Context, entryID id.EmailID, fn func(e *Entry)) error {
	_, err := l.mutate(ctx, func(st *state) (*Entry, error) {
		e, ok := st.Entries[entryID.String()]
		if !ok {
			return nil, sps.ErrEmailNotFound
		}
		fn(e)
		return e, nil
	})
	return err
}

// Verify marks an entry verified.
func (l *List) Verify(ctx context.Context, entryID id.EmailID) error {
	return l.update(ctx, entryID, func(e *Entry) { e.Verified = true })
}

// Unsubscribe marks an entry unsubscribed.
func (l *List) Unsubscribe(ctx context.Context, entryID id.EmailID) error {
	return l.update(ctx, entryID, func(e *Entry) { e.Unsubscribed = true })
}

// SendVerificationEmail adds address if needed and mails it a
// verification link. A verified address gets nothing.
func (l *List) SendVerificationEmail(ctx context.Context, address string) error {
	address, err := l.address("send verification", address)
	if err != nil {
		return err
	}
	e, err := l.mutate(ctx, func(st *state) (*Entry, error) {
		return l.add(st, address), nil
	})
	if err != nil {
		return err
	}
	if e.Verified {
		return nil
	}
	if err := l.mailer.SendVerification(ctx, e.Address, e.ID.String()); err != nil {
		return fmt.Errorf("mailinglist: send verification: %w", err)
	}
	l.logger.Info("verification email sent", slog.String("email_id", e.ID.String()))
	return nil
}

// SendEmail mails a known, subscribed address.
func (l *List) SendEmail(ctx context.Context, address, subject, text string) error {
	address, err := l.address("send email", address)
	if err != nil {
		return err
	}
	if err := l.mailbox.Exec(ctx, func() error {
		e := l.st.byAddr(address)
		if e == nil {
			return sps.ErrEmailNotFound
		}
		if e.Unsubscribed {
			return sps.ErrUnsubscribed
		}
		return nil
	}); err != nil {
		return err
	}
	if err := l.mailer.SendText(ctx, address, subject, text); err != nil {
		return fmt.Errorf("mailinglist: send email: %w", err)
	}
	return nil
}

// Recipients returns the verified, subscribed addresses in sorted order.
func (l *List) Recipients(ctx context.Context) ([]string, error) {
	return actor.Do(ctx, l.mailbox, func() ([]string, error) {
		var out []string
		for _, e := range l.st.Entries {
			if e.Verified && !e.Unsubscribed {
				out = append(out, e.Address)
			}
		}
		sort.Strings(out)
		return out, nil
	})
}
