package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/zephraph/sps/clock"
)

// Fixed copy of the meetup's email.
const (
	DefaultFrom   = "Side Project Saturday <events@sideprojectsaturday.com>"
	VerifyFrom    = "noreply@sideprojectsaturday.com"
	InfoFrom      = "info@sideprojectsaturday.com"
	EventTime     = "9:00 AM - 12:00 PM"
	EventLocation = "325 Gold Street, Brooklyn, NY (5th Floor)"

	// InviteDateLayout formats the event date in the invite subject.
	InviteDateLayout = "Monday, January 2, 2006"
)

// Recipient is one addressee of a batch.
type Recipient struct {
	Name  string
	Email string
}

// Service renders templates and sends them through a Sender.
type Service struct {
	sender      Sender
	from        string
	baseURL     string
	limiter     *rate.Limiter
	concurrency int
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithFrom overrides the event sender address.
func WithFrom(from string) Option { return func(s *Service) { s.from = from } }

// WithBaseURL sets the prefix of links in emails.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithRateLimit caps sends per second across the service. SES accounts
// start at 1 per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Service) {
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithConcurrency bounds in-flight sends of one batch.
func WithConcurrency(n int) Option { return func(s *Service) { s.concurrency = n } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService creates a Service.
func NewService(sender Sender, opts ...Option) *Service {
	s := &Service{
		sender:      sender,
		from:        DefaultFrom,
		baseURL:     "https://sideprojectsaturday.com",
		limiter:     rate.NewLimiter(rate.Limit(14), 14),
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers one message, waiting for the rate limiter.
func (s *Service) Send(ctx context.Context, msg Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail: rate limit: %w", err)
	}
	if msg.From == "" {
		msg.From = s.from
	}
	return s.sender.Send(ctx, msg)
}

// SendBatch delivers every message. A failed message does not stop the
// others; the failures are joined into the returned error.
func (s *Service) SendBatch(ctx context.Context, msgs []Message) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, msg := range msgs {
		g.Go(func() error {
			if err := s.Send(gctx, msg); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("to %s: %w", strings.Join(msg.To, ","), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return an error
	if len(errs) > 0 {
		s.logger.Warn("batch partially failed",
			slog.Int("failed", len(errs)),
			slog.Int("total", len(msgs)),
		)
		return errors.Join(errs...)
	}
	return nil
}

func (s *Service) link(path string) string { return s.baseURL + path }

// SendInvite broadcasts the invite for the event starting at eventDate to
// audience, one message per address.
func (s *Service) SendInvite(ctx context.Context, eventDate time.Time, audience []string) error {
	r, err := Render(TemplateInvite, InviteData{
		EventDate: eventDate.In(clock.NewYork).Format(InviteDateLayout),
		EventTime: EventTime,
		RSVPLink:  s.link("/rsvp"),
	})
	if err != nil {
		return err
	}
	msgs := make([]Message, 0, len(audience))
	for _, addr := range audience {
		msgs = append(msgs, Message{To: []string{addr}, Subject: r.Subject, HTML: r.HTML, Text: r.Text})
	}
	s.logger.Info("sending event invite",
		slog.Time("event_date", eventDate),
		slog.Int("audience", len(audience)),
	)
	return s.SendBatch(ctx, msgs)
}

// SendToday sends the morning-of email to each recipient.
func (s *Service) SendToday(ctx context.Context, recipients []Recipient) error {
	msgs := make([]Message, 0, len(recipients))
	for _, rcpt := range recipients {
		r, err := Render(TemplateToday, TodayData{
			RecipientName: rcpt.Name,
			EventTime:     EventTime,
			EventLocation: EventLocation,
			BuzzInLink:    s.link("/buzz-in"),
			CancelLink:    s.link("/cancel-rsvp"),
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, Message{To: []string{rcpt.Email}, Subject: r.Subject, HTML: r.HTML, Text: r.Text})
	}
	s.logger.Info("sending event today emails", slog.Int("recipients", len(recipients)))
	return s.SendBatch(ctx, msgs)
}

// SendVerification asks address to confirm itself; entryID identifies the
// mailing list entry the link verifies.
func (s *Service) SendVerification(ctx context.Context, address, entryID string) error {
	r, err := Render(TemplateVerify, VerifyData{
		VerifyLink: s.link("/verify?id=" + url.QueryEscape(entryID)),
	})
	if err != nil {
		return err
	}
	return s.Send(ctx, Message{From: VerifyFrom, To: []string{address}, Subject: r.Subject, HTML: r.HTML, Text: r.Text})
}

// SendText sends a plain text message from the info address.
func (s *Service) SendText(ctx context.Context, address, subject, text string) error {
	return s.Send(ctx, Message{From: InfoFrom, To: []string{address}, Subject: subject, Text: text})
}
