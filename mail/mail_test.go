package mail_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/mail"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []mail.Message
	fail map[string]bool
}

func (c *captureSender) Send(_ context.Context, msg mail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[msg.To[0]] {
		return errors.New("mailbox unavailable")
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSender) sent() []mail.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]mail.Message(nil), c.msgs...)
	sort.Slice(out, func(i, j int) bool { return out[i].To[0] < out[j].To[0] })
	return out
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newService(sender mail.Sender) *mail.Service {
	return mail.NewService(sender,
		mail.WithBaseURL("https://sps.test/"),
		mail.WithRateLimit(1000, 100),
		mail.WithLogger(quietLogger()),
	)
}

func TestRenderInvite(t *testing.T) {
	r, err := mail.Render(mail.TemplateInvite, mail.InviteData{
		EventDate: "Saturday, June 7, 2025",
		EventTime: mail.EventTime,
		RSVPLink:  "https://sps.test/rsvp",
	})
	require.NoError(t, err)
	assert.Equal(t, "Side Project Saturday - Saturday, June 7, 2025", r.Subject)
	assert.Contains(t, r.HTML, `href="https://sps.test/rsvp"`)
	assert.Contains(t, r.Text, "9:00 AM - 12:00 PM")
}

func TestRenderTodayEscapesName(t *testing.T) {
	r, err := mail.Render(mail.TemplateToday, mail.TodayData{
		RecipientName: "<b>Ada</b>",
		EventTime:     mail.EventTime,
		EventLocation: mail.EventLocation,
		BuzzInLink:    "https://sps.test/buzz-in",
		CancelLink:    "https://sps.test/cancel-rsvp",
	})
	require.NoError(t, err)
	assert.Equal(t, "Side Project Saturday is TODAY!", r.Subject)
	assert.Contains(t, r.HTML, "&lt;b&gt;Ada&lt;/b&gt;")
	assert.Contains(t, r.Text, "<b>Ada</b>, it's happening TODAY!")
	assert.Contains(t, r.Text, "325 Gold Street, Brooklyn, NY (5th Floor)")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := mail.Render("nope", nil)
	assert.Error(t, err)
}

func TestSendInvite(t *testing.T) {
	c := &captureSender{}
	svc := newService(c)
	date := time.Date(2025, time.June, 7, 9, 0, 0, 0, clock.NewYork)

	require.NoError(t, svc.SendInvite(context.Background(), date.UTC(), []string{"a@example.com", "b@example.com"}))

	sent := c.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []string{"a@example.com"}, sent[0].To)
	assert.Equal(t, mail.DefaultFrom, sent[0].From)
	assert.Equal(t, "Side Project Saturday - Saturday, June 7, 2025", sent[0].Subject)
	assert.Contains(t, sent[1].HTML, "https://sps.test/rsvp")
}

func TestSendToday(t *testing.T) {
	c := &captureSender{}
	svc := newService(c)
	f := gofakeit.New(7)

	rcpts := []mail.Recipient{
		{Name: f.FirstName(), Email: "a@example.com"},
		{Name: "", Email: "b@example.com"},
	}
	require.NoError(t, svc.SendToday(context.Background(), rcpts))

	sent := c.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Text, rcpts[0].Name+", it's happening TODAY!")
	assert.True(t, strings.HasPrefix(sent[1].Text, "It's happening TODAY!"))
	assert.Contains(t, sent[1].Text, "https://sps.test/buzz-in")
	assert.Contains(t, sent[1].Text, "https://sps.test/cancel-rsvp")
}

func TestSendBatchJoinsFailures(t *testing.T) {
	c := &captureSender{fail: map[string]bool{"bad@example.com": true}}
	svc := newService(c)

	err := svc.SendBatch(context.Background(), []mail.Message{
		{To: []string{"good@example.com"}, Subject: "hi"},
		{To: []string{"bad@example.com"}, Subject: "hi"},
		{To: []string{"also-good@example.com"}, Subject: "hi"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad@example.com")
	assert.Len(t, c.sent(), 2)
}

func TestSendVerification(t *testing.T) {
	c := &captureSender{}
	svc := newService(c)

	require.NoError(t, svc.SendVerification(context.Background(), "a@example.com", "eml_123"))
	sent := c.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, mail.VerifyFrom, sent[0].From)
	assert.Equal(t, "Verify your email", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "https://sps.test/verify?id=eml_123")
}

func TestSendHonorsCanceledContext(t *testing.T) {
	svc := mail.NewService(&captureSender{}, mail.WithRateLimit(0.001, 1), mail.WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, svc.Send(ctx, mail.Message{To: []string{"a@example.com"}}))
	cancel()
	assert.Error(t, svc.Send(ctx, mail.Message{To: []string{"a@example.com"}}))
}

type fakeSES struct {
	in  *ses.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender(t *testing.T) {
	api := &fakeSES{}
	s := mail.NewSESSenderWithClient(api, quietLogger())

	err := s.Send(context.Background(), mail.Message{
		From:    mail.DefaultFrom,
		To:      []string{"a@example.com"},
		Subject: "Hello",
		Text:    "plain",
	})
	require.NoError(t, err)
	require.NotNil(t, api.in)
	assert.Equal(t, mail.DefaultFrom, aws.ToString(api.in.Source))
	assert.Equal(t, []string{"a@example.com"}, api.in.Destination.ToAddresses)
	assert.Equal(t, "Hello", aws.ToString(api.in.Message.Subject.Data))
	assert.Equal(t, "plain", aws.ToString(api.in.Message.Body.Text.Data))
	assert.Nil(t, api.in.Message.Body.Html)

	api.err = errors.New("throttled")
	err = s.Send(context.Background(), mail.Message{To: []string{"a@example.com"}})
	assert.ErrorContains(t, err, "throttled")
}

func TestNopSender(t *testing.T) {
	assert.NoError(t, mail.NopSender{Logger: quietLogger()}.Send(context.Background(), mail.Message{To: []string{"x@example.com"}}))
}
