package mailinglist_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/mailinglist"
	"github.com/zephraph/sps/store/memory"
)

type fakeMailer struct {
	mu       sync.Mutex
	verifies []string
	texts    []string
}

func (f *fakeMailer) SendVerification(_ context.Context, address, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies = append(f.verifies, address)
	return nil
}

func (f *fakeMailer) SendText(_ context.Context, address, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, address+":"+subject)
	return nil
}

func newList(t *testing.T, m mailinglist.Mailer, opts ...mailinglist.Option) *mailinglist.List {
	t.Helper()
	opts = append([]mailinglist.Option{mailinglist.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	l, err := mailinglist.New(context.Background(), "event:sps:nyc", m, opts...)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestVerificationFlow(t *testing.T) {
	m := &fakeMailer{}
	l := newList(t, m)
	ctx := context.Background()
	addr := "ada@example.com"

	ok, err := l.IsVerified(ctx, addr)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.SendVerificationEmail(ctx, addr))
	assert.Equal(t, []string{addr}, m.verifies)

	e, err := l.Get(ctx, addr)
	require.NoError(t, err)
	require.NoError(t, l.Verify(ctx, e.ID))

	ok, err = l.IsVerified(ctx, addr)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.SendVerificationEmail(ctx, addr))
	assert.Len(t, m.verifies, 1, "verified address is not mailed again")
}

func TestSendEmail(t *testing.T) {
	m := &fakeMailer{}
	l := newList(t, m)
	ctx := context.Background()

	err := l.SendEmail(ctx, "nobody@example.com", "hi", "text")
	assert.ErrorIs(t, err, sps.ErrEmailNotFound)

	e, err := l.Subscribe(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, l.SendEmail(ctx, "ada@example.com", "hi", "text"))
	assert.Equal(t, []string{"ada@example.com:hi"}, m.texts)

	require.NoError(t, l.Unsubscribe(ctx, e.ID))
	err = l.SendEmail(ctx, "ada@example.com", "hi", "text")
	assert.ErrorIs(t, err, sps.ErrUnsubscribed)
	assert.True(t, sps.IsValidation(err))

	_, err = l.Subscribe(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.NoError(t, l.SendEmail(ctx, "ada@example.com", "hi", "text"))
}

func TestUnknownEntry(t *testing.T) {
	l := newList(t, &fakeMailer{})
	ctx := context.Background()
	assert.ErrorIs(t, l.Verify(ctx, id.NewEmailID()), sps.ErrEmailNotFound)
	assert.ErrorIs(t, l.Unsubscribe(ctx, id.NewEmailID()), sps.ErrEmailNotFound)
}

func TestInvalidAddress(t *testing.T) {
	l := newList(t, &fakeMailer{})
	_, err := l.Subscribe(context.Background(), "not an email")
	assert.True(t, sps.IsValidation(err))
}

func TestRecipients(t *testing.T) {
	f := gofakeit.New(11)
	l := newList(t, &fakeMailer{})
	ctx := context.Background()

	var verified []string
	for i := 0; i < 5; i++ {
		e, err := l.Subscribe(ctx, f.Email())
		require.NoError(t, err)
		if i%2 == 0 {
			require.NoError(t, l.Verify(ctx, e.ID))
			verified = append(verified, e.Address)
		}
	}
	gone, err := l.Subscribe(ctx, "gone@example.com")
	require.NoError(t, err)
	require.NoError(t, l.Verify(ctx, gone.ID))
	require.NoError(t, l.Unsubscribe(ctx, gone.ID))

	got, err := l.Recipients(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, verified, got)
}

func TestSnapshotRestore(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	l := newList(t, &fakeMailer{}, mailinglist.WithSnapshotStore(store))
	e, err := l.Subscribe(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, l.Verify(ctx, e.ID))
	l.Close()

	restored := newList(t, &fakeMailer{}, mailinglist.WithSnapshotStore(store))
	ok, err := restored.IsVerified(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}
