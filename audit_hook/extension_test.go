package audithook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	ah "github.com/zephraph/sps/audit_hook"
	"github.com/zephraph/sps/ext"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/workflow"
)

// ── Mock recorder ────────────────────────────────────

type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
	err    error
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func newTestRun() *workflow.Run {
	return &workflow.Run{ID: id.NewRunID(), Name: "event-management", Attempt: 1}
}

// ── Hooks ────────────────────────────────────────────

func TestName(t *testing.T) {
	if got := ah.New(&mockRecorder{}).Name(); got != "audit-hook" {
		t.Errorf("Name() = %q", got)
	}
}

func TestWorkflowStepFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	run := newTestRun()

	if err := e.OnWorkflowStepFailed(context.Background(), run, "send-event-invite", errors.New("ses throttled")); err != nil {
		t.Fatalf("hook error: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionWorkflowStepFailed || evt.Severity != ah.SeverityWarning || evt.Outcome != ah.OutcomeFailure {
		t.Errorf("event = %+v", evt)
	}
	if evt.ResourceID != run.ID.String() || evt.Category != ah.CategoryWorkflow {
		t.Errorf("resource = %q/%q", evt.ResourceID, evt.Category)
	}
	if evt.Reason != "ses throttled" || evt.Metadata["error"] != "ses throttled" {
		t.Errorf("reason = %q meta = %v", evt.Reason, evt.Metadata)
	}
	if evt.Metadata["step_name"] != "send-event-invite" || evt.Metadata["attempt"] != 2 {
		t.Errorf("metadata = %v", evt.Metadata)
	}
	if evt.Metadata["workflow_name"] != "event-management" {
		t.Errorf("workflow_name = %v", evt.Metadata["workflow_name"])
	}
}

func TestWorkflowFailedIsCritical(t *testing.T) {
	rec := &mockRecorder{}
	_ = ah.New(rec).OnWorkflowFailed(context.Background(), newTestRun(), errors.New("boom"))
	if evt := rec.last(); evt.Severity != ah.SeverityCritical {
		t.Errorf("severity = %q, want critical", evt.Severity)
	}
}

func TestGuestHooks(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	ctx := context.Background()
	eventID, guestID := id.NewEventID(), id.NewGuestID()

	_ = e.OnGuestRegistered(ctx, eventID, guestID, "waitlisted")
	evt := rec.last()
	if evt.Action != ah.ActionGuestRegistered || evt.ResourceID != eventID.String() || evt.Metadata["status"] != "waitlisted" {
		t.Errorf("registered event = %+v", evt)
	}

	_ = e.OnGuestPromoted(ctx, eventID, guestID)
	evt = rec.last()
	if evt.Action != ah.ActionGuestPromoted || evt.Metadata["guest_id"] != guestID.String() {
		t.Errorf("promoted event = %+v", evt)
	}
}

func TestCronFired(t *testing.T) {
	rec := &mockRecorder{}
	runID := id.NewRunID()
	_ = ah.New(rec).OnCronFired(context.Background(), "weekly-event", runID)
	evt := rec.last()
	if evt.Resource != ah.ResourceCron || evt.ResourceID != "weekly-event" || evt.Metadata["run_id"] != runID.String() {
		t.Errorf("event = %+v", evt)
	}
}

// ── Filtering ────────────────────────────────────────

func TestWithActions(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionWorkflowFailed))
	ctx := context.Background()
	run := newTestRun()

	_ = e.OnWorkflowStarted(ctx, run)
	_ = e.OnWorkflowCompleted(ctx, run, time.Second)
	_ = e.OnWorkflowFailed(ctx, run, errors.New("boom"))

	if rec.count() != 1 || rec.last().Action != ah.ActionWorkflowFailed {
		t.Errorf("recorded %d events, last %+v", rec.count(), rec.last())
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	rec := &mockRecorder{err: errors.New("disk full")}
	var buf bytes.Buffer
	e := ah.New(rec, ah.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	if err := e.OnWorkflowStarted(context.Background(), newTestRun()); err != nil {
		t.Fatalf("hook returned %v", err)
	}
	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("recorder failure not logged: %q", buf.String())
	}
}

// ── Registry integration ─────────────────────────────

func TestRegistryDispatch(t *testing.T) {
	rec := &mockRecorder{}
	reg := ext.NewRegistry(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	reg.Register(ah.New(rec))
	ctx := context.Background()
	run := newTestRun()

	reg.EmitWorkflowStarted(ctx, run)
	reg.EmitWorkflowSuspended(ctx, run, time.Now())
	reg.EmitWorkflowCanceled(ctx, run)
	reg.EmitGuestPromoted(ctx, id.NewEventID(), id.NewGuestID())

	if rec.count() != 4 {
		t.Errorf("recorded %d events, want 4", rec.count())
	}
}

// ── LogRecorder ──────────────────────────────────────

func TestLogRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := ah.New(ah.LogRecorder(logger))

	_ = e.OnWorkflowFailed(context.Background(), newTestRun(), errors.New("boom"))

	out := buf.String()
	for _, want := range []string{"level=ERROR", "action=workflow.failed", "meta.error=boom", "meta.workflow_name=event-management"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
	if len(ah.AllActions()) != 10 {
		t.Errorf("AllActions = %d entries", len(ah.AllActions()))
	}
}
