package cron_test

import (
	"context"
	"testing"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/store/memory"
)

func TestRegister_CreatesEnabledEntry(t *testing.T) {
	s := memory.New()
	def := cron.Definition{Name: "weekly-event", Schedule: "0 14 * * 1", Workflow: "event-management"}

	entry, err := cron.Register(context.Background(), s, def, monday.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !entry.Enabled {
		t.Error("entry not enabled")
	}
	if entry.NextRunAt == nil || !entry.NextRunAt.Equal(monday) {
		t.Errorf("NextRunAt = %v, want %v", entry.NextRunAt, monday)
	}
}

func TestRegister_IsIdempotent(t *testing.T) {
	s := memory.New()
	def := cron.Definition{Name: "weekly-event", Schedule: "0 14 * * 1", Workflow: "event-management"}

	first, err := cron.Register(context.Background(), s, def, monday.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := cron.Register(context.Background(), s, def, monday.Add(time.Hour))
	if err != nil {
		t.Fatalf("Register again: %v", err)
	}
	if first.ID.String() != second.ID.String() {
		t.Error("re-registering created a new entry")
	}
	if !second.NextRunAt.Equal(monday) {
		t.Errorf("NextRunAt moved to %v", second.NextRunAt)
	}

	entries, err := s.ListCrons(context.Background())
	if err != nil {
		t.Fatalf("ListCrons: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestRegister_ScheduleChangeRecomputesNext(t *testing.T) {
	s := memory.New()
	def := cron.Definition{Name: "weekly-event", Schedule: "0 14 * * 1", Workflow: "event-management"}
	if _, err := cron.Register(context.Background(), s, def, monday.Add(-time.Hour)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	def.Schedule = "0 15 * * 1"
	entry, err := cron.Register(context.Background(), s, def, monday.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if want := monday.Add(time.Hour); !entry.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", entry.NextRunAt, want)
	}
}

func TestRegister_RejectsBadSchedule(t *testing.T) {
	s := memory.New()
	_, err := cron.Register(context.Background(), s,
		cron.Definition{Name: "bad", Schedule: "whenever", Workflow: "x"}, monday)
	if !sps.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestDefinitionPayload(t *testing.T) {
	entry := &cron.Entry{Payload: []byte(`{"static":true}`)}

	static := cron.Definition{Name: "static"}
	data, err := static.Payload(entry, monday)
	if err != nil || string(data) != `{"static":true}` {
		t.Errorf("static payload = %s, %v", data, err)
	}

	computed := cron.Definition{
		Name: "computed",
		Input: func(firedAt time.Time) (any, error) {
			return map[string]string{"day": firedAt.Weekday().String()}, nil
		},
	}
	data, err = computed.Payload(entry, monday)
	if err != nil || string(data) != `{"day":"Monday"}` {
		t.Errorf("computed payload = %s, %v", data, err)
	}
}
