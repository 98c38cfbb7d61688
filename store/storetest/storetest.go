// Package storetest checks a store.Store implementation against the
// behavior the engine relies on. Backends call Run from their tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/store"
	"github.com/zephraph/sps/workflow"
)

// Factory returns an empty, migrated store. It is called once per test.
type Factory func(t *testing.T) store.Store

// Run executes the shared store tests.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Ping", testPing},
		{"RunCreateGet", testRunCreateGet},
		{"RunUpdateKeepsCancel", testRunUpdateKeepsCancel},
		{"RunList", testRunList},
		{"ClaimDueRuns", testClaimDueRuns},
		{"Checkpoints", testCheckpoints},
		{"DeleteCheckpointsAfter", testDeleteCheckpointsAfter},
		{"CronRegisterGet", testCronRegisterGet},
		{"CronLocking", testCronLocking},
		{"CronUpdateDelete", testCronUpdateDelete},
		{"ClusterWorkers", testClusterWorkers},
		{"ClusterReap", testClusterReap},
		{"ClusterLeadership", testClusterLeadership},
		{"Snapshots", testSnapshots},
		{"DoorState", testDoorState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// now is truncated so every backend round-trips it exactly.
func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func newRun(name string, state workflow.RunState, started time.Time) *workflow.Run {
	return &workflow.Run{
		Entity:    sps.Entity{CreatedAt: started, UpdatedAt: started},
		ID:        id.NewRunID(),
		Name:      name,
		State:     state,
		Input:     []byte(`{"scheduled_date":"2025-03-08T14:00:00Z"}`),
		StartedAt: started,
	}
}

func testPing(t *testing.T, s store.Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func testRunCreateGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newRun("event-management", workflow.RunStateRunning, now())
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Name != r.Name || got.State != r.State || string(got.Input) != string(r.Input) {
		t.Errorf("got %+v, want %+v", got, r)
	}
	if !got.StartedAt.Equal(r.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, r.StartedAt)
	}

	if err := s.CreateRun(ctx, r); !errors.Is(err, sps.ErrRunExists) {
		t.Errorf("duplicate CreateRun = %v, want ErrRunExists", err)
	}
	if _, err := s.GetRun(ctx, id.NewRunID()); !errors.Is(err, sps.ErrRunNotFound) {
		t.Errorf("GetRun missing = %v, want ErrRunNotFound", err)
	}
	if err := s.UpdateRun(ctx, newRun("x", workflow.RunStateRunning, now())); !errors.Is(err, sps.ErrRunNotFound) {
		t.Errorf("UpdateRun missing = %v, want ErrRunNotFound", err)
	}
}

func testRunUpdateKeepsCancel(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newRun("event-management", workflow.RunStateRunning, now())
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	// A cancel request lands while the runner holds its own copy.
	canceled, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	at := now()
	canceled.CanceledAt = &at
	if err := s.UpdateRun(ctx, canceled); err != nil {
		t.Fatalf("UpdateRun cancel: %v", err)
	}

	r.State = workflow.RunStateSleeping
	r.WakeAt = now().Add(time.Hour)
	if err := s.UpdateRun(ctx, r); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != workflow.RunStateSleeping {
		t.Errorf("State = %q, want sleeping", got.State)
	}
	if got.CanceledAt == nil || !got.CanceledAt.Equal(at) {
		t.Errorf("CanceledAt = %v, want %v", got.CanceledAt, at)
	}
}

func testRunList(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := now()
	r1 := newRun("event-management", workflow.RunStateSleeping, base)
	r2 := newRun("event-management", workflow.RunStateCompleted, base.Add(time.Second))
	r3 := newRun("other", workflow.RunStateSleeping, base.Add(2*time.Second))
	for _, r := range []*workflow.Run{r1, r2, r3} {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	tests := []struct {
		name string
		opts workflow.ListOpts
		want []*workflow.Run
	}{
		{"all", workflow.ListOpts{}, []*workflow.Run{r1, r2, r3}},
		{"sleeping", workflow.ListOpts{State: workflow.RunStateSleeping}, []*workflow.Run{r1, r3}},
		{"by name", workflow.ListOpts{Name: "event-management"}, []*workflow.Run{r1, r2}},
		{"limit", workflow.ListOpts{Limit: 1}, []*workflow.Run{r1}},
		{"offset", workflow.ListOpts{Offset: 1, Limit: 1}, []*workflow.Run{r2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListRuns(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d runs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID.String() != tt.want[i].ID.String() {
					t.Errorf("run[%d] = %s, want %s", i, got[i].ID, tt.want[i].ID)
				}
			}
		})
	}
}

func testClaimDueRuns(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := now()

	due := newRun("wf", workflow.RunStateSleeping, at)
	due.WakeAt = at.Add(-time.Minute)
	future := newRun("wf", workflow.RunStateSleeping, at)
	future.WakeAt = at.Add(time.Hour)
	expired := newRun("wf", workflow.RunStateRunning, at)
	expired.LockedBy = "crashed"
	expired.LockedUntil = at.Add(-time.Second)
	leased := newRun("wf", workflow.RunStateRunning, at)
	leased.LockedBy = "alive"
	leased.LockedUntil = at.Add(time.Minute)
	done := newRun("wf", workflow.RunStateCompleted, at)

	for _, r := range []*workflow.Run{due, future, expired, leased, done} {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	claimed, err := s.ClaimDueRuns(ctx, at, "worker-a", 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("ClaimDueRuns: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d runs, want 2", len(claimed))
	}
	ids := map[string]bool{}
	for _, r := range claimed {
		ids[r.ID.String()] = true
		if r.State != workflow.RunStateRunning || r.LockedBy != "worker-a" {
			t.Errorf("claimed run %s: state=%q locked_by=%q", r.ID, r.State, r.LockedBy)
		}
		if !r.LockedUntil.Equal(at.Add(5 * time.Minute)) {
			t.Errorf("LockedUntil = %v, want %v", r.LockedUntil, at.Add(5*time.Minute))
		}
	}
	if !ids[due.ID.String()] || !ids[expired.ID.String()] {
		t.Errorf("claimed %v, want %s and %s", ids, due.ID, expired.ID)
	}

	again, err := s.ClaimDueRuns(ctx, at, "worker-b", 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("ClaimDueRuns again: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second claim got %d runs, want 0", len(again))
	}

	limited, err := s.ClaimDueRuns(ctx, at.Add(2*time.Hour), "worker-c", time.Minute, 1)
	if err != nil {
		t.Fatalf("ClaimDueRuns limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 claimed %d runs", len(limited))
	}
}

func testCheckpoints(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newRun("wf", workflow.RunStateRunning, now())
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	if err := s.SaveCheckpoint(ctx, r.ID, "create-event", []byte("evt")); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if err := s.SaveCheckpoint(ctx, r.ID, "send-event-invite", []byte{}); err != nil {
		t.Fatalf("SaveCheckpoint empty: %v", err)
	}

	data, ok, err := s.GetCheckpoint(ctx, r.ID, "create-event")
	if err != nil || !ok || string(data) != "evt" {
		t.Errorf("GetCheckpoint = %q, %v, %v", data, ok, err)
	}
	data, ok, err = s.GetCheckpoint(ctx, r.ID, "send-event-invite")
	if err != nil || !ok || len(data) != 0 {
		t.Errorf("GetCheckpoint empty = %q, %v, %v", data, ok, err)
	}
	if _, ok, err := s.GetCheckpoint(ctx, r.ID, "end-event"); err != nil || ok {
		t.Errorf("GetCheckpoint missing = %v, %v", ok, err)
	}

	if err := s.SaveCheckpoint(ctx, r.ID, "create-event", []byte("evt2")); err != nil {
		t.Fatalf("SaveCheckpoint overwrite: %v", err)
	}
	data, _, _ = s.GetCheckpoint(ctx, r.ID, "create-event") //nolint:errcheck // checked above
	if string(data) != "evt2" {
		t.Errorf("overwritten data = %q", data)
	}

	cps, err := s.ListCheckpoints(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(cps) != 2 || cps[0].StepName != "create-event" || cps[1].StepName != "send-event-invite" {
		t.Fatalf("checkpoints = %+v", cps)
	}
	if cps[0].RunID.String() != r.ID.String() || cps[0].ID.IsNil() {
		t.Errorf("checkpoint identity = %+v", cps[0])
	}
}

func testDeleteCheckpointsAfter(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newRun("wf", workflow.RunStateRunning, now())
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	for _, step := range []string{"a", "b", "c"} {
		if err := s.SaveCheckpoint(ctx, r.ID, step, []byte(step)); err != nil {
			t.Fatalf("SaveCheckpoint %s: %v", step, err)
		}
	}

	if err := s.DeleteCheckpointsAfter(ctx, r.ID, "a"); err != nil {
		t.Fatalf("DeleteCheckpointsAfter: %v", err)
	}
	cps, err := s.ListCheckpoints(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListCheckpoints: %v", err)
	}
	if len(cps) != 1 || cps[0].StepName != "a" {
		t.Errorf("remaining = %+v, want only a", cps)
	}
}

func newCronEntry(name string) *cron.Entry {
	next := now().Add(time.Hour)
	return &cron.Entry{
		Entity:    sps.Entity{CreatedAt: now(), UpdatedAt: now()},
		ID:        id.NewCronID(),
		Name:      name,
		Schedule:  "0 14 * * 1",
		Workflow:  "event-management",
		NextRunAt: &next,
		Enabled:   true,
	}
}

func testCronRegisterGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := newCronEntry("weekly-event")
	if err := s.RegisterCron(ctx, e); err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}
	if err := s.RegisterCron(ctx, newCronEntry("weekly-event")); !errors.Is(err, sps.ErrDuplicateCron) {
		t.Errorf("duplicate RegisterCron = %v, want ErrDuplicateCron", err)
	}

	got, err := s.GetCron(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetCron: %v", err)
	}
	if got.Name != e.Name || got.Workflow != e.Workflow || !got.Enabled {
		t.Errorf("got %+v", got)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(*e.NextRunAt) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, e.NextRunAt)
	}

	byName, err := s.GetCronByName(ctx, "weekly-event")
	if err != nil || byName.ID.String() != e.ID.String() {
		t.Errorf("GetCronByName = %v, %v", byName, err)
	}
	if _, err := s.GetCronByName(ctx, "ghost"); !errors.Is(err, sps.ErrCronNotFound) {
		t.Errorf("GetCronByName missing = %v", err)
	}
	if _, err := s.GetCron(ctx, id.NewCronID()); !errors.Is(err, sps.ErrCronNotFound) {
		t.Errorf("GetCron missing = %v", err)
	}

	list, err := s.ListCrons(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("ListCrons = %d, %v", len(list), err)
	}
}

func testCronLocking(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := newCronEntry("locked")
	if err := s.RegisterCron(ctx, e); err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}
	w1, w2 := id.NewWorkerID(), id.NewWorkerID()

	ok, err := s.AcquireCronLock(ctx, e.ID, w1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("w1 acquire = %v, %v", ok, err)
	}
	ok, err = s.AcquireCronLock(ctx, e.ID, w2, time.Minute)
	if err != nil || ok {
		t.Fatalf("w2 acquire while held = %v, %v", ok, err)
	}

	if err := s.ReleaseCronLock(ctx, e.ID, w2); err != nil {
		t.Fatalf("release by non-holder: %v", err)
	}
	ok, _ = s.AcquireCronLock(ctx, e.ID, w2, time.Minute) //nolint:errcheck // checked below
	if ok {
		t.Fatal("non-holder release freed the lock")
	}

	if err := s.ReleaseCronLock(ctx, e.ID, w1); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = s.AcquireCronLock(ctx, e.ID, w2, time.Minute)
	if err != nil || !ok {
		t.Fatalf("w2 acquire after release = %v, %v", ok, err)
	}
}

func testCronUpdateDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := newCronEntry("updatable")
	if err := s.RegisterCron(ctx, e); err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}

	fired := now()
	if err := s.UpdateCronLastRun(ctx, e.ID, fired); err != nil {
		t.Fatalf("UpdateCronLastRun: %v", err)
	}
	next := fired.Add(7 * 24 * time.Hour)
	e.NextRunAt = &next
	e.Enabled = false
	if err := s.UpdateCronEntry(ctx, e); err != nil {
		t.Fatalf("UpdateCronEntry: %v", err)
	}

	got, err := s.GetCron(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetCron: %v", err)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(fired) {
		t.Errorf("LastRunAt = %v, want %v", got.LastRunAt, fired)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(next) || got.Enabled {
		t.Errorf("after update: next=%v enabled=%v", got.NextRunAt, got.Enabled)
	}

	if err := s.DeleteCron(ctx, e.ID); err != nil {
		t.Fatalf("DeleteCron: %v", err)
	}
	if _, err := s.GetCron(ctx, e.ID); !errors.Is(err, sps.ErrCronNotFound) {
		t.Errorf("GetCron after delete = %v", err)
	}
	if err := s.DeleteCron(ctx, e.ID); !errors.Is(err, sps.ErrCronNotFound) {
		t.Errorf("DeleteCron twice = %v", err)
	}
}

func newWorker(lastSeen time.Time) *cluster.Worker {
	return &cluster.Worker{
		ID:          id.NewWorkerID(),
		Hostname:    "host",
		LocationTag: "sps:nyc",
		Concurrency: 2,
		State:       cluster.WorkerActive,
		LastSeen:    lastSeen,
		CreatedAt:   lastSeen,
	}
}

func testClusterWorkers(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := newWorker(now().Add(-time.Minute))
	if err := s.RegisterWorker(ctx, w); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}

	list, err := s.ListWorkers(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListWorkers = %d, %v", len(list), err)
	}
	if list[0].LocationTag != "sps:nyc" || list[0].Concurrency != 2 {
		t.Errorf("worker = %+v", list[0])
	}

	if err := s.HeartbeatWorker(ctx, w.ID); err != nil {
		t.Fatalf("HeartbeatWorker: %v", err)
	}
	list, _ = s.ListWorkers(ctx) //nolint:errcheck // checked above
	if !list[0].LastSeen.After(w.LastSeen) {
		t.Errorf("LastSeen not advanced: %v", list[0].LastSeen)
	}

	if err := s.DeregisterWorker(ctx, w.ID); err != nil {
		t.Fatalf("DeregisterWorker: %v", err)
	}
	if err := s.HeartbeatWorker(ctx, w.ID); !errors.Is(err, sps.ErrWorkerNotFound) {
		t.Errorf("HeartbeatWorker after deregister = %v", err)
	}
}

func testClusterReap(t *testing.T, s store.Store) {
	ctx := context.Background()
	stale := newWorker(now().Add(-time.Hour))
	fresh := newWorker(now())
	for _, w := range []*cluster.Worker{stale, fresh} {
		if err := s.RegisterWorker(ctx, w); err != nil {
			t.Fatalf("RegisterWorker: %v", err)
		}
	}

	dead, err := s.ReapDeadWorkers(ctx, time.Minute)
	if err != nil {
		t.Fatalf("ReapDeadWorkers: %v", err)
	}
	if len(dead) != 1 || dead[0].ID.String() != stale.ID.String() {
		t.Fatalf("dead = %+v, want only the stale worker", dead)
	}
	if dead[0].State != cluster.WorkerDead {
		t.Errorf("reaped state = %q", dead[0].State)
	}

	again, err := s.ReapDeadWorkers(ctx, time.Minute)
	if err != nil || len(again) != 0 {
		t.Errorf("second reap = %d, %v", len(again), err)
	}
}

func testClusterLeadership(t *testing.T, s store.Store) {
	ctx := context.Background()
	w1, w2 := newWorker(now()), newWorker(now())
	for _, w := range []*cluster.Worker{w1, w2} {
		if err := s.RegisterWorker(ctx, w); err != nil {
			t.Fatalf("RegisterWorker: %v", err)
		}
	}

	if leader, err := s.GetLeader(ctx); err != nil || leader != nil {
		t.Fatalf("initial leader = %v, %v", leader, err)
	}

	ok, err := s.AcquireLeadership(ctx, w1.ID, time.Minute)
	if err != nil || !ok {
		t.Fatalf("w1 acquire = %v, %v", ok, err)
	}
	leader, err := s.GetLeader(ctx)
	if err != nil || leader == nil || leader.ID.String() != w1.ID.String() {
		t.Fatalf("leader = %v, %v", leader, err)
	}
	if isLeader, _ := cluster.IsLeader(ctx, s, w1.ID); !isLeader { //nolint:errcheck // GetLeader checked above
		t.Error("IsLeader(w1) = false")
	}

	if ok, err := s.AcquireLeadership(ctx, w2.ID, time.Minute); err != nil || ok {
		t.Fatalf("w2 acquire while held = %v, %v", ok, err)
	}
	if ok, err := s.RenewLeadership(ctx, w1.ID, time.Minute); err != nil || !ok {
		t.Fatalf("w1 renew = %v, %v", ok, err)
	}
	if ok, err := s.RenewLeadership(ctx, w2.ID, time.Minute); err != nil || ok {
		t.Fatalf("w2 renew = %v, %v", ok, err)
	}
}

func testSnapshots(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, ok, err := s.LoadSnapshot(ctx, "rsvp:sps:nyc"); err != nil || ok {
		t.Fatalf("LoadSnapshot empty = %v, %v", ok, err)
	}
	if err := s.SaveSnapshot(ctx, "rsvp:sps:nyc", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.SaveSnapshot(ctx, "rsvp:sps:nyc", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("SaveSnapshot replace: %v", err)
	}
	data, ok, err := s.LoadSnapshot(ctx, "rsvp:sps:nyc")
	if err != nil || !ok || string(data) != `{"v":2}` {
		t.Errorf("LoadSnapshot = %s, %v, %v", data, ok, err)
	}
	if _, ok, _ := s.LoadSnapshot(ctx, "mailinglist:sps:nyc"); ok { //nolint:errcheck // presence only
		t.Error("snapshot keys are not independent")
	}
}

func testDoorState(t *testing.T, s store.Store) {
	ctx := context.Background()
	locked, err := s.DoorLocked(ctx)
	if err != nil || !locked {
		t.Fatalf("initial DoorLocked = %v, %v", locked, err)
	}
	if err := s.SetDoorLocked(ctx, false); err != nil {
		t.Fatalf("SetDoorLocked: %v", err)
	}
	if locked, err := s.DoorLocked(ctx); err != nil || locked {
		t.Errorf("DoorLocked after unlock = %v, %v", locked, err)
	}
	if err := s.SetDoorLocked(ctx, true); err != nil {
		t.Fatalf("SetDoorLocked: %v", err)
	}
	if locked, err := s.DoorLocked(ctx); err != nil || !locked {
		t.Errorf("DoorLocked after lock = %v, %v", locked, err)
	}
}
