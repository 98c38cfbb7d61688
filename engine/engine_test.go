package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/backoff"
	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/engine"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/store/memory"
	"github.com/zephraph/sps/workflow"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

var monday = time.Date(2025, time.March, 3, 14, 0, 0, 0, time.UTC)

type greeting struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHost(t *testing.T, s *memory.Store) *sps.Host {
	t.Helper()
	h, err := sps.New(
		sps.WithStore(s),
		sps.WithLogger(quietLogger()),
		sps.WithConcurrency(2),
		sps.WithPollInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("sps.New: %v", err)
	}
	return h
}

// recorder is an extension that records lifecycle hooks.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) has(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == s {
			return true
		}
	}
	return false
}

func (r *recorder) OnWorkflowStarted(context.Context, *workflow.Run) error {
	r.add("started")
	return nil
}

func (r *recorder) OnWorkflowStepCompleted(_ context.Context, _ *workflow.Run, step string, _ time.Duration) error {
	r.add("step:" + step)
	return nil
}

func (r *recorder) OnWorkflowSuspended(context.Context, *workflow.Run, time.Time) error {
	r.add("suspended")
	return nil
}

func (r *recorder) OnWorkflowCompleted(context.Context, *workflow.Run, time.Duration) error {
	r.add("completed")
	return nil
}

func (r *recorder) OnCronFired(_ context.Context, name string, _ id.RunID) error {
	r.add("cron:" + name)
	return nil
}

func (r *recorder) OnShutdown(context.Context) error {
	r.add("shutdown")
	return nil
}

func waitForState(t *testing.T, s *memory.Store, run *workflow.Run, want workflow.RunState) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		got, err := s.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.State == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("run state = %q, want %q", got.State, want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// ──────────────────────────────────────────────────
// Build
// ──────────────────────────────────────────────────

func TestBuild_RequiresStore(t *testing.T) {
	h, err := sps.New()
	if err != nil {
		t.Fatalf("sps.New: %v", err)
	}
	if _, err := engine.Build(h); !errors.Is(err, sps.ErrNoStore) {
		t.Errorf("Build error = %v, want ErrNoStore", err)
	}
}

type lifecycleOnly struct{}

func (lifecycleOnly) Migrate(context.Context) error { return nil }
func (lifecycleOnly) Ping(context.Context) error    { return nil }
func (lifecycleOnly) Close() error                  { return nil }

func TestBuild_RejectsPartialStore(t *testing.T) {
	h, err := sps.New(sps.WithStore(lifecycleOnly{}))
	if err != nil {
		t.Fatalf("sps.New: %v", err)
	}
	if _, err := engine.Build(h); err == nil {
		t.Error("Build accepted a store without the subsystem contracts")
	}
}

// ──────────────────────────────────────────────────
// End-to-end: Register → Start → pool resumes → complete
// ──────────────────────────────────────────────────

func TestEngine_PoolResumesSleepingRun(t *testing.T) {
	s := memory.New()
	h := newHost(t, s)
	rec := &recorder{}
	eng, err := engine.Build(h, engine.WithExtension(rec), engine.WithBackoff(backoff.Constant(10*time.Millisecond)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var mu sync.Mutex
	var greeted []string
	engine.Register(eng, workflow.NewWorkflow("greet", func(wf *workflow.Workflow, in greeting) error {
		if err := wf.Sleep("nap", 30*time.Millisecond); err != nil {
			return err
		}
		return wf.Do("say-hello", func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			greeted = append(greeted, in.Name)
			return nil
		})
	}))

	ctx := context.Background()
	run, err := engine.Start(ctx, eng, "greet", greeting{Name: "ada"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != workflow.RunStateSleeping {
		t.Fatalf("run.State = %q, want sleeping", run.State)
	}

	if err := h.Start(ctx); err != nil {
		t.Fatalf("host Start: %v", err)
	}
	waitForState(t, s, run, workflow.RunStateCompleted)

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.Stop(stopCtx); err != nil {
		t.Fatalf("host Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(greeted) != 1 || greeted[0] != "ada" {
		t.Errorf("greeted = %v, want [ada]", greeted)
	}
	for _, want := range []string{"started", "suspended", "step:say-hello", "completed", "shutdown"} {
		if !rec.has(want) {
			t.Errorf("extension did not see %q", want)
		}
	}
}

func TestEngine_StartUnknownWorkflow(t *testing.T) {
	eng, err := engine.Build(newHost(t, memory.New()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, err = engine.Start(context.Background(), eng, "missing", greeting{})
	if !errors.Is(err, sps.ErrWorkflowNotFound) {
		t.Errorf("Start error = %v, want ErrWorkflowNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Cron
// ──────────────────────────────────────────────────

func TestEngine_CronStartsRunWithComputedInput(t *testing.T) {
	s := memory.New()
	fake := clock.NewFake(monday.Add(-time.Hour))
	eng, err := engine.Build(newHost(t, s), engine.WithClock(fake))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	engine.Register(eng, workflow.NewWorkflow("greet", func(wf *workflow.Workflow, in greeting) error {
		return wf.SleepUntil("wait", in.At)
	}))

	ctx := context.Background()
	entry, err := eng.RegisterCron(ctx, cron.Definition{
		Name:     "weekly-greeting",
		Schedule: "0 14 * * 1",
		Workflow: "greet",
		Input: func(firedAt time.Time) (any, error) {
			return greeting{Name: "weekly", At: firedAt.Add(24 * time.Hour)}, nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterCron: %v", err)
	}
	if entry.NextRunAt == nil || !entry.NextRunAt.Equal(monday) {
		t.Fatalf("NextRunAt = %v, want %v", entry.NextRunAt, monday)
	}

	workerID := eng.Pool().WorkerID()
	now := time.Now().UTC()
	if err := s.RegisterWorker(ctx, &cluster.Worker{
		ID: workerID, State: cluster.WorkerActive, LastSeen: now, CreatedAt: now,
	}); err != nil {
		t.Fatalf("RegisterWorker: %v", err)
	}
	if !eng.Scheduler().TryLeadership(ctx) {
		t.Fatal("scheduler did not acquire leadership")
	}

	fake.Set(monday)
	if n := eng.Scheduler().Tick(ctx); n != 1 {
		t.Fatalf("fired = %d, want 1", n)
	}

	runs, err := s.ListRuns(ctx, workflow.ListOpts{Name: "greet"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	var in greeting
	if err := json.Unmarshal(runs[0].Input, &in); err != nil {
		t.Fatalf("decode input: %v", err)
	}
	if in.Name != "weekly" || !in.At.Equal(monday.Add(24*time.Hour)) {
		t.Errorf("input = %+v", in)
	}
	if runs[0].State != workflow.RunStateSleeping || !runs[0].WakeAt.Equal(monday.Add(24*time.Hour)) {
		t.Errorf("run state = %q wake = %v", runs[0].State, runs[0].WakeAt)
	}
}

func TestEngine_RegisterCronUnknownWorkflow(t *testing.T) {
	eng, err := engine.Build(newHost(t, memory.New()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, err = eng.RegisterCron(context.Background(), cron.Definition{
		Name: "orphan", Schedule: "@every 1h", Workflow: "missing",
	})
	if !errors.Is(err, sps.ErrWorkflowNotFound) {
		t.Errorf("RegisterCron error = %v, want ErrWorkflowNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Recover
// ──────────────────────────────────────────────────

func TestEngine_RecoverRunsDueSleeps(t *testing.T) {
	s := memory.New()
	fake := clock.NewFake(monday)
	eng, err := engine.Build(newHost(t, s), engine.WithClock(fake))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	engine.Register(eng, workflow.NewWorkflow("greet", func(wf *workflow.Workflow, _ greeting) error {
		return wf.Sleep("nap", time.Hour)
	}))

	ctx := context.Background()
	for range 3 {
		if _, err := engine.Start(ctx, eng, "greet", greeting{}); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	n, err := eng.Recover(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Recover before wake = %d, %v; want 0, nil", n, err)
	}

	fake.Advance(time.Hour)
	n, err = eng.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if n != 3 {
		t.Errorf("recovered = %d, want 3", n)
	}
	done, err := s.ListRuns(ctx, workflow.ListOpts{State: workflow.RunStateCompleted})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(done) != 3 {
		t.Errorf("completed runs = %d, want 3", len(done))
	}
}

func TestEngine_StepTimeoutStaysInsideLease(t *testing.T) {
	s := memory.New()
	cfg := sps.DefaultConfig()
	cfg.LeaseDuration = 100 * time.Millisecond
	cfg.StepTimeout = time.Hour
	h, err := sps.New(
		sps.WithConfig(cfg),
		sps.WithStore(s),
		sps.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("sps.New: %v", err)
	}
	eng, err := engine.Build(h)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	engine.Register(eng, workflow.NewWorkflow("hangs", func(wf *workflow.Workflow, _ struct{}) error {
		return wf.Do("send", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}))

	done := make(chan *workflow.Run, 1)
	go func() {
		run, err := engine.Start(context.Background(), eng, "hangs", struct{}{})
		if err != nil {
			t.Errorf("Start: %v", err)
		}
		done <- run
	}()

	select {
	case run := <-done:
		if run == nil {
			return
		}
		if run.State != workflow.RunStateSleeping || run.Attempt != 1 {
			t.Errorf("run = %s attempt=%d, want sleeping retry", run.State, run.Attempt)
		}
		if !strings.Contains(run.Error, context.DeadlineExceeded.Error()) {
			t.Errorf("error = %q, want deadline exceeded", run.Error)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("step was not bounded by the lease")
	}
}
