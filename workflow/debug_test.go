package workflow_test

import (
	"bytes"
	"context"
	"encoding/gob"
	"strings"
	"testing"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/workflow"
)

func TestGetTimeline_OrderedSteps(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	workflow.RegisterDefinition(h.reg, workflow.NewWorkflow("steps", func(wf *workflow.Workflow, _ struct{}) error {
		for _, name := range []string{"step-a", "step-b"} {
			if err := wf.Do(name, func(context.Context) error { return nil }); err != nil {
				return err
			}
		}
		if err := wf.SleepUntil("noon", epoch); err != nil {
			return err
		}
		return wf.Do("step-c", func(context.Context) error { return nil })
	}))

	run, err := workflow.Start(ctx, h.runner, "steps", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	timeline, err := h.runner.GetTimeline(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	names := make([]string, len(timeline))
	for i, e := range timeline {
		names[i] = e.StepName
		if e.CreatedAt.IsZero() {
			t.Errorf("timeline[%d].CreatedAt is zero", i)
		}
	}
	if got := strings.Join(names, ","); got != "step-a,step-b,sleep:noon,step-c" {
		t.Errorf("timeline = %s", got)
	}
}

func TestInspectStep_ReturnsCheckpointData(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	type headcount struct {
		Going      int
		Waitlisted int
	}
	workflow.RegisterDefinition(h.reg, workflow.NewWorkflow("count", func(wf *workflow.Workflow, _ struct{}) error {
		_, err := workflow.DoWithResult(wf, "count", func(context.Context) (headcount, error) {
			return headcount{Going: 2, Waitlisted: 1}, nil
		})
		return err
	}))

	run, err := workflow.Start(ctx, h.runner, "count", struct{}{})
	if err != nil {
		t.Fatal(err)
	}

	data, err := h.runner.InspectStep(ctx, run.ID, "count")
	if err != nil {
		t.Fatalf("InspectStep: %v", err)
	}
	var got headcount
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Going != 2 || got.Waitlisted != 1 {
		t.Errorf("checkpoint = %+v", got)
	}

	if _, err := h.runner.InspectStep(ctx, run.ID, "missing"); !sps.IsNotFound(err) {
		t.Errorf("missing step err = %v, want not found", err)
	}
}

func TestReplayFrom_RerunsLaterSteps(t *testing.T) {
	h := newHarness(nil)
	ctx := context.Background()

	calls := map[string]int{}
	workflow.RegisterDefinition(h.reg, workflow.NewWorkflow("replay", func(wf *workflow.Workflow, _ struct{}) error {
		for _, name := range []string{"a", "b", "c"} {
			n := name
			if err := wf.Do(n, func(context.Context) error { calls[n]++; return nil }); err != nil {
				return err
			}
		}
		return nil
	}))

	run, err := workflow.Start(ctx, h.runner, "replay", struct{}{})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.runner.ReplayFrom(ctx, run.ID, "a"); err != nil {
		t.Fatalf("ReplayFrom: %v", err)
	}
	stored, _ := h.store.GetRun(ctx, run.ID)
	if stored.State != workflow.RunStateSleeping || stored.CompletedAt != nil {
		t.Fatalf("after replay: %s completed_at=%v", stored.State, stored.CompletedAt)
	}

	if n, err := h.runner.ResumeDue(ctx, 10); err != nil || n != 1 {
		t.Fatalf("ResumeDue = %d, %v", n, err)
	}
	if calls["a"] != 1 || calls["b"] != 2 || calls["c"] != 2 {
		t.Errorf("calls = %v, want a=1 b=2 c=2", calls)
	}
}

func TestReplayFrom_UnknownStep(t *testing.T) {
	h := newHarness(nil)
	workflow.RegisterDefinition(h.reg, workflow.NewWorkflow("noop", func(*workflow.Workflow, struct{}) error { return nil }))

	run, err := workflow.Start(context.Background(), h.runner, "noop", struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.runner.ReplayFrom(context.Background(), run.ID, "ghost"); !sps.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}
