package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/store"
	"github.com/zephraph/sps/store/memory"
	"github.com/zephraph/sps/store/storetest"
	"github.com/zephraph/sps/workflow"
)

var _ store.Store = (*memory.Store)(nil)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestGetRunReturnsCopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	r := &workflow.Run{ID: id.NewRunID(), Name: "wf", State: workflow.RunStateRunning, Input: []byte("in")}
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.State = workflow.RunStateFailed
	r.Input[0] = 'X'

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != workflow.RunStateRunning || string(got.Input) != "in" {
		t.Errorf("stored run aliased caller memory: %+v", got)
	}
}

func TestCheckpointTimesStrictlyIncrease(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	runID := id.NewRunID()

	for _, step := range []string{"a", "b", "c", "d"} {
		if err := s.SaveCheckpoint(ctx, runID, step, nil); err != nil {
			t.Fatal(err)
		}
	}
	cps, err := s.ListCheckpoints(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	var prev time.Time
	for _, cp := range cps {
		if !cp.CreatedAt.After(prev) {
			t.Fatalf("checkpoint %s at %v not after %v", cp.StepName, cp.CreatedAt, prev)
		}
		prev = cp.CreatedAt
	}
}
