package workflow_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/zephraph/sps/backoff"
	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/store/memory"
	"github.com/zephraph/sps/workflow"
)

var epoch = time.Date(2025, time.March, 3, 14, 0, 0, 0, time.UTC)

// noopEmitter implements workflow.RunEmitter with no-ops.
type noopEmitter struct{}

func (noopEmitter) EmitStepCompleted(context.Context, *workflow.Run, string, time.Duration) {}
func (noopEmitter) EmitStepFailed(context.Context, *workflow.Run, string, error)           {}
func (noopEmitter) EmitWorkflowStarted(context.Context, *workflow.Run)                     {}
func (noopEmitter) EmitWorkflowSuspended(context.Context, *workflow.Run, time.Time)        {}
func (noopEmitter) EmitWorkflowCompleted(context.Context, *workflow.Run, time.Duration)    {}
func (noopEmitter) EmitWorkflowFailed(context.Context, *workflow.Run, error)               {}
func (noopEmitter) EmitWorkflowCanceled(context.Context, *workflow.Run)                    {}

// recordingEmitter keeps the names of emitted events in order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) add(s string) {
	e.mu.Lock()
	e.events = append(e.events, s)
	e.mu.Unlock()
}

func (e *recordingEmitter) EmitStepCompleted(_ context.Context, _ *workflow.Run, step string, _ time.Duration) {
	e.add("step.completed:" + step)
}

func (e *recordingEmitter) EmitStepFailed(_ context.Context, _ *workflow.Run, step string, _ error) {
	e.add("step.failed:" + step)
}

func (e *recordingEmitter) EmitWorkflowStarted(context.Context, *workflow.Run) { e.add("started") }

func (e *recordingEmitter) EmitWorkflowSuspended(context.Context, *workflow.Run, time.Time) {
	e.add("suspended")
}

func (e *recordingEmitter) EmitWorkflowCompleted(context.Context, *workflow.Run, time.Duration) {
	e.add("completed")
}

func (e *recordingEmitter) EmitWorkflowFailed(context.Context, *workflow.Run, error) { e.add("failed") }

func (e *recordingEmitter) EmitWorkflowCanceled(context.Context, *workflow.Run) { e.add("canceled") }

func (e *recordingEmitter) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	runner *workflow.Runner
	reg    *workflow.Registry
	store  *memory.Store
	clock  *clock.Fake
}

// newHarness builds a runner over a memory store with a fake clock and a
// constant one-minute retry delay.
func newHarness(emitter workflow.RunEmitter, opts ...workflow.RunnerOption) *harness {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	h := &harness{
		reg:   workflow.NewRegistry(),
		store: memory.New(),
		clock: clock.NewFake(epoch),
	}
	base := []workflow.RunnerOption{
		workflow.WithClock(h.clock),
		workflow.WithBackoff(backoff.Constant(time.Minute)),
	}
	h.runner = workflow.NewRunner(h.reg, h.store, emitter, testLogger(), append(base, opts...)...)
	return h
}
