package workflow

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"time"

	"github.com/zephraph/sps/middleware"
)

// sleepPrefix namespaces sleep checkpoints so a sleep and a Do step may
// share a name.
const sleepPrefix = "sleep:"

// Do runs fn once. If the step already has a checkpoint the call returns
// nil without running fn. If fn fails, the error is returned as a
// *StepError and nothing is recorded, so fn runs again on the next
// attempt; fn must be safe to repeat.
func (w *Workflow) Do(name string, fn func(ctx context.Context) error) error {
	_, err := w.step(name, func(ctx context.Context) ([]byte, error) {
		return nil, fn(ctx)
	})
	return err
}

// DoWithResult is Do for steps that produce a value. The value is
// gob-encoded into the checkpoint and decoded on replay.
func DoWithResult[T any](w *Workflow, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	data, err := w.step(name, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(v); err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&out); err != nil {
		return zero, &StepError{Step: name, Err: fmt.Errorf("decode checkpoint: %w", err)}
	}
	return out, nil
}

func (w *Workflow) step(name string, body func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	data, ok, err := w.runner.store.GetCheckpoint(w.ctx, w.run.ID, name)
	if err != nil {
		return nil, &StepError{Step: name, Err: fmt.Errorf("get checkpoint: %w", err)}
	}
	if ok {
		w.runner.logger.Debug("skipping checkpointed step",
			slog.String("run_id", w.run.ID.String()),
			slog.String("step", name),
		)
		return data, nil
	}

	if err := w.boundary(name); err != nil {
		return nil, err
	}

	s := &middleware.Step{
		RunID:    w.run.ID,
		Workflow: w.run.Name,
		Name:     name,
		Attempt:  w.run.Attempt + 1,
	}
	var out []byte
	start := time.Now()
	err = w.runner.chain(w.ctx, s, func(ctx context.Context) error {
		var bodyErr error
		out, bodyErr = body(ctx)
		return bodyErr
	})
	elapsed := time.Since(start)
	if err != nil {
		w.runner.emitter.EmitStepFailed(w.ctx, w.run, name, err)
		return nil, &StepError{Step: name, Err: err}
	}

	if out == nil {
		out = []byte{}
	}
	if err := w.runner.store.SaveCheckpoint(w.ctx, w.run.ID, name, out); err != nil {
		return nil, &StepError{Step: name, Err: fmt.Errorf("save checkpoint: %w", err)}
	}
	w.run.Attempt = 0
	w.runner.emitter.EmitStepCompleted(w.ctx, w.run, name, elapsed)
	return out, nil
}

// Sleep suspends the run for d measured from the first time this sleep
// is reached. Replays reuse that original target.
func (w *Workflow) Sleep(name string, d time.Duration) error {
	return w.SleepUntil(name, w.runner.clock.Now().Add(d))
}

// SleepUntil suspends the run until the absolute instant until. The
// instant is checkpointed the first time the sleep is reached; later
// replays ignore the argument and wait for the saved instant. A target
// that is not in the future passes straight through.
func (w *Workflow) SleepUntil(name string, until time.Time) error {
	key := sleepPrefix + name

	data, ok, err := w.runner.store.GetCheckpoint(w.ctx, w.run.ID, key)
	if err != nil {
		return &StepError{Step: key, Err: fmt.Errorf("get checkpoint: %w", err)}
	}

	target := until.UTC()
	if ok {
		saved, perr := time.Parse(time.RFC3339Nano, string(data))
		if perr != nil {
			return &StepError{Step: key, Err: fmt.Errorf("decode sleep target: %w", perr)}
		}
		target = saved
	} else {
		if err := w.boundary(key); err != nil {
			return err
		}
		if err := w.runner.store.SaveCheckpoint(w.ctx, w.run.ID, key, []byte(target.Format(time.RFC3339Nano))); err != nil {
			return &StepError{Step: key, Err: fmt.Errorf("save checkpoint: %w", err)}
		}
	}

	if w.runner.clock.Now().Before(target) {
		return &SuspendError{Step: name, WakeAt: target}
	}
	return nil
}
