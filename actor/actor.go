// Package actor provides a single-goroutine mailbox. Every closure sent to
// a Mailbox runs on the mailbox goroutine, one at a time, in arrival
// order, so state owned by the closures needs no locks.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned for work sent after Close.
var ErrClosed = errors.New("actor: mailbox closed")

// Mailbox serializes closures on one goroutine.
type Mailbox struct {
	ops     chan func()
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New starts a mailbox whose queue holds up to buffer pending closures.
func New(buffer int) *Mailbox {
	m := &Mailbox{
		ops:     make(chan func(), buffer),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Mailbox) loop() {
	defer close(m.stopped)
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.quit:
			return
		}
	}
}

// Close stops the mailbox after the closure currently running, if any.
// Queued closures that have not started fail with ErrClosed.
func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.quit) })
	<-m.stopped
}

type result[T any] struct {
	val T
	err error
}

const (
	opQueued int32 = iota
	opStarted
	opAbandoned
)

// Do runs fn on the mailbox and returns its result. If ctx ends before fn
// starts, fn never runs and Do returns ctx.Err(). Once fn has started, Do
// waits for it and returns its result. A panic in fn is returned as an
// error and the mailbox keeps serving.
func Do[T any](ctx context.Context, m *Mailbox, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	var status atomic.Int32
	done := make(chan result[T], 1)
	op := func() {
		if !status.CompareAndSwap(opQueued, opStarted) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("actor: panic: %v", r)}
			}
		}()
		v, err := fn()
		done <- result[T]{val: v, err: err}
	}

	select {
	case m.ops <- op:
	case <-m.quit:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-m.stopped:
		if status.CompareAndSwap(opQueued, opAbandoned) {
			return zero, ErrClosed
		}
		// The loop ran op just before stopping.
		r := <-done
		return r.val, r.err
	case <-ctx.Done():
		if status.CompareAndSwap(opQueued, opAbandoned) {
			return zero, ctx.Err()
		}
		r := <-done
		return r.val, r.err
	}
}

// Exec is Do for closures that only return an error.
func (m *Mailbox) Exec(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, m, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}
