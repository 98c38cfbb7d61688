// Package memory is an in-process store for tests and single-host
// development. Every value is copied on the way in and out, so callers
// never share memory with the store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zephraph/sps/actor"
	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/door"
	"github.com/zephraph/sps/workflow"
)

// Compile-time checks; store.Store cannot be named here without a cycle.
var (
	_ workflow.Store      = (*Store)(nil)
	_ cron.Store          = (*Store)(nil)
	_ cluster.Store       = (*Store)(nil)
	_ actor.SnapshotStore = (*Store)(nil)
	_ door.StateStore     = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access.
type Store struct {
	mu sync.RWMutex

	runs        map[string]*workflow.Run
	checkpoints map[string][]*workflow.Checkpoint // key: run ID, creation order
	lastCkptAt  time.Time
	crons       map[string]*cron.Entry
	workers     map[string]*cluster.Worker
	snapshots   map[string][]byte
	door        *bool

	leader      string
	leaderUntil time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:        make(map[string]*workflow.Run),
		checkpoints: make(map[string][]*workflow.Checkpoint),
		crons:       make(map[string]*cron.Entry),
		workers:     make(map[string]*cluster.Worker),
		snapshots:   make(map[string][]byte),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
