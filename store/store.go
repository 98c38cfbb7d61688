package store

import (
	"context"

	"github.com/zephraph/sps/actor"
	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/door"
	"github.com/zephraph/sps/workflow"
)

// Store is the aggregate persistence interface.
type Store interface {
	workflow.Store
	cron.Store
	cluster.Store
	actor.SnapshotStore
	door.StateStore

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend's connections.
	Close() error
}
