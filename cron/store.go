package cron

import (
	"context"
	"time"

	"github.com/zephraph/sps/id"
)

// Store defines the persistence contract for cron entries.
type Store interface {
	// RegisterCron persists a new entry. It returns sps.ErrDuplicateCron
	// if the name is taken.
	RegisterCron(ctx context.Context, entry *Entry) error

	GetCron(ctx context.Context, entryID id.CronID) (*Entry, error)
	GetCronByName(ctx context.Context, name string) (*Entry, error)
	ListCrons(ctx context.Context) ([]*Entry, error)

	// AcquireCronLock takes the per-entry lock for ttl. It returns false
	// if another worker holds an unexpired lock.
	AcquireCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID, ttl time.Duration) (bool, error)
	ReleaseCronLock(ctx context.Context, entryID id.CronID, workerID id.WorkerID) error

	UpdateCronLastRun(ctx context.Context, entryID id.CronID, at time.Time) error

	// UpdateCronEntry writes Schedule, Workflow, Payload, NextRunAt and
	// Enabled.
	UpdateCronEntry(ctx context.Context, entry *Entry) error

	DeleteCron(ctx context.Context, entryID id.CronID) error
}
