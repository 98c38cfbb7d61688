package cron

import (
	"time"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/id"
)

// Entry is a persisted recurring schedule.
type Entry struct {
	sps.Entity

	ID          id.CronID  `json:"id"`
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Workflow    string     `json:"workflow"`
	Payload     []byte     `json:"payload,omitempty"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LockedBy    string     `json:"locked_by,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Enabled     bool       `json:"enabled"`
}

// Due reports whether the entry should fire at now.
func (e *Entry) Due(now time.Time) bool {
	return e.Enabled && e.NextRunAt != nil && !e.NextRunAt.After(now)
}
