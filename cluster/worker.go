package cluster

import (
	"time"

	"github.com/zephraph/sps/id"
)

// WorkerState is the lifecycle state of a worker.
type WorkerState string

const (
	// WorkerActive is claiming and executing runs.
	WorkerActive WorkerState = "active"
	// WorkerDraining is finishing in-flight runs before exit.
	WorkerDraining WorkerState = "draining"
	// WorkerDead stopped heartbeating.
	WorkerDead WorkerState = "dead"
)

// Worker is one running sps process.
type Worker struct {
	ID          id.WorkerID       `json:"id"`
	Hostname    string            `json:"hostname"`
	LocationTag string            `json:"location_tag"`
	Concurrency int               `json:"concurrency"`
	State       WorkerState       `json:"state"`
	IsLeader    bool              `json:"is_leader"`
	LeaderUntil *time.Time        `json:"leader_until,omitempty"`
	LastSeen    time.Time         `json:"last_seen"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
