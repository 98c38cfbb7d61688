package workflow

import (
	"time"

	"github.com/zephraph/sps/id"
)

// Checkpoint is the saved outcome of one completed step.
type Checkpoint struct {
	ID        id.CheckpointID `json:"id"`
	RunID     id.RunID        `json:"run_id"`
	StepName  string          `json:"step_name"`
	Data      []byte          `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}
