package sps

import "time"

// Config holds the runtime knobs of a Host.
type Config struct {
	// Concurrency is the number of workers resuming due workflow runs.
	Concurrency int

	// PollInterval is how often idle workers look for due runs.
	PollInterval time.Duration

	// LeaseDuration is how long a claimed run stays owned by one worker.
	// A run whose lease expires while still running is treated as crashed
	// and becomes due again.
	LeaseDuration time.Duration

	// StepTimeout bounds one attempt of a step. It is clamped below
	// LeaseDuration so a hung call cannot outlive the lease and let a
	// second worker start the same step.
	StepTimeout time.Duration

	// MaxAttempts bounds consecutive failures of one step before the run
	// is marked failed. Zero means retry forever.
	MaxAttempts int

	// ShutdownTimeout is the maximum time to wait for in-flight steps.
	ShutdownTimeout time.Duration

	// HeartbeatInterval is how often a worker refreshes its registration.
	HeartbeatInterval time.Duration

	// CronTickInterval is how often the scheduler checks for due entries.
	CronTickInterval time.Duration

	// LocationTag scopes the event actor ("sps:nyc").
	LocationTag string

	// Location is the venue written on created events.
	Location string

	// GuestLimit is the capacity of events created by the workflow.
	GuestLimit int

	// BaseURL prefixes links in outgoing email.
	BaseURL string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      5 * time.Second,
		LeaseDuration:     5 * time.Minute,
		StepTimeout:       2 * time.Minute,
		MaxAttempts:       20,
		ShutdownTimeout:   30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		CronTickInterval:  15 * time.Second,
		LocationTag:       "sps:nyc",
		Location:          "325 Gold Street, Brooklyn, NY (5th Floor)",
		GuestLimit:        30,
		BaseURL:           "https://sideprojectsaturday.com",
	}
}
