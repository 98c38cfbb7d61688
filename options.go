package sps

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Host.
type Option func(*Host) error

// Storer is the minimal store interface held by the Host. It covers
// lifecycle operations only; subsystems type-assert the full contracts
// they need from the same value.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runnable is a background loop the Host starts and stops.
type runnable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// shutdownEmitter receives the shutdown notification.
type shutdownEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Host owns the store and the background loops (worker pool, cron
// scheduler). Package engine builds the loops and attaches them.
type Host struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions shutdownEmitter
	loops      []runnable

	started bool
}

// New creates a Host with the given options.
func New(opts ...Option) (*Host, error) {
	h := &Host{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Logger returns the host's logger.
func (h *Host) Logger() *slog.Logger { return h.logger }

// Store returns the host's store.
func (h *Host) Store() Storer { return h.store }

// Config returns a copy of the host's configuration.
func (h *Host) Config() Config { return h.config }

// Attach registers a background loop. Loops start in attach order and
// stop in reverse.
func (h *Host) Attach(r runnable) { h.loops = append(h.loops, r) }

// SetExtensions sets the shutdown emitter.
func (h *Host) SetExtensions(e shutdownEmitter) { h.extensions = e }

// Start starts every attached loop.
func (h *Host) Start(ctx context.Context) error {
	if h.store == nil {
		return ErrNoStore
	}
	for i, r := range h.loops {
		if err := r.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = h.loops[j].Stop(ctx) //nolint:errcheck // best-effort unwind
			}
			return err
		}
	}
	h.started = true
	return nil
}

// Stop stops the loops in reverse order, emits shutdown and closes the
// store.
func (h *Host) Stop(ctx context.Context) error {
	if h.started {
		for i := len(h.loops) - 1; i >= 0; i-- {
			if err := h.loops[i].Stop(ctx); err != nil {
				h.logger.Error("loop stop error", slog.String("error", err.Error()))
			}
		}
		h.started = false
	}
	if h.extensions != nil {
		h.extensions.EmitShutdown(ctx)
	}
	if h.store != nil {
		return h.store.Close()
	}
	return nil
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) error {
		h.logger = l
		return nil
	}
}

// WithStore sets the persistence backend. It must implement Storer and,
// for engine.Build, the subsystem contracts in package store.
func WithStore(s Storer) Option {
	return func(h *Host) error {
		h.store = s
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(c Config) Option {
	return func(h *Host) error {
		h.config = c
		return nil
	}
}

// WithConcurrency sets the number of run workers.
func WithConcurrency(n int) Option {
	return func(h *Host) error {
		h.config.Concurrency = n
		return nil
	}
}

// WithLocationTag sets the actor scope.
func WithLocationTag(tag string) Option {
	return func(h *Host) error {
		h.config.LocationTag = tag
		return nil
	}
}

// WithPollInterval sets how often idle workers look for due runs.
func WithPollInterval(d time.Duration) Option {
	return func(h *Host) error {
		if d <= 0 {
			return Invalidf("sps.WithPollInterval", "poll interval must be positive, got %s", d)
		}
		h.config.PollInterval = d
		return nil
	}
}
