// Package worker runs the goroutines that claim due workflow runs and
// execute them.
package worker

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/id"
	"github.com/zephraph/sps/workflow"
)

// Runner claims and executes workflow runs. *workflow.Runner satisfies it.
type Runner interface {
	ClaimDue(ctx context.Context, workerID string, limit int) ([]*workflow.Run, error)
	Execute(ctx context.Context, run *workflow.Run) error
}

// Pool manages a set of goroutines that poll for due runs and execute
// them through the Runner. When a cluster store is set the pool also
// registers itself as a worker and heartbeats.
type Pool struct {
	runner       Runner
	cluster      cluster.Store
	concurrency  int
	pollInterval time.Duration
	workerID     id.WorkerID
	locationTag  string
	logger       *slog.Logger

	heartbeatInterval   time.Duration
	deadWorkerThreshold time.Duration

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeRuns map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of claim loops.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long an idle loop waits before polling again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often the pool heartbeats its worker
// record. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithDeadWorkerThreshold sets after how long without a heartbeat other
// workers are marked dead. A zero value disables reaping.
func WithDeadWorkerThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.deadWorkerThreshold = d }
}

// WithClusterStore enables worker registration.
func WithClusterStore(s cluster.Store) PoolOption {
	return func(p *Pool) { p.cluster = s }
}

// WithWorkerID overrides the generated worker ID.
func WithWorkerID(workerID id.WorkerID) PoolOption {
	return func(p *Pool) { p.workerID = workerID }
}

// WithLocationTag records the location tag on the worker record.
func WithLocationTag(tag string) PoolOption {
	return func(p *Pool) { p.locationTag = tag }
}

// NewPool creates a worker pool.
func NewPool(runner Runner, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		runner:       runner,
		concurrency:  2,
		pollInterval: 5 * time.Second,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		stopCh:       make(chan struct{}),
		activeRuns:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start registers the worker and launches the loops. It returns
// immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	if p.cluster != nil {
		hostname, _ := os.Hostname() //nolint:errcheck // informational only
		now := time.Now().UTC()
		w := &cluster.Worker{
			ID:          p.workerID,
			Hostname:    hostname,
			LocationTag: p.locationTag,
			Concurrency: p.concurrency,
			State:       cluster.WorkerActive,
			LastSeen:    now,
			CreatedAt:   now,
		}
		if err := p.cluster.RegisterWorker(ctx, w); err != nil {
			return err
		}
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.String("location_tag", p.locationTag),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.claimLoop()
	}

	if p.cluster != nil && p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}

	if p.cluster != nil && p.deadWorkerThreshold > 0 {
		p.wg.Add(1)
		go p.reaperLoop()
	}

	return nil
}

// Stop signals all loops to stop and waits for in-flight runs. If ctx
// ends first the in-flight runs are canceled; their leases expire and
// another worker picks them up.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active runs")
		p.cancelActiveRuns()
		p.wg.Wait()
	}

	if p.cluster != nil {
		if err := p.cluster.DeregisterWorker(context.WithoutCancel(ctx), p.workerID); err != nil {
			p.logger.Warn("deregister worker failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (p *Pool) claimLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		runs, err := p.runner.ClaimDue(context.Background(), p.workerID.String(), 1)
		if err != nil {
			p.logger.Error("claim error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}
		if len(runs) == 0 {
			p.sleep()
			continue
		}

		for _, run := range runs {
			p.execute(run)
		}
	}
}

func (p *Pool) execute(run *workflow.Run) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key := run.ID.String()
	p.trackRun(key, cancel)
	defer p.untrackRun(key)

	if err := p.runner.Execute(ctx, run); err != nil {
		p.logger.Error("run execution error",
			slog.String("run_id", key),
			slog.String("workflow", run.Name),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.cluster.HeartbeatWorker(context.Background(), p.workerID); err != nil {
				p.logger.Warn("heartbeat failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (p *Pool) reaperLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.deadWorkerThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapDeadWorkers()
		}
	}
}

func (p *Pool) reapDeadWorkers() {
	dead, err := p.cluster.ReapDeadWorkers(context.Background(), p.deadWorkerThreshold)
	if err != nil {
		p.logger.Error("reap dead workers error", slog.String("error", err.Error()))
		return
	}
	for _, w := range dead {
		p.logger.Info("reaped dead worker",
			slog.String("worker_id", w.ID.String()),
			slog.String("hostname", w.Hostname),
		)
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackRun(runID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeRuns[runID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackRun(runID string) {
	p.activeMu.Lock()
	delete(p.activeRuns, runID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveRuns() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for runID, cancel := range p.activeRuns {
		p.logger.Warn("cancelling active run", slog.String("run_id", runID))
		cancel()
	}
}
