package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/cluster"
	"github.com/zephraph/sps/id"
)

// FireFunc starts the workflow for one firing of entry. The engine
// provides it, which keeps this package free of the workflow runner.
type FireFunc func(ctx context.Context, entry *Entry, firedAt time.Time) (id.RunID, error)

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, runID id.RunID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLockTTL sets the TTL for per-entry locks.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// WithLeaderTTL sets the TTL for the leadership lease.
func WithLeaderTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.leaderTTL = d }
}

// WithClock replaces the wall clock used to decide what is due.
func WithClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler fires due entries on a tick loop. Only the cluster leader
// fires.
type Scheduler struct {
	cronStore    Store
	clusterStore cluster.Store
	fire         FireFunc
	emitter      Emitter
	workerID     id.WorkerID
	logger       *slog.Logger
	clock        clock.Clock

	tickInterval time.Duration
	lockTTL      time.Duration
	leaderTTL    time.Duration

	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	cronStore Store,
	clusterStore cluster.Store,
	fire FireFunc,
	emitter Emitter,
	workerID id.WorkerID,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cronStore:    cronStore,
		clusterStore: clusterStore,
		fire:         fire,
		emitter:      emitter,
		workerID:     workerID,
		logger:       logger,
		clock:        clock.Real{},
		tickInterval: 15 * time.Second,
		lockTTL:      30 * time.Second,
		leaderTTL:    15 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the leader election and tick goroutines.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(2)
	go s.leaderLoop()
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.String("worker_id", s.workerID.String()),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for its goroutines.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) leaderLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.leaderTTL / 2)
	defer ticker.Stop()

	s.TryLeadership(context.Background())

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.TryLeadership(context.Background())
		}
	}
}

// TryLeadership renews the lease if held, otherwise tries to acquire it.
// It reports whether this worker is leader afterwards.
func (s *Scheduler) TryLeadership(ctx context.Context) bool {
	renewed, err := s.clusterStore.RenewLeadership(ctx, s.workerID, s.leaderTTL)
	if err != nil {
		s.logger.Warn("leadership renew error", slog.String("error", err.Error()))
		return false
	}
	if renewed {
		return true
	}

	acquired, err := s.clusterStore.AcquireLeadership(ctx, s.workerID, s.leaderTTL)
	if err != nil {
		s.logger.Warn("leadership acquire error", slog.String("error", err.Error()))
		return false
	}
	if acquired {
		s.logger.Info("acquired cron leadership", slog.String("worker_id", s.workerID.String()))
	}
	return acquired
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}

// Tick fires every due entry if this worker is leader and returns how
// many fired.
func (s *Scheduler) Tick(ctx context.Context) int {
	leader, err := cluster.IsLeader(ctx, s.clusterStore, s.workerID)
	if err != nil {
		s.logger.Warn("get leader error", slog.String("error", err.Error()))
		return 0
	}
	if !leader {
		return 0
	}

	entries, err := s.cronStore.ListCrons(ctx)
	if err != nil {
		s.logger.Error("list crons error", slog.String("error", err.Error()))
		return 0
	}

	now := s.clock.Now().UTC()
	fired := 0
	for _, entry := range entries {
		if !entry.Due(now) {
			continue
		}
		if s.fireEntry(ctx, entry, now) {
			fired++
		}
	}
	return fired
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) bool {
	log := s.logger.With(
		slog.String("cron_name", entry.Name),
		slog.String("cron_id", entry.ID.String()),
	)

	acquired, err := s.cronStore.AcquireCronLock(ctx, entry.ID, s.workerID, s.lockTTL)
	if err != nil {
		log.Error("acquire cron lock error", slog.String("error", err.Error()))
		return false
	}
	if !acquired {
		return false
	}
	defer func() {
		if relErr := s.cronStore.ReleaseCronLock(ctx, entry.ID, s.workerID); relErr != nil {
			log.Error("release cron lock error", slog.String("error", relErr.Error()))
		}
	}()

	runID, fireErr := s.fire(ctx, entry, now)
	if fireErr != nil {
		log.Error("cron fire error",
			slog.String("workflow", entry.Workflow),
			slog.String("error", fireErr.Error()),
		)
		return false
	}

	if updateErr := s.cronStore.UpdateCronLastRun(ctx, entry.ID, now); updateErr != nil {
		log.Error("update cron last run error", slog.String("error", updateErr.Error()))
	}

	sched, parseErr := s.schedule(entry.Schedule)
	if parseErr != nil {
		log.Error("parse cron schedule error",
			slog.String("schedule", entry.Schedule),
			slog.String("error", parseErr.Error()),
		)
	} else {
		next := sched.Next(now)
		entry.LastRunAt = &now
		entry.NextRunAt = &next
		entry.UpdatedAt = now
		if updateErr := s.cronStore.UpdateCronEntry(ctx, entry); updateErr != nil {
			log.Error("update cron next run error", slog.String("error", updateErr.Error()))
		}
	}

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, entry.Name, runID)
	}

	log.Info("cron fired",
		slog.String("workflow", entry.Workflow),
		slog.String("run_id", runID.String()),
	)
	return true
}

func (s *Scheduler) schedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
