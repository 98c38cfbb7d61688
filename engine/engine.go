package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zephraph/sps"
	"github.com/zephraph/sps/backoff"
	"github.com/zephraph/sps/clock"
	"github.com/zephraph/sps/cron"
	"github.com/zephraph/sps/ext"
	"github.com/zephraph/sps/id"
	mw "github.com/zephraph/sps/middleware"
	"github.com/zephraph/sps/observability"
	"github.com/zephraph/sps/store"
	"github.com/zephraph/sps/worker"
	"github.com/zephraph/sps/workflow"
)

// extRunEmitter adapts *ext.Registry to workflow.RunEmitter.
type extRunEmitter struct {
	r *ext.Registry
}

func (a *extRunEmitter) EmitStepCompleted(ctx context.Context, run *workflow.Run, stepName string, elapsed time.Duration) {
	a.r.EmitWorkflowStepCompleted(ctx, run, stepName, elapsed)
}

func (a *extRunEmitter) EmitStepFailed(ctx context.Context, run *workflow.Run, stepName string, err error) {
	a.r.EmitWorkflowStepFailed(ctx, run, stepName, err)
}

func (a *extRunEmitter) EmitWorkflowStarted(ctx context.Context, run *workflow.Run) {
	a.r.EmitWorkflowStarted(ctx, run)
}

func (a *extRunEmitter) EmitWorkflowSuspended(ctx context.Context, run *workflow.Run, wakeAt time.Time) {
	a.r.EmitWorkflowSuspended(ctx, run, wakeAt)
}

func (a *extRunEmitter) EmitWorkflowCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	a.r.EmitWorkflowCompleted(ctx, run, elapsed)
}

func (a *extRunEmitter) EmitWorkflowFailed(ctx context.Context, run *workflow.Run, err error) {
	a.r.EmitWorkflowFailed(ctx, run, err)
}

func (a *extRunEmitter) EmitWorkflowCanceled(ctx context.Context, run *workflow.Run) {
	a.r.EmitWorkflowCanceled(ctx, run)
}

// Engine holds the wired subsystems of one host.
type Engine struct {
	host       *sps.Host
	store      store.Store
	extensions *ext.Registry
	registry   *workflow.Registry
	runner     *workflow.Runner
	pool       *worker.Pool
	scheduler  *cron.Scheduler
	clock      clock.Clock
	bo         backoff.Strategy
	mws        []mw.Middleware
	logger     *slog.Logger

	cronMu sync.RWMutex
	crons  map[string]cron.Definition

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.extensions.Register(e) }
}

// WithMiddleware appends step middleware after the defaults.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry delay for failed steps. The default is
// backoff.Default().
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithClock sets the time source for the runner and the scheduler.
func WithClock(c clock.Clock) Option {
	return func(eng *Engine) { eng.clock = c }
}

// WithTracerProvider sets the provider for the tracing middleware. The
// global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets the provider for the metrics middleware and the
// metrics extension. The global provider is used otherwise.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

const instrumentation = "github.com/zephraph/sps"

// Build wires an Engine onto h and attaches its pool and scheduler. The
// host's store must implement store.Store.
func Build(h *sps.Host, opts ...Option) (*Engine, error) {
	if h.Store() == nil {
		return nil, sps.ErrNoStore
	}
	st, ok := h.Store().(store.Store)
	if !ok {
		return nil, fmt.Errorf("sps: store %T does not implement store.Store", h.Store())
	}

	logger := h.Logger()
	config := h.Config()
	eng := &Engine{
		host:       h,
		store:      st,
		extensions: ext.NewRegistry(logger),
		registry:   workflow.NewRegistry(),
		clock:      clock.Real{},
		logger:     logger,
		crons:      make(map[string]cron.Definition),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.bo == nil {
		eng.bo = backoff.Default()
	}

	tracingMw := mw.Tracing()
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentation))
	}
	metricsMw := mw.Metrics()
	obsExt := observability.NewMetricsExtension()
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentation))
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentation + "/observability"))
	}
	eng.extensions.Register(obsExt)

	// recover → tracing → metrics → logging → timeout, then caller middleware.
	chain := make([]mw.Middleware, 0, 5+len(eng.mws))
	chain = append(chain, mw.Recover(logger), tracingMw, metricsMw, mw.Logging(logger), mw.Timeout(stepTimeout(config)))
	chain = append(chain, eng.mws...)

	eng.runner = workflow.NewRunner(eng.registry, st, &extRunEmitter{r: eng.extensions}, logger,
		workflow.WithClock(eng.clock),
		workflow.WithBackoff(eng.bo),
		workflow.WithMaxAttempts(config.MaxAttempts),
		workflow.WithLease(config.LeaseDuration),
		workflow.WithMiddleware(chain...),
	)

	eng.pool = worker.NewPool(eng.runner, logger,
		worker.WithConcurrency(config.Concurrency),
		worker.WithPollInterval(config.PollInterval),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithDeadWorkerThreshold(3*config.HeartbeatInterval),
		worker.WithClusterStore(st),
		worker.WithLocationTag(config.LocationTag),
	)

	eng.scheduler = cron.NewScheduler(st, st, eng.fire, eng.extensions, eng.pool.WorkerID(), logger,
		cron.WithTickInterval(config.CronTickInterval),
		cron.WithClock(eng.clock),
	)

	h.Attach(eng.pool)
	h.Attach(eng.scheduler)
	h.SetExtensions(eng.extensions)
	return eng, nil
}

// stepTimeout keeps a step attempt shorter than the run lease.
func stepTimeout(c sps.Config) time.Duration {
	d := c.StepTimeout
	if c.LeaseDuration > 0 && (d <= 0 || d >= c.LeaseDuration) {
		d = c.LeaseDuration / 2
	}
	return d
}

// Register adds a workflow definition.
func Register[T any](eng *Engine, def *workflow.Definition[T]) {
	workflow.RegisterDefinition(eng.registry, def)
}

// Start creates a run of the named workflow and executes it until it
// first suspends or finishes.
func Start[T any](ctx context.Context, eng *Engine, name string, input T) (*workflow.Run, error) {
	return workflow.Start(ctx, eng.runner, name, input)
}

// RegisterCron persists def and remembers it so firings compute their
// input through def.Input. Registering the same name again updates the
// schedule.
func (eng *Engine) RegisterCron(ctx context.Context, def cron.Definition) (*cron.Entry, error) {
	if _, ok := eng.registry.Get(def.Workflow); !ok {
		return nil, fmt.Errorf("register cron %q: workflow %q: %w", def.Name, def.Workflow, sps.ErrWorkflowNotFound)
	}
	entry, err := cron.Register(ctx, eng.store, def, eng.clock.Now())
	if err != nil {
		return nil, err
	}
	eng.cronMu.Lock()
	eng.crons[def.Name] = def
	eng.cronMu.Unlock()

	eng.logger.Info("cron registered",
		slog.String("cron_name", def.Name),
		slog.String("schedule", def.Schedule),
		slog.String("workflow", def.Workflow),
	)
	return entry, nil
}

// fire starts the workflow of a due cron entry. Entries persisted by an
// earlier process but not registered in this one start with their
// stored payload.
func (eng *Engine) fire(ctx context.Context, entry *cron.Entry, firedAt time.Time) (id.RunID, error) {
	eng.cronMu.RLock()
	def, ok := eng.crons[entry.Name]
	eng.cronMu.RUnlock()

	payload := entry.Payload
	if ok {
		var err error
		if payload, err = def.Payload(entry, firedAt); err != nil {
			return id.RunID{}, err
		}
	}
	run, err := eng.runner.StartRaw(ctx, entry.Workflow, payload)
	if err != nil {
		return id.RunID{}, err
	}
	return run.ID, nil
}

// Recover executes runs that are already due: sleeps that elapsed while
// no process was up and runs a crashed process left with an expired
// lease. It returns how many ran.
func (eng *Engine) Recover(ctx context.Context) (int, error) {
	const batch = 50
	total := 0
	for {
		n, err := eng.runner.ResumeDue(ctx, batch)
		total += n
		if err != nil || n < batch {
			return total, err
		}
	}
}

// Host returns the host the engine is attached to.
func (eng *Engine) Host() *sps.Host { return eng.host }

// Store returns the aggregate store.
func (eng *Engine) Store() store.Store { return eng.store }

// Extensions returns the extension registry. It also satisfies the
// guest event emitter of package rsvp.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the workflow registry.
func (eng *Engine) Registry() *workflow.Registry { return eng.registry }

// Runner returns the workflow runner.
func (eng *Engine) Runner() *workflow.Runner { return eng.runner }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Scheduler returns the cron scheduler.
func (eng *Engine) Scheduler() *cron.Scheduler { return eng.scheduler }
