package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/collector"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/monitoring"
)

// DefaultRunTimeout bounds one scheduled refresh batch
const DefaultRunTimeout = 30 * time.Minute

// Refresher runs one batch refresh of stale snapshots
type Refresher interface {
	RefreshStaleData(ctx context.Context) (collector.RefreshReport, error)
}

// RunStatus describes the most recent batch
type RunStatus struct {
	StartedAt time.Time               `json:"started_at"`
	Report    collector.RefreshReport `json:"report"`
	Error     string                  `json:"error,omitempty"`
	Runs      int                     `json:"runs"`
}

// Scheduler triggers batch refreshes on a cron schedule. Overlapping runs
// are skipped.
type Scheduler struct {
	cron       *cron.Cron
	refresher  Refresher
	runTimeout time.Duration
	logger     *monitoring.Logger
	tracer     trace.Tracer

	mu     sync.Mutex
	status RunStatus
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRunTimeout overrides DefaultRunTimeout
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.runTimeout = d }
}

// WithLogger sets the logger
func WithLogger(logger *monitoring.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a stopped scheduler with seconds-precision cron expressions
func New(refresher Refresher, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		refresher:  refresher,
		runTimeout: DefaultRunTimeout,
		logger:     monitoring.NopLogger(),
		tracer:     monitoring.Tracer("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers the batch refresh under spec
func (s *Scheduler) Schedule(spec string) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("add refresh schedule %q: %w", spec, err)
	}

	slog.Info("refresh schedule added", "cron", spec, "entry_id", id)
	return id, nil
}

// ScheduleTask registers a maintenance task under spec. Task errors are logged.
func (s *Scheduler) ScheduleTask(spec, name string, task func(ctx context.Context) error) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()

		ctx, span := s.tracer.Start(ctx, "scheduler.task", trace.WithAttributes(attribute.String("task", name)))
		err := task(ctx)
		monitoring.EndSpan(span, err)
		if err != nil {
			s.logger.SystemLogger("scheduled_task_failed", fmt.Sprintf("%s: %v", name, err))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("add %s schedule %q: %w", name, spec, err)
	}

	slog.Info("task schedule added", "task", name, "cron", spec, "entry_id", id)
	return id, nil
}

// RunOnce runs one batch refresh now and records its outcome
func (s *Scheduler) RunOnce(ctx context.Context) (report collector.RefreshReport, err error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "scheduler.refresh",
		trace.WithAttributes(attribute.String("trigger", "cron")),
	)
	defer func() { monitoring.EndSpan(span, err) }()

	report, err = s.refresher.RefreshStaleData(ctx)

	s.mu.Lock()
	s.status.StartedAt = started
	s.status.Report = report
	s.status.Error = ""
	if err != nil {
		s.status.Error = err.Error()
	}
	s.status.Runs++
	s.mu.Unlock()

	if err != nil {
		s.logger.SystemLogger("scheduled_refresh_failed", err.Error())
	}
	return report, err
}

// LastRun returns the status of the most recent batch
func (s *Scheduler) LastRun() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Entries returns the number of registered schedules
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start begins the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started")
}

// Stop waits for a running batch to finish or for ctx to expire
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		slog.Info("scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.Warn("scheduler stop timeout")
		return ctx.Err()
	}
}
