package background

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"subkeeper/internal/logger"
	"subkeeper/internal/metrics"
	"subkeeper/internal/repositories"
)

const (
	JobCachePurge     = "cache-purge"
	JobInvariantAudit = "invariant-audit"
	JobCatalogWarm    = "plan-catalog-warm"
)

// ExpiringCache is an in-process cache backend that needs periodic sweeping.
type ExpiringCache interface {
	PurgeExpired() int
}

// ViolationFinder reports subscribers holding more than one active subscription.
type ViolationFinder interface {
	FindInvariantViolations(ctx context.Context) ([]repositories.InvariantViolation, error)
}

// CatalogWarmer reloads the cached plan list.
type CatalogWarmer interface {
	WarmPlanList(ctx context.Context) (int, error)
}

type Intervals struct {
	CachePurge     time.Duration
	InvariantAudit time.Duration
	CatalogWarm    time.Duration
}

// Dependencies are optional; a job whose dependency is nil is not registered.
type Dependencies struct {
	Cache   ExpiringCache
	Auditor ViolationFinder
	Catalog CatalogWarmer
}

// JobScheduler runs the service's maintenance jobs.
type JobScheduler struct {
	scheduler gocron.Scheduler
	deps      Dependencies
	logger    *slog.Logger
	metrics   *metrics.Collector
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

type Option func(*schedulerOptions)

type schedulerOptions struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.Collector
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *schedulerOptions) { o.clock = clock }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *schedulerOptions) { o.logger = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(o *schedulerOptions) { o.metrics = m }
}

// NewJobScheduler creates the scheduler and registers every job whose dependency is present.
func NewJobScheduler(intervals Intervals, deps Dependencies, opts ...Option) (*JobScheduler, error) {
	o := schedulerOptions{logger: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	schedulerOpts := []gocron.SchedulerOption{gocron.WithStopTimeout(10 * time.Second)}
	if o.clock != nil {
		schedulerOpts = append(schedulerOpts, gocron.WithClock(o.clock))
	}
	scheduler, err := gocron.NewScheduler(schedulerOpts...)
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler: scheduler,
		deps:      deps,
		logger:    o.logger.With(slog.String("component", "jobs")),
		metrics:   o.metrics,
		jobs:      make(map[string]gocron.Job),
	}
	if err := js.registerJobs(intervals); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

func (js *JobScheduler) registerJobs(intervals Intervals) error {
	var errs []error
	if js.deps.Cache != nil {
		errs = append(errs, js.add(JobCachePurge, intervals.CachePurge, js.PurgeCache, false))
	}
	if js.deps.Auditor != nil {
		errs = append(errs, js.add(JobInvariantAudit, intervals.InvariantAudit, js.AuditInvariants, false))
	}
	if js.deps.Catalog != nil {
		// Warm at boot so the first plan listing is a hit.
		errs = append(errs, js.add(JobCatalogWarm, intervals.CatalogWarm, js.WarmCatalog, true))
	}
	js.logger.Info("registered background jobs", slog.String("jobs", strings.Join(js.JobNames(), ",")))
	return errors.Join(errs...)
}

func (js *JobScheduler) add(name string, interval time.Duration, task func(context.Context) error, immediately bool) error {
	if interval <= 0 {
		js.logger.Warn("job disabled by non-positive interval", slog.String("job", name))
		return nil
	}

	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediately {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	// gocron injects the job's context into a task whose first parameter is a context.Context.
	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			start := time.Now()
			if err := task(ctx); err != nil {
				js.logger.ErrorContext(ctx, "job failed", slog.String("job", name), logger.Error(err))
				return
			}
			js.logger.DebugContext(ctx, "job completed", slog.String("job", name), slog.Duration("took", time.Since(start)))
		}),
		opts...,
	)
	if err != nil {
		return err
	}

	js.mu.Lock()
	js.jobs[name] = job
	js.mu.Unlock()
	return nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler")
	js.scheduler.Start()
}

// Stop waits for running jobs and stops the scheduler
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// JobNames lists registered jobs in name order.
func (js *JobScheduler) JobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()
	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PurgeCache drops expired entries from the in-process cache backend.
func (js *JobScheduler) PurgeCache(ctx context.Context) error {
	purged := js.deps.Cache.PurgeExpired()
	if purged > 0 {
		js.logger.DebugContext(ctx, "purged expired cache entries", slog.Int("count", purged))
	}
	return nil
}

// AuditInvariants reports, but never repairs, subscribers with more than one active subscription.
func (js *JobScheduler) AuditInvariants(ctx context.Context) error {
	violations, err := js.deps.Auditor.FindInvariantViolations(ctx)
	if err != nil {
		return err
	}
	for _, v := range violations {
		ids := make([]string, 0, len(v.SubscriptionIDs))
		for _, id := range v.SubscriptionIDs {
			ids = append(ids, id.String())
		}
		js.metrics.RecordInvariantViolation()
		js.logger.ErrorContext(ctx, "multiple active subscriptions",
			logger.SubscriberID(v.SubscriberID),
			slog.Any("subscription_ids", ids),
		)
	}
	if len(violations) == 0 {
		js.logger.DebugContext(ctx, "invariant audit clean")
	}
	return nil
}

// WarmCatalog refreshes the cached plan list.
func (js *JobScheduler) WarmCatalog(ctx context.Context) error {
	n, err := js.deps.Catalog.WarmPlanList(ctx)
	if err != nil {
		return err
	}
	js.logger.DebugContext(ctx, "plan list warmed", slog.Int("plans", n))
	return nil
}
