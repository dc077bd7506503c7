package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/service"
)

// Sweeper runs monitor sweeps and owns the dedup window.
type Sweeper interface {
	Sweep(ctx context.Context, tier service.Tier) (service.SweepResult, error)
	ClearDedup() int
}

// SLAScheduler runs every sweep tier on its own timer plus the periodic
// dedup reset. A tier never overlaps with itself; different tiers may.
type SLAScheduler struct {
	sweeper         Sweeper
	cron            *cron.Cron
	cronLog         cron.Logger
	logger          *zap.Logger
	intervals       map[service.Tier]time.Duration
	dedupSchedule   string
	shutdownTimeout time.Duration

	mu        sync.Mutex
	entries   map[service.Tier]cron.EntryID
	rootCtx   context.Context
	startOnce sync.Once
	stopOnce  sync.Once
}

// SchedulerOption customizes the scheduler.
type SchedulerOption func(*SLAScheduler)

// WithCron supplies a preconfigured cron instance.
func WithCron(c *cron.Cron) SchedulerOption {
	return func(s *SLAScheduler) {
		s.cron = c
	}
}

// NewSLAScheduler builds the scheduler from monitor settings. A tier with a
// zero interval is not scheduled.
func NewSLAScheduler(sweeper Sweeper, cfg config.MonitorConfig, logger *zap.Logger, opts ...SchedulerOption) *SLAScheduler {
	cronLog := zapCronLogger{logger: logger.Sugar()}
	s := &SLAScheduler{
		sweeper: sweeper,
		cronLog: cronLog,
		logger:  logger,
		intervals: map[service.Tier]time.Duration{
			service.TierAll:           cfg.AllInterval,
			service.TierBusinessHours: cfg.BusinessHoursInterval,
			service.TierCritical:      cfg.CriticalInterval,
		},
		dedupSchedule:   cfg.DedupResetSchedule,
		shutdownTimeout: cfg.ShutdownTimeout,
		entries:         make(map[service.Tier]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cronLog))
	}
	if s.dedupSchedule == "" {
		s.dedupSchedule = "@hourly"
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 30 * time.Second
	}
	return s
}

// Start registers all entries and starts the timers.
func (s *SLAScheduler) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.rootCtx = ctx
		s.mu.Unlock()
		if err = s.schedule(); err != nil {
			return
		}
		s.cron.Start()
		s.logger.Info("sla scheduler started", zap.Strings("tiers", tierNames(s.ScheduledTiers())))
	})
	return err
}

// Run starts the scheduler and blocks until ctx is done.
func (s *SLAScheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts the timers and waits, up to the shutdown timeout, for running
// sweeps to finish.
func (s *SLAScheduler) Stop() {
	s.stopOnce.Do(func() {
		done := s.cron.Stop()
		select {
		case <-done.Done():
			s.logger.Info("sla scheduler stopped")
		case <-time.After(s.shutdownTimeout):
			s.logger.Warn("sla scheduler timed out waiting for sweeps", zap.Duration("timeout", s.shutdownTimeout))
		}
	})
}

// DisableTier removes a tier's timer. It reports whether the tier was scheduled.
func (s *SLAScheduler) DisableTier(tier service.Tier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[tier]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, tier)
	s.logger.Info("sla sweep tier disabled", zap.String("tier", string(tier)))
	return true
}

// ScheduledTiers lists the tiers that currently have a timer.
func (s *SLAScheduler) ScheduledTiers() []service.Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	tiers := make([]service.Tier, 0, len(s.entries))
	for tier := range s.entries {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}

// RunNow sweeps a tier immediately, outside its timer.
func (s *SLAScheduler) RunNow(ctx context.Context, tier service.Tier) (service.SweepResult, error) {
	return s.sweeper.Sweep(ctx, tier)
}

func (s *SLAScheduler) schedule() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tier := range service.Tiers {
		interval := s.intervals[tier]
		if interval <= 0 {
			s.logger.Info("sla sweep tier not scheduled", zap.String("tier", string(tier)))
			continue
		}
		tier := tier
		job := cron.NewChain(
			cron.SkipIfStillRunning(s.cronLog),
			cron.Recover(s.cronLog),
		).Then(cron.FuncJob(func() { s.runTier(tier) }))

		id, err := s.cron.AddJob(fmt.Sprintf("@every %s", interval), job)
		if err != nil {
			return fmt.Errorf("schedule %s sweep: %w", tier, err)
		}
		s.entries[tier] = id
	}

	reset := cron.NewChain(cron.Recover(s.cronLog)).Then(cron.FuncJob(func() {
		s.sweeper.ClearDedup()
	}))
	if _, err := s.cron.AddJob(s.dedupSchedule, reset); err != nil {
		return fmt.Errorf("schedule dedup reset %q: %w", s.dedupSchedule, err)
	}
	return nil
}

func (s *SLAScheduler) runTier(tier service.Tier) {
	s.mu.Lock()
	ctx := s.rootCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	if _, err := s.sweeper.Sweep(ctx, tier); err != nil {
		s.logger.Error("sla sweep failed", zap.String("tier", string(tier)), zap.Error(err))
	}
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}

func tierNames(tiers []service.Tier) []string {
	names := make([]string, len(tiers))
	for i, tier := range tiers {
		names[i] = string(tier)
	}
	return names
}
