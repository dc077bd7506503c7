package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/service"
)

type fakeSweeper struct {
	mu      sync.Mutex
	calls   map[service.Tier]int
	cleared int32
	block   chan struct{}
	started chan struct{}
	panics  bool
}

func (f *fakeSweeper) Sweep(ctx context.Context, tier service.Tier) (service.SweepResult, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[service.Tier]int)
	}
	f.calls[tier]++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("sweep exploded")
	}
	return service.SweepResult{Tier: tier}, nil
}

func (f *fakeSweeper) ClearDedup() int {
	atomic.AddInt32(&f.cleared, 1)
	return 0
}

func (f *fakeSweeper) count(tier service.Tier) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tier]
}

func monitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		AllInterval:           5 * time.Minute,
		BusinessHoursInterval: 2 * time.Minute,
		CriticalInterval:      time.Minute,
		DedupResetSchedule:    "@hourly",
		ShutdownTimeout:       time.Second,
	}
}

func newTestScheduler(t *testing.T, sweeper Sweeper, cfg config.MonitorConfig) *SLAScheduler {
	t.Helper()
	s := NewSLAScheduler(sweeper, cfg, zaptest.NewLogger(t), WithCron(cron.New(cron.WithLocation(time.UTC))))
	require.NoError(t, s.schedule())
	return s
}

func (s *SLAScheduler) entryFor(t *testing.T, tier service.Tier) cron.Entry {
	t.Helper()
	s.mu.Lock()
	id, ok := s.entries[tier]
	s.mu.Unlock()
	require.True(t, ok, "tier %s not scheduled", tier)
	return s.cron.Entry(id)
}

func TestSchedulerRegistersEveryTier(t *testing.T) {
	s := newTestScheduler(t, &fakeSweeper{}, monitorConfig())

	assert.Equal(t, []service.Tier{service.TierAll, service.TierBusinessHours, service.TierCritical}, s.ScheduledTiers())
	assert.Len(t, s.cron.Entries(), 4, "three tiers plus the dedup reset")
}

func TestSchedulerSkipsZeroInterval(t *testing.T) {
	cfg := monitorConfig()
	cfg.BusinessHoursInterval = 0
	s := newTestScheduler(t, &fakeSweeper{}, cfg)

	assert.Equal(t, []service.Tier{service.TierAll, service.TierCritical}, s.ScheduledTiers())
}

func TestSchedulerRejectsBadDedupSchedule(t *testing.T) {
	cfg := monitorConfig()
	cfg.DedupResetSchedule = "every now and then"
	s := NewSLAScheduler(&fakeSweeper{}, cfg, zaptest.NewLogger(t))
	assert.Error(t, s.Start(context.Background()))
}

func TestDisableTierRemovesOnlyThatTier(t *testing.T) {
	s := newTestScheduler(t, &fakeSweeper{}, monitorConfig())

	assert.True(t, s.DisableTier(service.TierBusinessHours))
	assert.False(t, s.DisableTier(service.TierBusinessHours))
	assert.Equal(t, []service.Tier{service.TierAll, service.TierCritical}, s.ScheduledTiers())
	assert.Len(t, s.cron.Entries(), 3)
}

func TestTierJobRunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := newTestScheduler(t, sweeper, monitorConfig())

	s.entryFor(t, service.TierCritical).WrappedJob.Run()
	assert.Equal(t, 1, sweeper.count(service.TierCritical))
	assert.Zero(t, sweeper.count(service.TierAll))
}

func TestTierJobSurvivesPanic(t *testing.T) {
	sweeper := &fakeSweeper{panics: true}
	s := newTestScheduler(t, sweeper, monitorConfig())
	job := s.entryFor(t, service.TierAll).WrappedJob

	assert.NotPanics(t, job.Run)
	assert.NotPanics(t, job.Run, "a panic must not wedge the tier")
	assert.Equal(t, 2, sweeper.count(service.TierAll))
}

func TestTierNeverOverlapsWithItself(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{}), started: make(chan struct{}, 4)}
	s := newTestScheduler(t, sweeper, monitorConfig())
	allJob := s.entryFor(t, service.TierAll).WrappedJob
	criticalJob := s.entryFor(t, service.TierCritical).WrappedJob

	done := make(chan struct{})
	go func() {
		allJob.Run()
		close(done)
	}()
	<-sweeper.started

	// A second run of the same tier is skipped while the first is in flight.
	allJob.Run()
	assert.Equal(t, 1, sweeper.count(service.TierAll))

	// Other tiers are independent.
	go criticalJob.Run()
	<-sweeper.started
	assert.Equal(t, 1, sweeper.count(service.TierCritical))

	close(sweeper.block)
	<-done
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	sweeper := &fakeSweeper{}
	// cron logs from its own goroutine, which may outlive the test.
	s := NewSLAScheduler(sweeper, monitorConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunNowSweepsImmediately(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := NewSLAScheduler(sweeper, monitorConfig(), zaptest.NewLogger(t))

	result, err := s.RunNow(context.Background(), service.TierBusinessHours)
	require.NoError(t, err)
	assert.Equal(t, service.TierBusinessHours, result.Tier)
	assert.Equal(t, 1, sweeper.count(service.TierBusinessHours))
}
