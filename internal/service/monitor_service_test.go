package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
)

func TestSweepBreachesRoundTheClockTicket(t *testing.T) {
	h := newHarness(t)
	id := h.open(h.roundTheClock(domain.TicketPriorityMedium), domain.TicketPriorityMedium, monday, strPtr("agent-7"))

	h.clock.Set(monday.Add(8*time.Hour + time.Minute))
	result := h.sweep(TierAll)

	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 2, result.Breached)
	assert.Zero(t, result.Failed)

	resolution := h.entry(id, domain.SLAPhaseResolution)
	assert.Equal(t, domain.PhaseStatusBreached, resolution.Status)
	require.NotNil(t, resolution.TimeToBreachMinutes)
	assert.Equal(t, 1, *resolution.TimeToBreachMinutes)
	assert.Equal(t, 361, *h.entry(id, domain.SLAPhaseResponse).TimeToBreachMinutes)

	assert.Equal(t, domain.SLAStatusBreached, h.ticket(id).SLAStatus)
	assert.Equal(t, 2, h.audits(id, domain.ChangeTypeSLABreached))

	alerts := h.sink.Alerts()
	require.Len(t, alerts, 2)
	for _, alert := range alerts {
		assert.Equal(t, sla.AlertKindBreach, alert.Kind)
		assert.Equal(t, id, alert.TicketID)
		assert.Equal(t, []string{"agent-7", "lead-1"}, alert.RecipientIDs)
	}

	again := h.sweep(TierAll)
	assert.Zero(t, again.Scanned, "no pending phase left")
	assert.Len(t, h.sink.Alerts(), 2)
}

func TestSweepKeepsScanningBreachedTicketWithPendingPhase(t *testing.T) {
	h := newHarness(t)
	id := h.open(h.roundTheClock(domain.TicketPriorityMedium), domain.TicketPriorityMedium, monday, nil)

	h.clock.Set(monday.Add(3 * time.Hour))
	require.Equal(t, 1, h.sweep(TierAll).Breached)
	require.Equal(t, domain.SLAStatusBreached, h.ticket(id).SLAStatus)

	h.clock.Set(monday.Add(9 * time.Hour))
	result := h.sweep(TierAll)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Breached)
	assert.Equal(t, domain.PhaseStatusBreached, h.entry(id, domain.SLAPhaseResolution).Status)
}

func TestSweepWarnsAtMostOncePerWindow(t *testing.T) {
	h := newHarness(t)
	id := h.open(h.roundTheClock(domain.TicketPriorityMedium), domain.TicketPriorityMedium, monday, nil)

	// 30 minutes before the response target; the MEDIUM window is one hour.
	h.clock.Set(monday.Add(90 * time.Minute))
	first := h.sweep(TierAll)
	second := h.sweep(TierAll)

	assert.Equal(t, 1, first.Warned)
	assert.Equal(t, 0, second.Warned)
	assert.Equal(t, 1, second.Suppressed)

	alerts := h.sink.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, sla.AlertKindWarning, alerts[0].Kind)
	assert.Equal(t, domain.SLAPhaseResponse, alerts[0].Phase)
	assert.Equal(t, []string{"lead-1"}, alerts[0].RecipientIDs, "unassigned warnings escalate")
	assert.Equal(t, 30, alerts[0].Context["remaining_minutes"])

	assert.Equal(t, domain.SLAStatusWarning, h.ticket(id).SLAStatus)
	assert.Equal(t, domain.PhaseStatusPending, h.entry(id, domain.SLAPhaseResponse).Status)
	assert.Equal(t, 1, h.audits(id, domain.ChangeTypeSLAWarning))

	assert.Equal(t, 1, h.monitor.ClearDedup())
	assert.Equal(t, 1, h.sweep(TierAll).Warned)
	assert.Len(t, h.sink.Alerts(), 2)
}

func TestConcurrentSweepsAlertOncePerPhase(t *testing.T) {
	h := newHarness(t)
	cfg := h.roundTheClock(domain.TicketPriorityUrgent)
	id := h.open(cfg, domain.TicketPriorityUrgent, monday, strPtr("agent-7"))
	h.clock.Set(monday.Add(10 * time.Hour))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		breached int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.monitor.Sweep(context.Background(), TierAll)
			assert.NoError(t, err)
			mu.Lock()
			breached += result.Breached
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, breached)
	assert.Len(t, h.sink.Alerts(), 2)
	assert.Equal(t, 2, h.audits(id, domain.ChangeTypeSLABreached))
}

func TestBusinessHoursGate(t *testing.T) {
	h := newHarness(t)
	office := h.officeHours(domain.TicketPriorityUrgent, "UTC")
	h.officeHours(domain.TicketPriorityLow, "Asia/Tokyo")

	// Friday 15:00: response due 16:00, resolution Monday 11:00.
	id := h.open(office, domain.TicketPriorityUrgent, time.Date(2025, 1, 10, 15, 0, 0, 0, time.UTC), nil)

	t.Run("closed everywhere", func(t *testing.T) {
		h.clock.Set(time.Date(2025, 1, 11, 12, 0, 0, 0, time.UTC))
		assert.True(t, h.sweep(TierBusinessHours).Skipped)
		assert.True(t, h.sweep(TierCritical).Skipped)

		all := h.sweep(TierAll)
		assert.False(t, all.Skipped)
		assert.Equal(t, 1, all.Scanned)
		assert.Zero(t, all.Breached, "business-hours configs wait for their own hours")
	})

	t.Run("open elsewhere", func(t *testing.T) {
		// Monday 07:00 UTC is 16:00 in Tokyo.
		h.clock.Set(time.Date(2025, 1, 13, 7, 0, 0, 0, time.UTC))

		business := h.sweep(TierBusinessHours)
		assert.False(t, business.Skipped)
		assert.Equal(t, 1, business.Scanned)
		assert.Zero(t, business.Breached)

		critical := h.sweep(TierCritical)
		assert.Equal(t, 1, critical.Scanned)
		assert.Equal(t, 1, critical.Breached)
		assert.Equal(t, domain.PhaseStatusBreached, h.entry(id, domain.SLAPhaseResponse).Status)
		assert.Equal(t, domain.PhaseStatusPending, h.entry(id, domain.SLAPhaseResolution).Status)
	})
}

func TestCriticalSweepIgnoresLowerPriorities(t *testing.T) {
	h := newHarness(t)
	h.officeHours(domain.TicketPriorityHigh, "UTC")
	h.open(h.roundTheClock(domain.TicketPriorityHigh), domain.TicketPriorityHigh, monday, nil)

	// Monday 15:00, the UTC office is open.
	h.clock.Set(monday.Add(5 * time.Hour))
	critical := h.sweep(TierCritical)
	assert.False(t, critical.Skipped)
	assert.Zero(t, critical.Scanned)
	assert.Zero(t, h.sweep(TierBusinessHours).Scanned)
	assert.Equal(t, 1, h.sweep(TierAll).Scanned)
}

func TestSweepIsolatesMisconfiguredConfig(t *testing.T) {
	h := newHarness(t)
	healthy := h.open(h.roundTheClock(domain.TicketPriorityMedium), domain.TicketPriorityMedium, monday, nil)

	broken := h.store.PutConfig(domain.SLAConfig{
		Priority:          domain.TicketPriorityMedium,
		ResponseHours:     1,
		ResolutionHours:   2,
		BusinessHoursOnly: true,
		BusinessStart:     domain.MustTimeOfDay("17:00"),
		BusinessEnd:       domain.MustTimeOfDay("09:00"),
		IsActive:          true,
	})
	orphan := &domain.Ticket{Title: "legacy", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityMedium, SLAConfigID: &broken.ID, CreatedAt: monday}
	require.NoError(t, h.store.Tickets().Create(h.ctx, orphan))
	require.NoError(t, h.store.SLAHistory().Create(h.ctx, &domain.SLAHistoryEntry{
		TicketID:   orphan.ID,
		Phase:      domain.SLAPhaseResponse,
		TargetTime: monday.Add(time.Hour),
	}))

	h.clock.Set(monday.Add(9 * time.Hour))
	result := h.sweep(TierAll)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Breached)
	assert.Equal(t, domain.SLAStatusBreached, h.ticket(healthy).SLAStatus)
	assert.Equal(t, domain.PhaseStatusPending, h.entry(orphan.ID, domain.SLAPhaseResponse).Status)
}

type failingLedger struct {
	repository.SLAHistoryRepository
	failFor map[string]bool
}

func (f failingLedger) MarkBreached(ctx context.Context, entryID string, at time.Time, minutes int) (bool, error) {
	if f.failFor[entryID] {
		return false, errors.New("connection reset")
	}
	return f.SLAHistoryRepository.MarkBreached(ctx, entryID, at, minutes)
}

func TestSweepContinuesAfterStoreError(t *testing.T) {
	h := newHarness(t)
	cfg := h.roundTheClock(domain.TicketPriorityMedium)
	flaky := h.open(cfg, domain.TicketPriorityMedium, monday, nil)
	steady := h.open(cfg, domain.TicketPriorityMedium, monday, nil)

	ledger := failingLedger{
		SLAHistoryRepository: h.store.SLAHistory(),
		failFor:              map[string]bool{h.entry(flaky, domain.SLAPhaseResponse).ID: true},
	}
	h.monitor = h.newMonitor(ledger)

	h.clock.Set(monday.Add(9 * time.Hour))
	result := h.sweep(TierAll)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Breached)
	assert.Equal(t, domain.SLAStatusBreached, h.ticket(steady).SLAStatus)
	assert.Equal(t, domain.PhaseStatusPending, h.entry(flaky, domain.SLAPhaseResponse).Status)

	// The next tick retries once the store recovers.
	h.monitor = h.newMonitor(h.store.SLAHistory())
	assert.Equal(t, 2, h.sweep(TierAll).Breached)
}

// snapshotHookTickets runs afterList once the monitored set has been read.
type snapshotHookTickets struct {
	repository.TicketRepository
	afterList func()
}

func (r snapshotHookTickets) ListMonitored(ctx context.Context, filter repository.MonitorFilter) ([]domain.MonitoredTicket, error) {
	items, err := r.TicketRepository.ListMonitored(ctx, filter)
	if err == nil && r.afterList != nil {
		r.afterList()
	}
	return items, err
}

func TestSweepDoesNotBreachAfterInterleavedPause(t *testing.T) {
	tests := []struct {
		name       string
		resume     bool
		wantStatus domain.SLAStatus
		wantTarget time.Time
	}{
		{name: "paused", wantStatus: domain.SLAStatusPaused, wantTarget: monday.Add(2 * time.Hour)},
		{name: "paused and resumed", resume: true, wantStatus: domain.SLAStatusWithin, wantTarget: monday.Add(3*time.Hour + time.Minute)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			id := h.open(h.roundTheClock(domain.TicketPriorityMedium), domain.TicketPriorityMedium, monday, nil)
			sweepAt := monday.Add(2*time.Hour + time.Minute)

			tickets := snapshotHookTickets{
				TicketRepository: h.store.Tickets(),
				afterList: func() {
					h.clock.Set(monday.Add(time.Hour))
					_, err := h.sla.Pause(h.ctx, id, events.SystemActor, "customer away")
					require.NoError(t, err)
					if tc.resume {
						h.clock.Set(sweepAt)
						_, err = h.sla.Resume(h.ctx, id, events.SystemActor, "customer back")
						require.NoError(t, err)
					}
				},
			}
			monitor := NewMonitorService(MonitorDependencies{
				TicketRepo:  tickets,
				ConfigRepo:  h.store.SLAConfigs(),
				LedgerRepo:  h.store.SLAHistory(),
				HistoryRepo: h.store.TicketHistory(),
				Calendars:   calendar.NewBuilder("UTC", nil),
				Sink:        h.sink,
				Logger:      zaptest.NewLogger(t),
				Clock:       func() time.Time { return sweepAt },
			})

			result, err := monitor.Sweep(h.ctx, TierAll)
			require.NoError(t, err)
			assert.Zero(t, result.Breached)

			response := h.entry(id, domain.SLAPhaseResponse)
			assert.Equal(t, domain.PhaseStatusPending, response.Status)
			assert.True(t, tc.wantTarget.Equal(response.TargetTime), "target %s", response.TargetTime)
			assert.Equal(t, tc.wantStatus, h.ticket(id).SLAStatus)
			assert.Empty(t, h.sink.Alerts())
		})
	}
}

func TestDispatchFailureKeepsTransition(t *testing.T) {
	h := newHarness(t)
	id := h.open(h.roundTheClock(domain.TicketPriorityMedium), domain.TicketPriorityMedium, monday, nil)
	h.sink.err = errors.New("queue full")

	h.clock.Set(monday.Add(90 * time.Minute))
	result := h.sweep(TierAll)
	assert.Equal(t, 1, result.Warned)
	assert.Equal(t, domain.SLAStatusWarning, h.ticket(id).SLAStatus)
	assert.Zero(t, h.monitor.Dedup().Len(), "rejected warnings may be raised again")

	h.sink.mu.Lock()
	h.sink.err = nil
	h.sink.mu.Unlock()
	h.sweep(TierAll)
	assert.Len(t, h.sink.Alerts(), 1)
}

func TestSweepRejectsUnknownTier(t *testing.T) {
	h := newHarness(t)
	_, err := h.monitor.Sweep(h.ctx, Tier("NIGHTLY"))
	assert.Error(t, err)
}
