package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
)

// 2025-01-06 is a Monday.
var monday = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []sla.Alert
	err    error
}

func (s *recordingSink) Send(ctx context.Context, alert sla.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *recordingSink) Alerts() []sla.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sla.Alert(nil), s.alerts...)
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	store   *repository.MemoryStore
	clock   *fakeClock
	sink    *recordingSink
	sla     *SLAService
	monitor *MonitorService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		store: repository.NewMemoryStore(),
		clock: &fakeClock{now: monday},
		sink:  &recordingSink{},
	}
	h.sla = NewSLAService(SLADependencies{
		TicketRepo:  h.store.Tickets(),
		ConfigRepo:  h.store.SLAConfigs(),
		LedgerRepo:  h.store.SLAHistory(),
		HistoryRepo: h.store.TicketHistory(),
		Calendars:   calendar.NewBuilder("UTC", nil),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      zaptest.NewLogger(t),
		Clock:       h.clock.Now,
	})
	h.monitor = h.newMonitor(h.store.SLAHistory())
	return h
}

// newSLA builds an SLAService over the given ticket and audit stores.
func (h *harness) newSLA(tickets repository.TicketRepository, history repository.TicketHistoryRepository) *SLAService {
	return NewSLAService(SLADependencies{
		TicketRepo:  tickets,
		ConfigRepo:  h.store.SLAConfigs(),
		LedgerRepo:  h.store.SLAHistory(),
		HistoryRepo: history,
		Calendars:   calendar.NewBuilder("UTC", nil),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      zaptest.NewLogger(h.t),
		Clock:       h.clock.Now,
	})
}

func (h *harness) newMonitor(ledger repository.SLAHistoryRepository) *MonitorService {
	return NewMonitorService(MonitorDependencies{
		TicketRepo:           h.store.Tickets(),
		ConfigRepo:           h.store.SLAConfigs(),
		LedgerRepo:           ledger,
		HistoryRepo:          h.store.TicketHistory(),
		Calendars:            calendar.NewBuilder("UTC", nil),
		Sink:                 h.sink,
		EscalationRecipients: []string{"lead-1"},
		Logger:               zaptest.NewLogger(h.t),
		Clock:                h.clock.Now,
	})
}

// roundTheClock is a 24/7 configuration.
func (h *harness) roundTheClock(priority domain.TicketPriority) domain.SLAConfig {
	return h.store.PutConfig(domain.SLAConfig{
		Name:            "24x7 " + string(priority),
		Priority:        priority,
		ResponseHours:   2,
		ResolutionHours: 8,
		IsActive:        true,
		Timezone:        "UTC",
	})
}

// officeHours is a 09:00-17:00 weekday configuration.
func (h *harness) officeHours(priority domain.TicketPriority, timezone string) domain.SLAConfig {
	return h.store.PutConfig(domain.SLAConfig{
		Name:              "office " + timezone,
		Priority:          priority,
		ResponseHours:     1,
		ResolutionHours:   4,
		BusinessHoursOnly: true,
		BusinessStart:     domain.MustTimeOfDay("09:00"),
		BusinessEnd:       domain.MustTimeOfDay("17:00"),
		IsActive:          true,
		Timezone:          timezone,
	})
}

// open creates a ticket and starts SLA tracking for it.
func (h *harness) open(cfg domain.SLAConfig, priority domain.TicketPriority, created time.Time, assignee *string) string {
	h.t.Helper()
	ticket := &domain.Ticket{
		Title:       "VPN down",
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
		AssigneeID:  assignee,
		SLAConfigID: &cfg.ID,
		CreatedAt:   created,
	}
	require.NoError(h.t, h.store.Tickets().Create(h.ctx, ticket))
	_, err := h.sla.StartTracking(h.ctx, ticket.ID, events.SystemActor)
	require.NoError(h.t, err)
	return ticket.ID
}

func (h *harness) ticket(id string) domain.Ticket {
	h.t.Helper()
	ticket, err := h.store.Tickets().GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return *ticket
}

func (h *harness) entry(ticketID string, phase domain.SLAPhase) domain.SLAHistoryEntry {
	h.t.Helper()
	entries, err := h.store.SLAHistory().ListByTicket(h.ctx, ticketID)
	require.NoError(h.t, err)
	for _, entry := range entries {
		if entry.Phase == phase {
			return entry
		}
	}
	h.t.Fatalf("no %s entry for ticket %s", phase, ticketID)
	return domain.SLAHistoryEntry{}
}

func (h *harness) audits(ticketID string, changeType domain.TicketChangeType) int {
	h.t.Helper()
	history, err := h.store.TicketHistory().ListByTicket(h.ctx, ticketID)
	require.NoError(h.t, err)
	n := 0
	for _, entry := range history {
		if entry.ChangeType == changeType {
			n++
		}
	}
	return n
}

func (h *harness) sweep(tier Tier) SweepResult {
	h.t.Helper()
	result, err := h.monitor.Sweep(h.ctx, tier)
	require.NoError(h.t, err)
	return result
}

func strPtr(s string) *string { return &s }
