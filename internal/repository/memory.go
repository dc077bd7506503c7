package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// MemoryStore keeps tickets, configurations, the SLA ledger and audit entries
// in process memory. It backs the service when no database is configured and
// is used by tests. Missing rows are reported as pgx.ErrNoRows like the
// postgres repositories.
type MemoryStore struct {
	mu          sync.RWMutex
	configs     map[string]domain.SLAConfig
	tickets     map[string]domain.Ticket
	ticketOrder []string
	ledger      map[string]domain.SLAHistoryEntry
	ledgerOrder []string
	history     []domain.TicketHistory
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: make(map[string]domain.SLAConfig),
		tickets: make(map[string]domain.Ticket),
		ledger:  make(map[string]domain.SLAHistoryEntry),
	}
}

// Tickets returns the ticket repository view.
func (m *MemoryStore) Tickets() TicketRepository { return memoryTickets{m} }

// SLAConfigs returns the configuration repository view.
func (m *MemoryStore) SLAConfigs() SLAConfigRepository { return memoryConfigs{m} }

// SLAHistory returns the ledger repository view.
func (m *MemoryStore) SLAHistory() SLAHistoryRepository { return memoryLedger{m} }

// TicketHistory returns the audit repository view.
func (m *MemoryStore) TicketHistory() TicketHistoryRepository { return memoryAudit{m} }

// PutConfig inserts or replaces a configuration, assigning an ID when empty.
func (m *MemoryStore) PutConfig(cfg domain.SLAConfig) domain.SLAConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	m.configs[cfg.ID] = cfg
	return cfg
}

type memoryTickets struct{ m *MemoryStore }

func (r memoryTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if ticket.SLAStatus == "" {
		ticket.SLAStatus = domain.SLAStatusWithin
	}
	if _, exists := r.m.tickets[ticket.ID]; !exists {
		r.m.ticketOrder = append(r.m.ticketOrder, ticket.ID)
	}
	r.m.tickets[ticket.ID] = *ticket
	return nil
}

func (r memoryTickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	ticket, ok := r.m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (r memoryTickets) ListMonitored(ctx context.Context, filter MonitorFilter) ([]domain.MonitoredTicket, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var result []domain.MonitoredTicket
	for _, id := range r.m.ticketOrder {
		ticket := r.m.tickets[id]
		if !ticket.IsOpen() || ticket.SLAConfigID == nil {
			continue
		}
		cfg, ok := r.m.configs[*ticket.SLAConfigID]
		if !ok || !cfg.IsActive {
			continue
		}
		if filter.BusinessHoursOnly != nil && cfg.BusinessHoursOnly != *filter.BusinessHoursOnly {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
			continue
		}
		if containsSLAStatus(filter.ExcludeSLAStatuses, ticket.SLAStatus) {
			continue
		}
		pending := r.m.pendingLocked(ticket.ID)
		if len(pending) == 0 {
			continue
		}
		result = append(result, domain.MonitoredTicket{Ticket: ticket, Config: cfg, Pending: pending})
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (r memoryTickets) UpdateSLAState(ctx context.Context, id string, status domain.SLAStatus, deadline *time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ticket, ok := r.m.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.SLAStatus = status
	ticket.SLADeadline = deadline
	ticket.UpdatedAt = time.Now()
	r.m.tickets[id] = ticket
	return nil
}

func (r memoryTickets) TransitionSLAStatus(ctx context.Context, id string, from []domain.SLAStatus, to domain.SLAStatus) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ticket, ok := r.m.tickets[id]
	if !ok || !containsSLAStatus(from, ticket.SLAStatus) {
		return false, nil
	}
	ticket.SLAStatus = to
	ticket.UpdatedAt = time.Now()
	r.m.tickets[id] = ticket
	return true, nil
}

type memoryConfigs struct{ m *MemoryStore }

func (r memoryConfigs) ListActive(ctx context.Context) ([]domain.SLAConfig, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []domain.SLAConfig
	for _, cfg := range r.m.configs {
		if cfg.IsActive {
			result = append(result, cfg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r memoryConfigs) GetByID(ctx context.Context, id string) (*domain.SLAConfig, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	cfg, ok := r.m.configs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &cfg, nil
}

type memoryLedger struct{ m *MemoryStore }

func (r memoryLedger) Create(ctx context.Context, entry *domain.SLAHistoryEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = domain.PhaseStatusPending
	}
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	r.m.ledger[entry.ID] = *entry
	r.m.ledgerOrder = append(r.m.ledgerOrder, entry.ID)
	return nil
}

func (r memoryLedger) ListByTicket(ctx context.Context, ticketID string) ([]domain.SLAHistoryEntry, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []domain.SLAHistoryEntry
	for _, id := range r.m.ledgerOrder {
		if entry := r.m.ledger[id]; entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r memoryLedger) MarkBreached(ctx context.Context, entryID string, at time.Time, timeToBreachMinutes int) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	entry, ok := r.m.ledger[entryID]
	if !ok || entry.Status != domain.PhaseStatusPending || entry.TargetTime.After(at) {
		return false, nil
	}
	if ticket, ok := r.m.tickets[entry.TicketID]; ok && ticket.SLAStatus == domain.SLAStatusPaused {
		return false, nil
	}
	minutes := timeToBreachMinutes
	entry.Status = domain.PhaseStatusBreached
	entry.TimeToBreachMinutes = &minutes
	entry.UpdatedAt = at
	r.m.ledger[entryID] = entry
	return true, nil
}

func (r memoryLedger) MarkMet(ctx context.Context, ticketID string, phase domain.SLAPhase, at time.Time) (bool, error) {
	return r.update(ticketID, phase, func(entry *domain.SLAHistoryEntry) bool {
		if entry.Status != domain.PhaseStatusPending {
			return false
		}
		stamp := at
		entry.Status = domain.PhaseStatusMet
		entry.ActualTime = &stamp
		entry.UpdatedAt = at
		return true
	})
}

func (r memoryLedger) StampCompletion(ctx context.Context, ticketID string, phase domain.SLAPhase, at time.Time) (bool, error) {
	return r.update(ticketID, phase, func(entry *domain.SLAHistoryEntry) bool {
		if entry.Status != domain.PhaseStatusBreached || entry.ActualTime != nil {
			return false
		}
		stamp := at
		entry.ActualTime = &stamp
		entry.UpdatedAt = at
		return true
	})
}

func (r memoryLedger) ShiftPendingTargets(ctx context.Context, ticketID string, by time.Duration) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var shifted int64
	for id, entry := range r.m.ledger {
		if entry.TicketID != ticketID || entry.Status != domain.PhaseStatusPending {
			continue
		}
		entry.TargetTime = entry.TargetTime.Add(by)
		entry.UpdatedAt = time.Now()
		r.m.ledger[id] = entry
		shifted++
	}
	return shifted, nil
}

func (r memoryLedger) update(ticketID string, phase domain.SLAPhase, apply func(*domain.SLAHistoryEntry) bool) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	applied := false
	for id, entry := range r.m.ledger {
		if entry.TicketID != ticketID || entry.Phase != phase {
			continue
		}
		if apply(&entry) {
			r.m.ledger[id] = entry
			applied = true
		}
	}
	return applied, nil
}

type memoryAudit struct{ m *MemoryStore }

func (r memoryAudit) Create(ctx context.Context, history *domain.TicketHistory) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now()
	}
	r.m.history = append(r.m.history, *history)
	return nil
}

func (r memoryAudit) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []domain.TicketHistory
	for _, h := range r.m.history {
		if h.TicketID == ticketID {
			result = append(result, h)
		}
	}
	return result, nil
}

func (r memoryAudit) LatestByType(ctx context.Context, ticketID string, changeType domain.TicketChangeType) (*domain.TicketHistory, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for i := len(r.m.history) - 1; i >= 0; i-- {
		h := r.m.history[i]
		if h.TicketID == ticketID && h.ChangeType == changeType {
			return &h, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MemoryStore) pendingLocked(ticketID string) []domain.SLAHistoryEntry {
	var pending []domain.SLAHistoryEntry
	for _, id := range m.ledgerOrder {
		entry := m.ledger[id]
		if entry.TicketID == ticketID && entry.Status == domain.PhaseStatusPending {
			pending = append(pending, entry)
		}
	}
	return pending
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, candidate := range list {
		if candidate == p {
			return true
		}
	}
	return false
}

func containsSLAStatus(list []domain.SLAStatus, s domain.SLAStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}
