package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
)

// Tier selects which tickets a sweep evaluates.
type Tier string

const (
	// TierAll scans every monitored ticket regardless of calendar.
	TierAll Tier = "ALL"
	// TierBusinessHours scans business-hours configurations while any of
	// them is open.
	TierBusinessHours Tier = "BUSINESS_HOURS"
	// TierCritical scans critical-priority tickets with the business-hours
	// gate of the evaluator bypassed.
	TierCritical Tier = "CRITICAL"
)

// Tiers lists every sweep tier.
var Tiers = []Tier{TierAll, TierBusinessHours, TierCritical}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Tier       Tier
	Skipped    bool
	Scanned    int
	Breached   int
	Warned     int
	Suppressed int
	Failed     int
	Duration   time.Duration
}

// MonitorService evaluates open tickets against their SLA targets and
// drives breach and warning transitions.
type MonitorService struct {
	tickets    repository.TicketRepository
	configs    repository.SLAConfigRepository
	ledger     repository.SLAHistoryRepository
	history    repository.TicketHistoryRepository
	calendars  *calendar.Builder
	evaluator  *sla.Evaluator
	dedup      *sla.DedupSet
	sink       sla.Sink
	escalation []string
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// MonitorDependencies bundles collaborators for MonitorService.
type MonitorDependencies struct {
	TicketRepo  repository.TicketRepository
	ConfigRepo  repository.SLAConfigRepository
	LedgerRepo  repository.SLAHistoryRepository
	HistoryRepo repository.TicketHistoryRepository
	Calendars   *calendar.Builder
	Evaluator   *sla.Evaluator
	Dedup       *sla.DedupSet
	Sink        sla.Sink
	// EscalationRecipients receive every breach and warnings on unassigned tickets.
	EscalationRecipients []string
	Metrics              *observability.Metrics
	Logger               *zap.Logger
	Clock                Clock
}

// NewMonitorService creates the service.
func NewMonitorService(deps MonitorDependencies) *MonitorService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = sla.NewEvaluator(sla.DefaultThresholdPolicy())
	}
	dedup := deps.Dedup
	if dedup == nil {
		dedup = sla.NewDedupSet()
	}
	return &MonitorService{
		tickets:    deps.TicketRepo,
		configs:    deps.ConfigRepo,
		ledger:     deps.LedgerRepo,
		history:    deps.HistoryRepo,
		calendars:  deps.Calendars,
		evaluator:  evaluator,
		dedup:      dedup,
		sink:       deps.Sink,
		escalation: deps.EscalationRecipients,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// Dedup exposes the deduplication set shared with the scheduler.
func (m *MonitorService) Dedup() *sla.DedupSet {
	return m.dedup
}

// Sweep evaluates one tier. Failures on a single ticket are counted and
// logged; only a failure to read the ticket set fails the sweep.
func (m *MonitorService) Sweep(ctx context.Context, tier Tier) (result SweepResult, err error) {
	started := time.Now()
	now := m.now()
	result.Tier = tier
	defer func() {
		result.Duration = time.Since(started)
		m.metrics.RecordSweep(string(tier), result.Duration, err)
		m.metrics.SetDedupEntries(m.dedup.Len())
	}()

	filter := repository.MonitorFilter{
		ExcludeSLAStatuses: []domain.SLAStatus{domain.SLAStatusMet, domain.SLAStatusPaused},
	}
	switch tier {
	case TierAll:
	case TierBusinessHours:
		businessOnly := true
		filter.BusinessHoursOnly = &businessOnly
	case TierCritical:
		filter.Priorities = []domain.TicketPriority{domain.CriticalPriority}
	default:
		err = fmt.Errorf("unknown sweep tier %q", tier)
		return result, err
	}

	if tier != TierAll {
		var open bool
		open, err = m.businessHoursOpen(ctx, now)
		if err != nil {
			return result, err
		}
		if !open {
			result.Skipped = true
			m.logger.Debug("sweep skipped; no business-hours configuration open", zap.String("tier", string(tier)))
			return result, nil
		}
	}

	var items []domain.MonitoredTicket
	items, err = m.tickets.ListMonitored(ctx, filter)
	if err != nil {
		err = fmt.Errorf("list monitored tickets: %w", err)
		m.logger.Error("sweep aborted", zap.String("tier", string(tier)), zap.Error(err))
		return result, err
	}

	calendars := make(map[string]*calendar.Calendar)
	broken := make(map[string]bool)
	for _, item := range items {
		result.Scanned++

		cal, ok := calendars[item.Config.ID]
		if !ok && !broken[item.Config.ID] {
			built, buildErr := m.calendars.Build(item.Config)
			if buildErr != nil {
				broken[item.Config.ID] = true
				m.logger.Error("sla configuration cannot be evaluated",
					zap.String("sla_config_id", item.Config.ID),
					zap.Error(buildErr))
			} else {
				cal = built
				calendars[item.Config.ID] = built
			}
		}
		if broken[item.Config.ID] {
			result.Failed++
			continue
		}

		if ticketErr := m.evaluateTicket(ctx, tier, now, item, cal, &result); ticketErr != nil {
			result.Failed++
			m.logger.Error("ticket evaluation failed",
				zap.String("tier", string(tier)),
				zap.String("ticket_id", item.Ticket.ID),
				zap.Error(ticketErr))
		}
	}

	m.logger.Info("sweep finished",
		zap.String("tier", string(tier)),
		zap.Int("scanned", result.Scanned),
		zap.Int("breached", result.Breached),
		zap.Int("warned", result.Warned),
		zap.Int("suppressed", result.Suppressed),
		zap.Int("failed", result.Failed))
	return result, nil
}

// ClearDedup starts a new deduplication window.
func (m *MonitorService) ClearDedup() int {
	n := m.dedup.Clear()
	m.metrics.SetDedupEntries(0)
	m.logger.Info("sla dedup window reset", zap.Int("cleared", n))
	return n
}

// businessHoursOpen reports whether any active business-hours configuration
// is currently within its hours.
func (m *MonitorService) businessHoursOpen(ctx context.Context, now time.Time) (bool, error) {
	configs, err := m.configs.ListActive(ctx)
	if err != nil {
		return false, fmt.Errorf("list active sla configs: %w", err)
	}
	for _, cfg := range configs {
		if !cfg.BusinessHoursOnly {
			continue
		}
		cal, err := m.calendars.Build(cfg)
		if err != nil {
			m.logger.Error("sla configuration cannot be evaluated",
				zap.String("sla_config_id", cfg.ID),
				zap.Error(err))
			continue
		}
		if cal.IsWithinBusinessHours(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MonitorService) evaluateTicket(ctx context.Context, tier Tier, now time.Time, item domain.MonitoredTicket, cal *calendar.Calendar, result *SweepResult) error {
	for _, entry := range item.Pending {
		decision := m.evaluator.Evaluate(sla.Input{
			Now:      now,
			Entry:    entry,
			Config:   item.Config,
			Priority: item.Ticket.Priority,
			Calendar: cal,
			Critical: tier == TierCritical,
		})
		switch decision.Action {
		case sla.ActionBreach:
			if err := m.breach(ctx, tier, now, item, entry, decision, result); err != nil {
				return err
			}
		case sla.ActionWarn:
			if err := m.warn(ctx, tier, now, item, entry, decision, result); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MonitorService) breach(ctx context.Context, tier Tier, now time.Time, item domain.MonitoredTicket, entry domain.SLAHistoryEntry, decision sla.Decision, result *SweepResult) error {
	minutes := sla.Minutes(decision.TimeToBreach)
	applied, err := m.ledger.MarkBreached(ctx, entry.ID, now, minutes)
	if err != nil {
		return fmt.Errorf("mark %s breached: %w", entry.Phase, err)
	}
	if !applied {
		return nil
	}
	result.Breached++
	m.metrics.RecordTransition(string(entry.Phase), string(domain.PhaseStatusBreached))

	if _, err := m.tickets.TransitionSLAStatus(ctx, item.Ticket.ID,
		[]domain.SLAStatus{domain.SLAStatusWithin, domain.SLAStatusWarning},
		domain.SLAStatusBreached); err != nil {
		return fmt.Errorf("set aggregate breached: %w", err)
	}
	m.audit(ctx, item.Ticket.ID, domain.ChangeTypeSLABreached, item.Ticket.SLAStatus, map[string]any{
		"phase":                  entry.Phase,
		"target_time":            entry.TargetTime,
		"time_to_breach_minutes": minutes,
		"tier":                   tier,
	}, now)

	m.logger.Warn("sla breached",
		zap.String("ticket_id", item.Ticket.ID),
		zap.String("phase", string(entry.Phase)),
		zap.Time("target_time", entry.TargetTime),
		zap.Int("time_to_breach_minutes", minutes))

	key := sla.DedupKey{TicketID: item.Ticket.ID, Phase: entry.Phase, Kind: sla.AlertKindBreach}
	if !m.dedup.TryMark(key) {
		result.Suppressed++
		m.metrics.RecordSuppressed(string(sla.AlertKindBreach))
		return nil
	}
	m.dispatch(ctx, key, sla.Alert{
		ID:           uuid.NewString(),
		Kind:         sla.AlertKindBreach,
		TicketID:     item.Ticket.ID,
		Phase:        entry.Phase,
		RecipientIDs: m.recipients(item.Ticket, sla.AlertKindBreach),
		Context: alertContext(item, entry, tier, map[string]any{
			"time_to_breach_minutes": minutes,
		}),
		CreatedAt: now,
	})
	return nil
}

func (m *MonitorService) warn(ctx context.Context, tier Tier, now time.Time, item domain.MonitoredTicket, entry domain.SLAHistoryEntry, decision sla.Decision, result *SweepResult) error {
	key := sla.DedupKey{TicketID: item.Ticket.ID, Phase: entry.Phase, Kind: sla.AlertKindWarning}
	if !m.dedup.TryMark(key) {
		result.Suppressed++
		m.metrics.RecordSuppressed(string(sla.AlertKindWarning))
		return nil
	}

	if _, err := m.tickets.TransitionSLAStatus(ctx, item.Ticket.ID,
		[]domain.SLAStatus{domain.SLAStatusWithin},
		domain.SLAStatusWarning); err != nil {
		m.dedup.Forget(key)
		return fmt.Errorf("set aggregate warning: %w", err)
	}
	result.Warned++

	remaining := sla.Minutes(decision.Remaining)
	m.audit(ctx, item.Ticket.ID, domain.ChangeTypeSLAWarning, item.Ticket.SLAStatus, map[string]any{
		"phase":             entry.Phase,
		"target_time":       entry.TargetTime,
		"remaining_minutes": remaining,
		"tier":              tier,
	}, now)

	m.dispatch(ctx, key, sla.Alert{
		ID:           uuid.NewString(),
		Kind:         sla.AlertKindWarning,
		TicketID:     item.Ticket.ID,
		Phase:        entry.Phase,
		RecipientIDs: m.recipients(item.Ticket, sla.AlertKindWarning),
		Context: alertContext(item, entry, tier, map[string]any{
			"remaining_minutes": remaining,
		}),
		CreatedAt: now,
	})
	return nil
}

// dispatch hands an alert to the sink. Transitions are already durable, so
// a failure is only logged. A rejected warning is forgotten so a later sweep
// can raise it again while the phase is still pending.
func (m *MonitorService) dispatch(ctx context.Context, key sla.DedupKey, alert sla.Alert) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Send(ctx, alert); err != nil {
		m.metrics.RecordNotificationFailure()
		if alert.Kind == sla.AlertKindWarning {
			m.dedup.Forget(key)
		}
		m.logger.Error("sla alert dispatch failed",
			zap.String("ticket_id", alert.TicketID),
			zap.String("phase", string(alert.Phase)),
			zap.String("kind", string(alert.Kind)),
			zap.Error(err))
		return
	}
	m.metrics.RecordAlert(string(alert.Kind))
}

func (m *MonitorService) recipients(ticket domain.Ticket, kind sla.AlertKind) []string {
	var recipients []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}
	if ticket.AssigneeID != nil {
		add(*ticket.AssigneeID)
	}
	if kind == sla.AlertKindBreach || ticket.AssigneeID == nil {
		for _, id := range m.escalation {
			add(id)
		}
	}
	return recipients
}

func (m *MonitorService) audit(ctx context.Context, ticketID string, changeType domain.TicketChangeType, previous domain.SLAStatus, newValue map[string]any, at time.Time) {
	if m.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: domain.ActorTypeSystem,
		ChangeType:    changeType,
		OldValue:      map[string]any{"sla_status": previous},
		NewValue:      newValue,
		CreatedAt:     at,
	}
	if err := m.history.Create(ctx, entry); err != nil {
		m.logger.Error("failed to record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(changeType)),
			zap.Error(err))
	}
}

func alertContext(item domain.MonitoredTicket, entry domain.SLAHistoryEntry, tier Tier, extra map[string]any) map[string]any {
	payload := map[string]any{
		"ticket_title":  item.Ticket.Title,
		"external_key":  item.Ticket.ExternalKey,
		"priority":      item.Ticket.Priority,
		"sla_config_id": item.Config.ID,
		"target_time":   entry.TargetTime,
		"tier":          tier,
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}
