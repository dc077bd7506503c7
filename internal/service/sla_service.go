package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// Clock returns the current instant. Tests substitute a fixed clock.
type Clock func() time.Time

// TicketSLA is a ticket together with its SLA ledger.
type TicketSLA struct {
	Ticket  domain.Ticket
	Entries []domain.SLAHistoryEntry
}

// SLAService owns the per-ticket SLA lifecycle: starting tracking, recording
// phase completion and pausing or resuming the clock.
type SLAService struct {
	tickets    repository.TicketRepository
	configs    repository.SLAConfigRepository
	ledger     repository.SLAHistoryRepository
	history    repository.TicketHistoryRepository
	calendars  *calendar.Builder
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock

	locks sync.Map
}

// SLADependencies bundles collaborators for SLAService.
type SLADependencies struct {
	TicketRepo  repository.TicketRepository
	ConfigRepo  repository.SLAConfigRepository
	LedgerRepo  repository.SLAHistoryRepository
	HistoryRepo repository.TicketHistoryRepository
	Calendars   *calendar.Builder
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       Clock
}

// NewSLAService creates the service.
func NewSLAService(deps SLADependencies) *SLAService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SLAService{
		tickets:    deps.TicketRepo,
		configs:    deps.ConfigRepo,
		ledger:     deps.LedgerRepo,
		history:    deps.HistoryRepo,
		calendars:  deps.Calendars,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// Get returns the ticket and its ledger.
func (s *SLAService) Get(ctx context.Context, ticketID string) (*TicketSLA, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, ticket)
}

// StartTracking computes the phase targets for a ticket and opens a pending
// ledger entry for every phase that has none yet. Calling it again is a no-op.
func (s *SLAService) StartTracking(ctx context.Context, ticketID string, actor events.Actor) (*TicketSLA, error) {
	unlock := s.lock(ticketID)
	defer unlock()

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.SLAConfigID == nil {
		return nil, apperrors.NewValidationError("ticket has no sla configuration", map[string]any{"ticket_id": ticketID})
	}
	cfg, err := s.configs.GetByID(ctx, *ticket.SLAConfigID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("sla configuration", map[string]any{"sla_config_id": *ticket.SLAConfigID})
		}
		return nil, fmt.Errorf("load sla config: %w", err)
	}
	if !cfg.IsActive {
		return nil, apperrors.NewConflict("sla configuration inactive", map[string]any{"sla_config_id": cfg.ID})
	}
	cal, err := s.calendars.Build(*cfg)
	if err != nil {
		return nil, apperrors.NewMisconfigured(err)
	}

	existing, err := s.ledger.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list sla ledger: %w", err)
	}
	tracked := make(map[domain.SLAPhase]bool, len(existing))
	for _, entry := range existing {
		tracked[entry.Phase] = true
	}

	targets := sla.ComputeTargets(*ticket, cal)
	created := 0
	for _, phase := range domain.AllPhases {
		if tracked[phase] {
			continue
		}
		entry := &domain.SLAHistoryEntry{
			TicketID:   ticketID,
			Phase:      phase,
			TargetTime: targets[phase],
			Status:     domain.PhaseStatusPending,
		}
		if err := s.ledger.Create(ctx, entry); err != nil {
			return nil, fmt.Errorf("create %s ledger entry: %w", phase, err)
		}
		s.metrics.RecordTransition(string(phase), string(domain.PhaseStatusPending))
		created++
	}
	if created == 0 {
		return s.view(ctx, ticket)
	}

	deadline := targets[domain.SLAPhaseResolution]
	if err := s.tickets.UpdateSLAState(ctx, ticketID, domain.SLAStatusWithin, &deadline); err != nil {
		return nil, fmt.Errorf("update sla state: %w", err)
	}

	now := s.now()
	s.audit(ctx, ticketID, actor, domain.ChangeTypeSLAStarted, nil, map[string]any{
		"sla_config_id":     cfg.ID,
		"response_target":   targets[domain.SLAPhaseResponse],
		"resolution_target": targets[domain.SLAPhaseResolution],
	}, now)
	s.publish(ctx, events.NewEvent(events.EventSLAStarted, ticketID, actor, now, events.SLAStartedPayload{
		ConfigID: cfg.ID,
		Targets:  targets,
		Priority: ticket.Priority,
	}))
	s.logger.Info("sla tracking started",
		zap.String("ticket_id", ticketID),
		zap.String("sla_config_id", cfg.ID),
		zap.Time("resolution_target", deadline))

	return s.Get(ctx, ticketID)
}

// MarkPhaseMet records real-world completion of a phase. A pending phase
// becomes met; a breached phase stays breached and only has its completion
// time stamped. Once no phase is pending the aggregate status settles on
// BREACHED or MET. Repeated calls leave the state unchanged.
func (s *SLAService) MarkPhaseMet(ctx context.Context, ticketID string, phase domain.SLAPhase, actor events.Actor) (*TicketSLA, error) {
	if !phase.Valid() {
		return nil, apperrors.NewValidationError("unknown sla phase", map[string]any{"phase": phase})
	}
	unlock := s.lock(ticketID)
	defer unlock()

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	met, err := s.ledger.MarkMet(ctx, ticketID, phase, now)
	if err != nil {
		return nil, fmt.Errorf("mark %s met: %w", phase, err)
	}
	stamped := false
	if !met {
		if stamped, err = s.ledger.StampCompletion(ctx, ticketID, phase, now); err != nil {
			return nil, fmt.Errorf("stamp %s completion: %w", phase, err)
		}
	}

	entries, err := s.ledger.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list sla ledger: %w", err)
	}
	var phaseStatus domain.PhaseStatus
	for _, entry := range entries {
		if entry.Phase == phase {
			phaseStatus = entry.Status
		}
	}
	if phaseStatus == "" {
		return nil, apperrors.NewNotFound("sla phase", map[string]any{"ticket_id": ticketID, "phase": phase})
	}

	aggregate, settled := settledStatus(entries)
	if settled && ticket.SLAStatus != aggregate {
		if err := s.tickets.UpdateSLAState(ctx, ticketID, aggregate, ticket.SLADeadline); err != nil {
			return nil, fmt.Errorf("update sla state: %w", err)
		}
	}
	if !settled {
		aggregate = ticket.SLAStatus
	}

	if met || stamped {
		if met {
			s.metrics.RecordTransition(string(phase), string(domain.PhaseStatusMet))
		}
		s.audit(ctx, ticketID, actor, domain.ChangeTypeSLAPhaseMet,
			map[string]any{"sla_status": ticket.SLAStatus},
			map[string]any{"phase": phase, "phase_status": phaseStatus, "sla_status": aggregate, "actual_time": now},
			now)
		s.publish(ctx, events.NewEvent(events.EventSLAPhaseMet, ticketID, actor, now, events.SLAPhaseMetPayload{
			Phase:     phase,
			Status:    phaseStatus,
			Aggregate: aggregate,
			At:        now,
		}))
	}

	return s.Get(ctx, ticketID)
}

// Pause stops the SLA clock. Targets stay as they are until Resume shifts
// them. Pausing a paused ticket is a no-op.
func (s *SLAService) Pause(ctx context.Context, ticketID string, actor events.Actor, reason string) (*TicketSLA, error) {
	unlock := s.lock(ticketID)
	defer unlock()

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	switch ticket.SLAStatus {
	case domain.SLAStatusPaused:
		return s.view(ctx, ticket)
	case domain.SLAStatusMet:
		return nil, apperrors.NewConflict("sla already met", map[string]any{"ticket_id": ticketID})
	}

	now := s.now()
	applied, err := s.tickets.TransitionSLAStatus(ctx, ticketID,
		[]domain.SLAStatus{domain.SLAStatusWithin, domain.SLAStatusWarning, domain.SLAStatusBreached},
		domain.SLAStatusPaused)
	if err != nil {
		return nil, fmt.Errorf("pause sla: %w", err)
	}
	if !applied {
		return nil, apperrors.NewConflict("sla status changed concurrently", map[string]any{"ticket_id": ticketID})
	}

	// Resume measures the pause from this record; without it the ticket
	// could never resume, so the status flip is undone.
	record := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actor.Type,
		ChangedByID:   actor.ID,
		ChangeType:    domain.ChangeTypeSLAPaused,
		OldValue:      map[string]any{"sla_status": ticket.SLAStatus},
		NewValue:      map[string]any{"sla_status": domain.SLAStatusPaused, "paused_at": now, "reason": reason},
		CreatedAt:     now,
	}
	if err := s.history.Create(ctx, record); err != nil {
		if _, revertErr := s.tickets.TransitionSLAStatus(ctx, ticketID,
			[]domain.SLAStatus{domain.SLAStatusPaused}, ticket.SLAStatus); revertErr != nil {
			s.logger.Error("revert pause failed", zap.String("ticket_id", ticketID), zap.Error(revertErr))
		}
		return nil, fmt.Errorf("record pause: %w", err)
	}

	s.publish(ctx, events.NewEvent(events.EventSLAPaused, ticketID, actor, now, events.SLAPausedPayload{
		Reason:   reason,
		PausedAt: now,
	}))
	s.logger.Info("sla paused", zap.String("ticket_id", ticketID), zap.String("reason", reason))

	return s.Get(ctx, ticketID)
}

// Resume restarts the SLA clock. Every pending target moves forward by the
// wall-clock time spent paused. Without a recorded pause it does nothing.
func (s *SLAService) Resume(ctx context.Context, ticketID string, actor events.Actor, reason string) (*TicketSLA, error) {
	unlock := s.lock(ticketID)
	defer unlock()

	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.SLAStatus != domain.SLAStatusPaused {
		s.logger.Info("resume ignored; sla not paused",
			zap.String("ticket_id", ticketID),
			zap.String("sla_status", string(ticket.SLAStatus)))
		return s.view(ctx, ticket)
	}

	pause, err := s.history.LatestByType(ctx, ticketID, domain.ChangeTypeSLAPaused)
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Warn("resume ignored; no pause recorded", zap.String("ticket_id", ticketID))
		return s.view(ctx, ticket)
	}
	if err != nil {
		return nil, fmt.Errorf("load pause record: %w", err)
	}

	now := s.now()
	pausedFor := now.Sub(pause.CreatedAt)
	if pausedFor < 0 {
		pausedFor = 0
	}

	shifted, err := s.ledger.ShiftPendingTargets(ctx, ticketID, pausedFor)
	if err != nil {
		return nil, fmt.Errorf("shift pending targets: %w", err)
	}

	entries, err := s.ledger.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list sla ledger: %w", err)
	}
	status := domain.SLAStatusWithin
	deadline := ticket.SLADeadline
	for _, entry := range entries {
		if entry.Status == domain.PhaseStatusBreached {
			status = domain.SLAStatusBreached
		}
		if entry.Phase == domain.SLAPhaseResolution && entry.Status == domain.PhaseStatusPending {
			target := entry.TargetTime
			deadline = &target
		}
	}
	if err := s.tickets.UpdateSLAState(ctx, ticketID, status, deadline); err != nil {
		return nil, fmt.Errorf("update sla state: %w", err)
	}

	s.audit(ctx, ticketID, actor, domain.ChangeTypeSLAResumed,
		map[string]any{"sla_status": domain.SLAStatusPaused, "paused_at": pause.CreatedAt},
		map[string]any{"sla_status": status, "paused_seconds": int64(pausedFor.Seconds()), "shifted_phases": shifted, "reason": reason},
		now)
	s.publish(ctx, events.NewEvent(events.EventSLAResumed, ticketID, actor, now, events.SLAResumedPayload{
		Reason:        reason,
		PausedFor:     pausedFor,
		ShiftedPhases: shifted,
	}))
	s.logger.Info("sla resumed",
		zap.String("ticket_id", ticketID),
		zap.Duration("paused_for", pausedFor),
		zap.Int64("shifted_phases", shifted))

	return s.Get(ctx, ticketID)
}

// settledStatus reports the final aggregate once no phase is pending.
func settledStatus(entries []domain.SLAHistoryEntry) (domain.SLAStatus, bool) {
	if len(entries) == 0 {
		return "", false
	}
	breached := false
	for _, entry := range entries {
		switch entry.Status {
		case domain.PhaseStatusPending:
			return "", false
		case domain.PhaseStatusBreached:
			breached = true
		}
	}
	if breached {
		return domain.SLAStatusBreached, true
	}
	return domain.SLAStatusMet, true
}

func (s *SLAService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	return ticket, nil
}

func (s *SLAService) view(ctx context.Context, ticket *domain.Ticket) (*TicketSLA, error) {
	entries, err := s.ledger.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("list sla ledger: %w", err)
	}
	return &TicketSLA{Ticket: *ticket, Entries: entries}, nil
}

// lock serializes lifecycle operations on one ticket within this process.
func (s *SLAService) lock(ticketID string) func() {
	value, _ := s.locks.LoadOrStore(ticketID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *SLAService) audit(ctx context.Context, ticketID string, actor events.Actor, changeType domain.TicketChangeType, oldValue, newValue map[string]any, at time.Time) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actor.Type,
		ChangedByID:   actor.ID,
		ChangeType:    changeType,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     at,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(changeType)),
			zap.Error(err))
	}
}

func (s *SLAService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
