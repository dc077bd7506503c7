package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// TransitionRequest carries the optional reason for pause and resume.
type TransitionRequest struct {
	Reason string `json:"reason"`
}

// SLAPhaseResponse describes one ledger entry.
type SLAPhaseResponse struct {
	Phase               domain.SLAPhase    `json:"phase"`
	Status              domain.PhaseStatus `json:"status"`
	TargetTime          time.Time          `json:"target_time"`
	ActualTime          *time.Time         `json:"actual_time"`
	TimeToBreachMinutes *int               `json:"time_to_breach_minutes"`
}

// TicketSLAResponse is the SLA view of a ticket.
type TicketSLAResponse struct {
	TicketID    string                `json:"ticket_id"`
	ExternalKey string                `json:"external_key"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	SLAConfigID *string               `json:"sla_config_id"`
	SLAStatus   domain.SLAStatus      `json:"sla_status"`
	SLADeadline *time.Time            `json:"sla_deadline"`
	Phases      []SLAPhaseResponse    `json:"phases"`
}

// SweepResponse summarizes an on-demand sweep.
type SweepResponse struct {
	Tier       string `json:"tier"`
	Skipped    bool   `json:"skipped"`
	Scanned    int    `json:"scanned"`
	Breached   int    `json:"breached"`
	Warned     int    `json:"warned"`
	Suppressed int    `json:"suppressed"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
}
