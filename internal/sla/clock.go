package sla

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// Targets maps each phase to its deadline.
type Targets map[domain.SLAPhase]time.Time

// ComputeTargets derives one deadline per phase, all measured from ticket
// creation. A ticket deadline override replaces the resolution target.
func ComputeTargets(ticket domain.Ticket, cal *calendar.Calendar) Targets {
	cfg := cal.Config()
	targets := make(Targets, len(domain.AllPhases))
	for _, phase := range domain.AllPhases {
		targets[phase] = cal.AddBusinessDuration(ticket.CreatedAt, cfg.DurationFor(phase))
	}
	if ticket.DeadlineOverride != nil {
		targets[domain.SLAPhaseResolution] = *ticket.DeadlineOverride
	}
	return targets
}
