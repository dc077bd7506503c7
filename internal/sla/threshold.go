package sla

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// ThresholdPolicy decides how close to a target a warning fires.
//
// Business-hours configurations use fixed windows because remaining calendar
// time is non-linear around closing time and weekends. Round-the-clock
// configurations scale by priority.
type ThresholdPolicy struct {
	BusinessHours    map[domain.SLAPhase]time.Duration
	ByPriority       map[domain.TicketPriority]time.Duration
	ResolutionFactor int
	Fallback         time.Duration
}

// DefaultThresholdPolicy returns the built-in warning windows.
// TODO: allow SLAConfig rows to override these per configuration.
func DefaultThresholdPolicy() ThresholdPolicy {
	return ThresholdPolicy{
		BusinessHours: map[domain.SLAPhase]time.Duration{
			domain.SLAPhaseResponse:   time.Hour,
			domain.SLAPhaseResolution: 2 * time.Hour,
		},
		ByPriority: map[domain.TicketPriority]time.Duration{
			domain.TicketPriorityUrgent: 15 * time.Minute,
			domain.TicketPriorityHigh:   30 * time.Minute,
			domain.TicketPriorityMedium: time.Hour,
			domain.TicketPriorityLow:    2 * time.Hour,
		},
		ResolutionFactor: 2,
		Fallback:         time.Hour,
	}
}

// For returns the warning window for a phase under cfg.
func (p ThresholdPolicy) For(cfg domain.SLAConfig, priority domain.TicketPriority, phase domain.SLAPhase) time.Duration {
	if cfg.BusinessHoursOnly {
		if d, ok := p.BusinessHours[phase]; ok {
			return d
		}
		return p.Fallback
	}

	if priority == "" {
		priority = cfg.Priority
	}
	d, ok := p.ByPriority[priority]
	if !ok {
		d = p.Fallback
	}
	if phase == domain.SLAPhaseResolution && p.ResolutionFactor > 1 {
		d *= time.Duration(p.ResolutionFactor)
	}
	return d
}
