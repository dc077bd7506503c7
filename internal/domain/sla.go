package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrCalendarMisconfigured marks an SLA configuration whose business calendar cannot be evaluated.
var ErrCalendarMisconfigured = errors.New("sla calendar misconfigured")

// SLAStatus is the aggregate SLA state stored on a ticket.
type SLAStatus string

const (
	SLAStatusWithin   SLAStatus = "WITHIN"
	SLAStatusWarning  SLAStatus = "WARNING"
	SLAStatusBreached SLAStatus = "BREACHED"
	SLAStatusPaused   SLAStatus = "PAUSED"
	SLAStatusMet      SLAStatus = "MET"
)

// SLAPhase names a tracked SLA obligation.
type SLAPhase string

const (
	SLAPhaseResponse   SLAPhase = "RESPONSE"
	SLAPhaseResolution SLAPhase = "RESOLUTION"
)

// AllPhases lists every phase tracked per ticket, in evaluation order.
var AllPhases = []SLAPhase{SLAPhaseResponse, SLAPhaseResolution}

// Valid reports whether p is a tracked phase.
func (p SLAPhase) Valid() bool {
	for _, candidate := range AllPhases {
		if p == candidate {
			return true
		}
	}
	return false
}

// PhaseStatus is the ledger state of a single phase.
type PhaseStatus string

const (
	PhaseStatusPending  PhaseStatus = "PENDING"
	PhaseStatusMet      PhaseStatus = "MET"
	PhaseStatusBreached PhaseStatus = "BREACHED"
)

// IsTerminal reports whether no further transition is allowed.
func (s PhaseStatus) IsTerminal() bool {
	return s == PhaseStatusMet || s == PhaseStatusBreached
}

// SLAConfig is the per-priority SLA policy. It is read-only to the monitor.
type SLAConfig struct {
	ID                string
	Name              string
	Priority          TicketPriority
	ResponseHours     int
	ResolutionHours   int
	BusinessHoursOnly bool
	BusinessStart     TimeOfDay
	BusinessEnd       TimeOfDay
	IncludeWeekends   bool
	IsActive          bool
	Timezone          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks the invariants required to evaluate the configuration.
func (c SLAConfig) Validate() error {
	if c.ResponseHours < 0 || c.ResolutionHours < 0 {
		return fmt.Errorf("%w: config %s has negative duration", ErrCalendarMisconfigured, c.ID)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: config %s: %v", ErrCalendarMisconfigured, c.ID, err)
	}
	if !c.BusinessHoursOnly {
		return nil
	}
	if !c.BusinessStart.Valid() || !c.BusinessEnd.Valid() {
		return fmt.Errorf("%w: config %s has invalid business hours", ErrCalendarMisconfigured, c.ID)
	}
	if !c.BusinessStart.Before(c.BusinessEnd) {
		return fmt.Errorf("%w: config %s business start %s not before end %s",
			ErrCalendarMisconfigured, c.ID, c.BusinessStart, c.BusinessEnd)
	}
	return nil
}

// Location resolves the configured timezone, defaulting to UTC.
func (c SLAConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// DurationFor returns the raw target duration for a phase.
func (c SLAConfig) DurationFor(phase SLAPhase) time.Duration {
	switch phase {
	case SLAPhaseResponse:
		return time.Duration(c.ResponseHours) * time.Hour
	case SLAPhaseResolution:
		return time.Duration(c.ResolutionHours) * time.Hour
	}
	return 0
}

// SLAHistoryEntry is the ledger row for one (ticket, phase) pair.
type SLAHistoryEntry struct {
	ID                  string
	TicketID            string
	Phase               SLAPhase
	TargetTime          time.Time
	Status              PhaseStatus
	TimeToBreachMinutes *int
	ActualTime          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MonitoredTicket bundles what one sweep needs to evaluate a ticket.
type MonitoredTicket struct {
	Ticket  Ticket
	Config  SLAConfig
	Pending []SLAHistoryEntry
}
