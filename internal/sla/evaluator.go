package sla

import (
	"math"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/calendar"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// Action is the evaluator's verdict for one pending phase.
type Action int

const (
	ActionNone Action = iota
	ActionWarn
	ActionBreach
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "warn"
	case ActionBreach:
		return "breach"
	}
	return "none"
}

// Input is everything the evaluator looks at for one (ticket, phase).
type Input struct {
	Now      time.Time
	Entry    domain.SLAHistoryEntry
	Config   domain.SLAConfig
	Priority domain.TicketPriority
	Calendar *calendar.Calendar
	// Critical bypasses the business-hours gate.
	Critical bool
}

// Decision describes what should happen to a phase.
type Decision struct {
	Action       Action
	OutsideHours bool
	TimeToBreach time.Duration
	Remaining    time.Duration
	Threshold    time.Duration
}

// Evaluator turns ledger state and the current instant into decisions.
type Evaluator struct {
	thresholds ThresholdPolicy
}

// NewEvaluator builds an evaluator with the given thresholds.
func NewEvaluator(thresholds ThresholdPolicy) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate applies the breach, warning and business-hours rules. Only
// pending phases ever produce an action.
func (e *Evaluator) Evaluate(in Input) Decision {
	if in.Entry.Status != domain.PhaseStatusPending {
		return Decision{Action: ActionNone}
	}

	if in.Config.BusinessHoursOnly && !in.Critical {
		if in.Calendar == nil || !in.Calendar.IsWithinBusinessHours(in.Now) {
			return Decision{Action: ActionNone, OutsideHours: true}
		}
	}

	if !in.Now.Before(in.Entry.TargetTime) {
		return Decision{Action: ActionBreach, TimeToBreach: in.Now.Sub(in.Entry.TargetTime)}
	}

	remaining := in.Entry.TargetTime.Sub(in.Now)
	threshold := e.thresholds.For(in.Config, in.Priority, in.Entry.Phase)
	decision := Decision{Action: ActionNone, Remaining: remaining, Threshold: threshold}
	if remaining <= threshold {
		decision.Action = ActionWarn
	}
	return decision
}

// Minutes rounds d to whole signed minutes for the ledger.
func Minutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
