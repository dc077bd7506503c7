// Package sla holds the SLA engine: deadline targets, the per-phase
// evaluator, warning thresholds and alert deduplication.
package sla

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// AlertKind distinguishes warnings from breaches.
type AlertKind string

const (
	AlertKindWarning AlertKind = "WARNING"
	AlertKindBreach  AlertKind = "BREACH"
)

// Alert is a fully formed notification handed to a Sink.
type Alert struct {
	ID           string
	Kind         AlertKind
	TicketID     string
	Phase        domain.SLAPhase
	RecipientIDs []string
	Context      map[string]any
	CreatedAt    time.Time
}

// Sink receives alerts. Delivery channels live behind it.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}
