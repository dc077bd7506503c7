package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSLAStarted  EventType = "sla_started"
	EventSLAPhaseMet EventType = "sla_phase_met"
	EventSLAPaused   EventType = "sla_paused"
	EventSLAResumed  EventType = "sla_resumed"
	EventSLAWarning  EventType = "sla_warning"
	EventSLABreached EventType = "sla_breached"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type domain.ActorType `json:"type"`
	ID   *string          `json:"id,omitempty"`
}

// SystemActor is the actor recorded for monitor-driven transitions.
var SystemActor = Actor{Type: domain.ActorTypeSystem}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps a fresh identifier on an event.
func NewEvent(eventType EventType, ticketID string, actor Actor, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// SLAStartedPayload payload.
type SLAStartedPayload struct {
	ConfigID string                        `json:"config_id"`
	Targets  map[domain.SLAPhase]time.Time `json:"targets"`
	Priority domain.TicketPriority         `json:"priority"`
}

// SLAPhaseMetPayload payload.
type SLAPhaseMetPayload struct {
	Phase     domain.SLAPhase    `json:"phase"`
	Status    domain.PhaseStatus `json:"status"`
	Aggregate domain.SLAStatus   `json:"aggregate"`
	At        time.Time          `json:"at"`
}

// SLAPausedPayload payload.
type SLAPausedPayload struct {
	Reason   string    `json:"reason,omitempty"`
	PausedAt time.Time `json:"paused_at"`
}

// SLAResumedPayload payload.
type SLAResumedPayload struct {
	Reason        string        `json:"reason,omitempty"`
	PausedFor     time.Duration `json:"paused_for"`
	ShiftedPhases int64         `json:"shifted_phases"`
}

// SLAAlertPayload is carried by warning and breach events.
type SLAAlertPayload struct {
	AlertID      string          `json:"alert_id"`
	Phase        domain.SLAPhase `json:"phase"`
	RecipientIDs []string        `json:"recipient_ids"`
	Context      map[string]any  `json:"context,omitempty"`
}
