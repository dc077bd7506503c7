package domain

import "time"

// ActorType indicates who caused a history entry.
type ActorType string

const (
	ActorTypeUser    ActorType = "USER"
	ActorTypeStaff   ActorType = "STAFF"
	ActorTypeSystem  ActorType = "SYSTEM"
	ActorTypeService ActorType = "SERVICE"
)

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus      TicketChangeType = "STATUS_CHANGE"
	ChangeTypeSLAStarted  TicketChangeType = "SLA_STARTED"
	ChangeTypeSLAPaused   TicketChangeType = "SLA_PAUSED"
	ChangeTypeSLAResumed  TicketChangeType = "SLA_RESUMED"
	ChangeTypeSLAWarning  TicketChangeType = "SLA_WARNING"
	ChangeTypeSLABreached TicketChangeType = "SLA_BREACHED"
	ChangeTypeSLAPhaseMet TicketChangeType = "SLA_PHASE_MET"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
