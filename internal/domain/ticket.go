package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "OPEN"
	TicketStatusInProgress  TicketStatus = "IN_PROGRESS"
	TicketStatusPendingUser TicketStatus = "PENDING_USER"
	TicketStatusResolved    TicketStatus = "RESOLVED"
	TicketStatusClosed      TicketStatus = "CLOSED"
	TicketStatusCancelled   TicketStatus = "CANCELLED"
)

// OpenTicketStatuses lists the lifecycle states the SLA monitor watches.
var OpenTicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusPendingUser,
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// CriticalPriority is the tier swept regardless of the business calendar.
const CriticalPriority = TicketPriorityUrgent

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests as seen by the SLA core.
type Ticket struct {
	ID               string
	ExternalKey      string
	Title            string
	AssigneeID       *string
	Status           TicketStatus
	Priority         TicketPriority
	SLAConfigID      *string
	SLAStatus        SLAStatus
	SLADeadline      *time.Time
	DeadlineOverride *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ClosedAt         *time.Time
}

// IsOpen reports whether the ticket is still in an active lifecycle state.
func (t *Ticket) IsOpen() bool {
	for _, s := range OpenTicketStatuses {
		if t.Status == s {
			return true
		}
	}
	return false
}
