package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/station-helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketUpdated         EventType = "ticket_updated"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventCommentAdded          EventType = "comment_added"
)

// Actor identifies the user whose request produced the event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
	Name   string      `json:"name"`
}

// ActorFrom builds an Actor from a user.
func ActorFrom(user *domain.User) Actor {
	return Actor{UserID: user.ID, Role: user.Role, Name: user.FullName()}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps a fresh event.
func NewEvent(eventType EventType, ticketID string, actor Actor, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket *domain.Ticket `json:"ticket"`
}

// TicketUpdatedPayload carries the ticket after any accepted update.
type TicketUpdatedPayload struct {
	Ticket        *domain.Ticket `json:"ticket"`
	ChangedFields []string       `json:"changed_fields"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Ticket    *domain.Ticket      `json:"ticket"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	Ticket      *domain.Ticket        `json:"ticket"`
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Ticket      *domain.Ticket `json:"ticket"`
	OldAssignee *string        `json:"old_assignee,omitempty"`
	NewAssignee string         `json:"new_assignee"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	Ticket  *domain.Ticket  `json:"ticket"`
	Comment *domain.Comment `json:"comment"`
}
