package domain

import (
	"errors"
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in-progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketStatuses lists statuses in lifecycle order.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	return s.rank() >= 0
}

func (s TicketStatus) rank() int {
	for i, candidate := range TicketStatuses {
		if candidate == s {
			return i
		}
	}
	return -1
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityCritical TicketPriority = "critical"
)

// TicketPriorities lists priorities from lowest to highest.
var TicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityCritical,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	for _, candidate := range TicketPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// Urgent reports whether the priority makes a ticket urgent.
func (p TicketPriority) Urgent() bool {
	return p == TicketPriorityHigh || p == TicketPriorityCritical
}

// TicketCategory classifies the affected system.
type TicketCategory string

const (
	TicketCategoryHardware   TicketCategory = "hardware"
	TicketCategorySoftware   TicketCategory = "software"
	TicketCategoryNetwork    TicketCategory = "network"
	TicketCategoryPayment    TicketCategory = "payment"
	TicketCategoryFuelSystem TicketCategory = "fuel-system"
	TicketCategoryOther      TicketCategory = "other"
)

// TicketCategories lists known categories.
var TicketCategories = []TicketCategory{
	TicketCategoryHardware,
	TicketCategorySoftware,
	TicketCategoryNetwork,
	TicketCategoryPayment,
	TicketCategoryFuelSystem,
	TicketCategoryOther,
}

// Valid reports whether c is a known category.
func (c TicketCategory) Valid() bool {
	for _, candidate := range TicketCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

const (
	MaxTitleLength     = 200
	MinEscalationLevel = 1
	MaxEscalationLevel = 3
)

// Attachment stores metadata for an uploaded file.
type Attachment struct {
	ID           string
	Filename     string
	OriginalName string
	StoragePath  string
	MimeType     string
	Size         int64
	CreatedAt    time.Time
}

// Comment is an append-only note on a ticket.
type Comment struct {
	ID         string
	TicketID   string
	AuthorID   string
	Content    string
	IsInternal bool
	CreatedAt  time.Time
}

// CustomerContact captures an optional station customer involved in the incident.
type CustomerContact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                      string
	Title                   string
	Description             string
	Priority                TicketPriority
	Status                  TicketStatus
	Category                TicketCategory
	GasStationLocation      string
	ReportedBy              string
	AssignedTo              *string
	Attachments             []Attachment
	Comments                []Comment
	EstimatedResolutionTime *time.Time
	ActualResolutionTime    *time.Time
	IsUrgent                bool
	Tags                    []string
	EscalationLevel         int
	CustomerContact         *CustomerContact
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Normalize recomputes derived fields and fills defaults; called before every save.
func (t *Ticket) Normalize() {
	t.IsUrgent = t.Priority.Urgent()
	if t.Category == "" {
		t.Category = TicketCategoryOther
	}
	if t.EscalationLevel < MinEscalationLevel {
		t.EscalationLevel = MinEscalationLevel
	}
	if t.EscalationLevel > MaxEscalationLevel {
		t.EscalationLevel = MaxEscalationLevel
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
}

// IsAssignedTo reports whether userID is the current assignee.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// PublicView returns a copy without internal comments.
func (t *Ticket) PublicView() *Ticket {
	clone := *t
	clone.Comments = make([]Comment, 0, len(t.Comments))
	for _, comment := range t.Comments {
		if comment.IsInternal {
			continue
		}
		clone.Comments = append(clone.Comments, comment)
	}
	return &clone
}

// ResolutionDuration returns the time from creation to resolution, if resolved.
func (t *Ticket) ResolutionDuration() (time.Duration, bool) {
	if t.ActualResolutionTime == nil {
		return 0, false
	}
	return t.ActualResolutionTime.Sub(t.CreatedAt), true
}

// TransitionPolicy controls which status changes are permitted.
type TransitionPolicy int

const (
	// TransitionFree allows any status to be set from any other.
	TransitionFree TransitionPolicy = iota
	// TransitionForwardOnly allows only open → in-progress → resolved → closed.
	TransitionForwardOnly
)

// ErrInvalidTransition is returned when a policy rejects a status change.
var ErrInvalidTransition = errors.New("invalid status transition")

var forwardTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress},
	TicketStatusInProgress: {TicketStatusResolved},
	TicketStatusResolved:   {TicketStatusClosed},
	TicketStatusClosed:     {},
}

// CanTransition reports whether policy allows current → next.
func (p TransitionPolicy) CanTransition(current, next TicketStatus) bool {
	if !next.Valid() {
		return false
	}
	if current == next || p == TransitionFree {
		return true
	}
	for _, candidate := range forwardTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the ticket to next. Entering resolved stamps ActualResolutionTime.
func (t *Ticket) TransitionTo(next TicketStatus, now time.Time, policy TransitionPolicy) error {
	if !policy.CanTransition(t.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	if next == TicketStatusResolved && t.Status != TicketStatusResolved {
		resolvedAt := now
		t.ActualResolutionTime = &resolvedAt
	}
	t.Status = next
	return nil
}
