package domain

import "time"

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationTicketCreated  NotificationType = "ticket_created"
	NotificationTicketUpdated  NotificationType = "ticket_updated"
	NotificationTicketAssigned NotificationType = "ticket_assigned"
	NotificationCommentAdded   NotificationType = "comment_added"
	NotificationStatusChange   NotificationType = "status_change"
	NotificationSystem         NotificationType = "system"
)

// NotificationPriority ranks how prominently a notification is shown.
type NotificationPriority string

const (
	NotificationPriorityLow    NotificationPriority = "low"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// Notification is a persisted message addressed to a single user.
type Notification struct {
	ID              string
	RecipientID     string
	Title           string
	Message         string
	Type            NotificationType
	RelatedTicketID *string
	IsRead          bool
	ReadAt          *time.Time
	Priority        NotificationPriority
	ActionURL       string
	Metadata        map[string]any
	CreatedAt       time.Time
}

// MarkRead flips the read flag once; repeated calls keep the first ReadAt.
func (n *Notification) MarkRead(now time.Time) {
	if n.IsRead {
		return
	}
	n.IsRead = true
	readAt := now
	n.ReadAt = &readAt
}
