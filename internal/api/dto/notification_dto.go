package dto

import (
	"time"

	"github.com/spec-kit/station-helpdesk/internal/domain"
)

// NotificationListQuery filters the inbox.
type NotificationListQuery struct {
	UnreadOnly bool `query:"unread_only"`
	Page       int  `query:"page" validate:"omitempty,min=1"`
	Limit      int  `query:"limit" validate:"omitempty,min=1,max=100"`
}

// NotificationResponse renders a notification.
type NotificationResponse struct {
	ID              string                      `json:"id"`
	RecipientID     string                      `json:"recipient_id"`
	Title           string                      `json:"title"`
	Message         string                      `json:"message"`
	Type            domain.NotificationType     `json:"type"`
	RelatedTicketID *string                     `json:"related_ticket_id"`
	IsRead          bool                        `json:"is_read"`
	ReadAt          *time.Time                  `json:"read_at"`
	Priority        domain.NotificationPriority `json:"priority"`
	ActionURL       string                      `json:"action_url,omitempty"`
	Metadata        map[string]any              `json:"metadata"`
	CreatedAt       time.Time                   `json:"created_at"`
}

// NewNotificationResponse renders a notification.
func NewNotificationResponse(n *domain.Notification) NotificationResponse {
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return NotificationResponse{
		ID:              n.ID,
		RecipientID:     n.RecipientID,
		Title:           n.Title,
		Message:         n.Message,
		Type:            n.Type,
		RelatedTicketID: n.RelatedTicketID,
		IsRead:          n.IsRead,
		ReadAt:          n.ReadAt,
		Priority:        n.Priority,
		ActionURL:       n.ActionURL,
		Metadata:        metadata,
		CreatedAt:       n.CreatedAt,
	}
}

// NotificationListResponse wraps an inbox page.
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Pagination    PaginationResponse     `json:"pagination"`
	UnreadCount   int                    `json:"unread_count"`
}

// MarkAllReadResponse reports how many notifications flipped.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}
