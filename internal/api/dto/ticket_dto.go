package dto

import (
	"time"

	"github.com/spec-kit/station-helpdesk/internal/domain"
)

// CreateTicketRequest payload. Multipart submissions carry the same fields as form values.
type CreateTicketRequest struct {
	Title              string                  `json:"title" validate:"required,max=200"`
	Description        string                  `json:"description" validate:"required,max=5000"`
	Priority           string                  `json:"priority" validate:"required,oneof=low medium high critical"`
	Category           string                  `json:"category" validate:"omitempty,oneof=hardware software network payment fuel-system other"`
	GasStationLocation string                  `json:"gas_station_location" validate:"omitempty,max=200"`
	Tags               []string                `json:"tags" validate:"omitempty,max=20,dive,required,max=50"`
	CustomerContact    *CustomerContactRequest `json:"customer_contact" validate:"omitempty"`
}

// CustomerContactRequest payload.
type CustomerContactRequest struct {
	Name  string `json:"name" validate:"omitempty,max=100"`
	Phone string `json:"phone" validate:"omitempty,max=40"`
	Email string `json:"email" validate:"omitempty,email"`
}

// UpdateTicketRequest lists the only fields an update may carry; decoding rejects anything else.
type UpdateTicketRequest struct {
	Status                  *string    `json:"status" validate:"omitempty,oneof=open in-progress resolved closed"`
	Priority                *string    `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssignedTo              *string    `json:"assigned_to" validate:"omitempty,max=64"`
	EstimatedResolutionTime *time.Time `json:"estimated_resolution_time"`
}

// Empty reports whether no field was supplied.
func (r UpdateTicketRequest) Empty() bool {
	return r.Status == nil && r.Priority == nil && r.AssignedTo == nil && r.EstimatedResolutionTime == nil
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Content    string `json:"content" validate:"required,max=2000"`
	IsInternal bool   `json:"is_internal"`
}

// TicketListQuery captures query filters for listing.
type TicketListQuery struct {
	Status     string `query:"status" validate:"omitempty,oneof=open in-progress resolved closed"`
	Priority   string `query:"priority" validate:"omitempty,oneof=low medium high critical"`
	Category   string `query:"category" validate:"omitempty,oneof=hardware software network payment fuel-system other"`
	Location   string `query:"location" validate:"omitempty,max=200"`
	AssignedTo string `query:"assigned_to" validate:"omitempty,max=64"`
	ReportedBy string `query:"reported_by" validate:"omitempty,max=64"`
	DateFrom   string `query:"date_from"`
	DateTo     string `query:"date_to"`
	Page       int    `query:"page" validate:"omitempty,min=1"`
	Limit      int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

// UserRef is the compact user shape embedded in tickets and comments.
type UserRef struct {
	ID        string      `json:"id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
}

// People resolves user ids to summaries when rendering; missing ids render as bare ids.
type People map[string]domain.UserSummary

func (p People) ref(id string) *UserRef {
	summary, ok := p[id]
	if !ok {
		return nil
	}
	return &UserRef{
		ID:        summary.ID,
		FirstName: summary.FirstName,
		LastName:  summary.LastName,
		Email:     summary.Email,
		Role:      summary.Role,
	}
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

// CommentResponse represents a ticket comment.
type CommentResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AuthorID   string    `json:"author_id"`
	Author     *UserRef  `json:"author,omitempty"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID                      string                  `json:"id"`
	Title                   string                  `json:"title"`
	Description             string                  `json:"description"`
	Priority                domain.TicketPriority   `json:"priority"`
	Status                  domain.TicketStatus     `json:"status"`
	Category                domain.TicketCategory   `json:"category"`
	GasStationLocation      string                  `json:"gas_station_location"`
	ReportedByID            string                  `json:"reported_by_id"`
	ReportedBy              *UserRef                `json:"reported_by,omitempty"`
	AssignedToID            *string                 `json:"assigned_to_id"`
	AssignedTo              *UserRef                `json:"assigned_to,omitempty"`
	Attachments             []AttachmentResponse    `json:"attachments"`
	Comments                []CommentResponse       `json:"comments"`
	EstimatedResolutionTime *time.Time              `json:"estimated_resolution_time"`
	ActualResolutionTime    *time.Time              `json:"actual_resolution_time"`
	IsUrgent                bool                    `json:"is_urgent"`
	Tags                    []string                `json:"tags"`
	EscalationLevel         int                     `json:"escalation_level"`
	CustomerContact         *domain.CustomerContact `json:"customer_contact,omitempty"`
	CreatedAt               time.Time               `json:"created_at"`
	UpdatedAt               time.Time               `json:"updated_at"`
}

// UploadsURLPrefix is the public path attachments are served under.
const UploadsURLPrefix = "/uploads/"

// NewTicketResponse renders a ticket; people may be nil.
func NewTicketResponse(t *domain.Ticket, people People) TicketResponse {
	resp := TicketResponse{
		ID:                      t.ID,
		Title:                   t.Title,
		Description:             t.Description,
		Priority:                t.Priority,
		Status:                  t.Status,
		Category:                t.Category,
		GasStationLocation:      t.GasStationLocation,
		ReportedByID:            t.ReportedBy,
		ReportedBy:              people.ref(t.ReportedBy),
		AssignedToID:            t.AssignedTo,
		Attachments:             make([]AttachmentResponse, 0, len(t.Attachments)),
		Comments:                make([]CommentResponse, 0, len(t.Comments)),
		EstimatedResolutionTime: t.EstimatedResolutionTime,
		ActualResolutionTime:    t.ActualResolutionTime,
		IsUrgent:                t.IsUrgent,
		Tags:                    t.Tags,
		EscalationLevel:         t.EscalationLevel,
		CustomerContact:         t.CustomerContact,
		CreatedAt:               t.CreatedAt,
		UpdatedAt:               t.UpdatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if t.AssignedTo != nil {
		resp.AssignedTo = people.ref(*t.AssignedTo)
	}
	for _, att := range t.Attachments {
		resp.Attachments = append(resp.Attachments, AttachmentResponse{
			ID:           att.ID,
			Filename:     att.Filename,
			OriginalName: att.OriginalName,
			MimeType:     att.MimeType,
			Size:         att.Size,
			URL:          UploadsURLPrefix + att.Filename,
			CreatedAt:    att.CreatedAt,
		})
	}
	for i := range t.Comments {
		resp.Comments = append(resp.Comments, NewCommentResponse(&t.Comments[i], people))
	}
	return resp
}

// NewCommentResponse renders a comment.
func NewCommentResponse(c *domain.Comment, people People) CommentResponse {
	return CommentResponse{
		ID:         c.ID,
		TicketID:   c.TicketID,
		AuthorID:   c.AuthorID,
		Author:     people.ref(c.AuthorID),
		Content:    c.Content,
		IsInternal: c.IsInternal,
		CreatedAt:  c.CreatedAt,
	}
}

// PaginationResponse describes list paging.
type PaginationResponse struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

// TicketListResponse wraps a page of tickets.
type TicketListResponse struct {
	Tickets    []TicketResponse   `json:"tickets"`
	Pagination PaginationResponse `json:"pagination"`
}

// LocationCountResponse pairs a location with its ticket count.
type LocationCountResponse struct {
	Location string `json:"location"`
	Count    int    `json:"count"`
}

// TicketStatsResponse is the stats overview payload.
type TicketStatsResponse struct {
	Total               int                     `json:"total"`
	Open                int                     `json:"open"`
	InProgress          int                     `json:"in_progress"`
	Resolved            int                     `json:"resolved"`
	Closed              int                     `json:"closed"`
	ByPriority          map[string]int          `json:"by_priority"`
	Critical            int                     `json:"critical"`
	High                int                     `json:"high"`
	TopLocations        []LocationCountResponse `json:"top_locations"`
	AvgResolutionTimeMs int64                   `json:"avg_resolution_time_ms"`
}

// NewTicketStatsResponse renders stats.
func NewTicketStatsResponse(s domain.TicketStats) TicketStatsResponse {
	resp := TicketStatsResponse{
		Total:               s.Total,
		Open:                s.ByStatus[domain.TicketStatusOpen],
		InProgress:          s.ByStatus[domain.TicketStatusInProgress],
		Resolved:            s.ByStatus[domain.TicketStatusResolved],
		Closed:              s.ByStatus[domain.TicketStatusClosed],
		ByPriority:          make(map[string]int, len(s.ByPriority)),
		Critical:            s.ByPriority[domain.TicketPriorityCritical],
		High:                s.ByPriority[domain.TicketPriorityHigh],
		TopLocations:        make([]LocationCountResponse, 0, len(s.TopLocations)),
		AvgResolutionTimeMs: s.AvgResolutionTimeMs,
	}
	for priority, n := range s.ByPriority {
		resp.ByPriority[string(priority)] = n
	}
	for _, lc := range s.TopLocations {
		resp.TopLocations = append(resp.TopLocations, LocationCountResponse{Location: lc.Location, Count: lc.Count})
	}
	return resp
}

// TicketHistoryResponse renders an audit entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	TicketID   string                  `json:"ticket_id"`
	ChangedBy  string                  `json:"changed_by"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}

// NewTicketHistoryResponses renders audit entries.
func NewTicketHistoryResponses(entries []domain.TicketHistory) []TicketHistoryResponse {
	out := make([]TicketHistoryResponse, 0, len(entries))
	for _, h := range entries {
		out = append(out, TicketHistoryResponse{
			ID:         h.ID,
			TicketID:   h.TicketID,
			ChangedBy:  h.ChangedBy,
			ChangeType: h.ChangeType,
			OldValue:   h.OldValue,
			NewValue:   h.NewValue,
			CreatedAt:  h.CreatedAt,
		})
	}
	return out
}
