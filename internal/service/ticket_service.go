package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/events"
	"github.com/spec-kit/station-helpdesk/internal/repository"
	"github.com/spec-kit/station-helpdesk/internal/storage"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

// AttachmentStore persists uploaded files.
type AttachmentStore interface {
	Validate(uploads []storage.Upload) error
	Save(ctx context.Context, upload storage.Upload) (domain.Attachment, error)
	Remove(att domain.Attachment) error
}

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	users       repository.UserRepository
	history     repository.TicketHistoryRepository
	attachments AttachmentStore
	dispatcher  events.Dispatcher
	policy      domain.TransitionPolicy
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	UserRepo        repository.UserRepository
	HistoryRepo     repository.TicketHistoryRepository
	AttachmentStore AttachmentStore
	Dispatcher      events.Dispatcher
	Policy          domain.TransitionPolicy
	Logger          *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		users:       deps.UserRepo,
		history:     deps.HistoryRepo,
		attachments: deps.AttachmentStore,
		dispatcher:  deps.Dispatcher,
		policy:      deps.Policy,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title              string
	Description        string
	Priority           domain.TicketPriority
	Category           domain.TicketCategory
	GasStationLocation string
	Tags               []string
	CustomerContact    *domain.CustomerContact
	Uploads            []storage.Upload
}

// TicketListFilter describes listing filters; Page and Limit are 1-based and clamped.
type TicketListFilter struct {
	Status     *domain.TicketStatus
	Priority   *domain.TicketPriority
	Category   *domain.TicketCategory
	Location   *string
	AssignedTo *string
	ReportedBy *string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	Limit      int
}

// TicketPage is one page of tickets.
type TicketPage struct {
	Tickets    []*domain.Ticket
	Pagination Pagination
}

// TicketPatch lists the fields an update may change. A non-nil empty
// AssignedTo clears the assignee.
type TicketPatch struct {
	Status                  *domain.TicketStatus
	Priority                *domain.TicketPriority
	AssignedTo              *string
	EstimatedResolutionTime *time.Time
}

// CreateTicket files a ticket for a gas-station user.
func (s *TicketService) CreateTicket(ctx context.Context, reporter *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if err := auth.Authorize(reporter, auth.CapCreateTicket, nil); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		Title:              sanitizeText(input.Title),
		Description:        sanitizeText(input.Description),
		Priority:           input.Priority,
		Status:             domain.TicketStatusOpen,
		Category:           input.Category,
		GasStationLocation: strings.TrimSpace(input.GasStationLocation),
		ReportedBy:         reporter.ID,
		Tags:               normalizeTags(input.Tags),
		EscalationLevel:    domain.MinEscalationLevel,
		CustomerContact:    input.CustomerContact,
	}
	if ticket.GasStationLocation == "" {
		ticket.GasStationLocation = reporter.GasStationLocation
	}
	if err := validateNewTicket(ticket); err != nil {
		return nil, err
	}

	if len(input.Uploads) > 0 {
		if s.attachments == nil {
			return nil, fieldError("attachments", "attachments are not supported")
		}
		if err := s.attachments.Validate(input.Uploads); err != nil {
			return nil, err
		}
		for _, upload := range input.Uploads {
			att, err := s.attachments.Save(ctx, upload)
			if err != nil {
				s.discardAttachments(ticket.Attachments)
				return nil, apperrors.NewInternalError(err)
			}
			ticket.Attachments = append(ticket.Attachments, att)
		}
	}

	ticket.Normalize()
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.discardAttachments(ticket.Attachments)
		return nil, mapRepoErr(err, "ticket", nil)
	}
	if ticket.Comments == nil {
		ticket.Comments = []domain.Comment{}
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, events.ActorFrom(reporter),
		events.TicketCreatedPayload{Ticket: ticket}))
	return ticket, nil
}

func validateNewTicket(ticket *domain.Ticket) error {
	var fields []apperrors.FieldError
	if ticket.Title == "" {
		fields = append(fields, apperrors.FieldError{Field: "title", Message: "title is required"})
	} else if len([]rune(ticket.Title)) > domain.MaxTitleLength {
		fields = append(fields, apperrors.FieldError{Field: "title", Message: "title must be at most 200 characters"})
	}
	if ticket.Description == "" {
		fields = append(fields, apperrors.FieldError{Field: "description", Message: "description is required"})
	}
	if !ticket.Priority.Valid() {
		fields = append(fields, apperrors.FieldError{Field: "priority", Message: "priority is invalid"})
	}
	if ticket.Category != "" && !ticket.Category.Valid() {
		fields = append(fields, apperrors.FieldError{Field: "category", Message: "category is invalid"})
	}
	if ticket.GasStationLocation == "" {
		fields = append(fields, apperrors.FieldError{Field: "gas_station_location", Message: "gas station location is required"})
	}
	if len(fields) > 0 {
		return apperrors.NewFieldValidationError(fields)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(sanitizeText(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func (s *TicketService) discardAttachments(atts []domain.Attachment) {
	for _, att := range atts {
		if err := s.attachments.Remove(att); err != nil {
			s.logger.Warn("remove orphaned attachment", zap.String("filename", att.Filename), zap.Error(err))
		}
	}
}

// ListTickets returns a page of tickets visible to requester. Station users only see their own.
func (s *TicketService) ListTickets(ctx context.Context, requester *domain.User, filter TicketListFilter) (*TicketPage, error) {
	if requester == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	page, limit := NormalizePage(filter.Page, filter.Limit)

	repoFilter := repository.TicketFilter{
		Status:     filter.Status,
		Priority:   filter.Priority,
		Category:   filter.Category,
		Location:   filter.Location,
		AssignedTo: filter.AssignedTo,
		ReportedBy: filter.ReportedBy,
		DateFrom:   filter.DateFrom,
		DateTo:     filter.DateTo,
		Page:       pageWindow(page, limit),
	}
	if !requester.IsStaff() {
		own := requester.ID
		repoFilter.ReportedBy = &own
	}

	tickets, total, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, mapRepoErr(err, "ticket", nil)
	}
	if !requester.IsStaff() {
		for i, ticket := range tickets {
			tickets[i] = ticket.PublicView()
		}
	}
	return &TicketPage{Tickets: tickets, Pagination: newPagination(page, limit, total)}, nil
}

// GetTicket fetches a ticket the requester may view; station users get the public view.
func (s *TicketService) GetTicket(ctx context.Context, requester *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(requester, auth.CapViewTicket, ticket); err != nil {
		return nil, err
	}
	if !requester.IsStaff() {
		return ticket.PublicView(), nil
	}
	return ticket, nil
}

// UpdateTicket applies a staff patch, running the state machine for status changes.
func (s *TicketService) UpdateTicket(ctx context.Context, requester *domain.User, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	if err := auth.Authorize(requester, auth.CapHelpDeskOrAdmin, nil); err != nil {
		return nil, err
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if patch.Priority != nil && !patch.Priority.Valid() {
		return nil, fieldError("priority", "priority is invalid")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fieldError("status", "status is invalid")
	}
	var newAssignee *string
	if patch.AssignedTo != nil {
		if trimmed := strings.TrimSpace(*patch.AssignedTo); trimmed != "" {
			if err := s.ensureAssignable(ctx, trimmed); err != nil {
				return nil, err
			}
			newAssignee = &trimmed
		}
	}

	oldStatus := ticket.Status
	oldPriority := ticket.Priority
	oldAssignee := ticket.AssignedTo
	oldEstimate := ticket.EstimatedResolutionTime
	now := s.now()

	if patch.Status != nil {
		if err := ticket.TransitionTo(*patch.Status, now, s.policy); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return nil, apperrors.NewConflict(err.Error(), map[string]any{
					"from": oldStatus,
					"to":   *patch.Status,
				})
			}
			return nil, apperrors.MapError(err)
		}
	}
	if patch.Priority != nil {
		ticket.Priority = *patch.Priority
	}
	if patch.AssignedTo != nil {
		ticket.AssignedTo = newAssignee
	}
	if patch.EstimatedResolutionTime != nil {
		estimate := patch.EstimatedResolutionTime.UTC()
		ticket.EstimatedResolutionTime = &estimate
	}

	ticket.Normalize()
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapRepoErr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}

	actor := events.ActorFrom(requester)
	var changed []string

	if ticket.Status != oldStatus {
		changed = append(changed, "status")
		s.recordHistory(ctx, requester, ticket.ID, domain.ChangeTypeStatus, "status", oldStatus, ticket.Status)
		s.publishEvent(ctx, events.NewEvent(events.EventTicketStatusChanged, ticket.ID, actor,
			events.TicketStatusChangedPayload{Ticket: ticket, OldStatus: oldStatus, NewStatus: ticket.Status}))
	}
	if ticket.Priority != oldPriority {
		changed = append(changed, "priority")
		s.recordHistory(ctx, requester, ticket.ID, domain.ChangeTypePriority, "priority", oldPriority, ticket.Priority)
		s.publishEvent(ctx, events.NewEvent(events.EventTicketPriorityChanged, ticket.ID, actor,
			events.TicketPriorityChangedPayload{Ticket: ticket, OldPriority: oldPriority, NewPriority: ticket.Priority}))
	}
	if !sameOptionalString(oldAssignee, ticket.AssignedTo) {
		changed = append(changed, "assigned_to")
		s.recordHistory(ctx, requester, ticket.ID, domain.ChangeTypeAssignee, "assigned_to", derefOr(oldAssignee), derefOr(ticket.AssignedTo))
		if ticket.AssignedTo != nil {
			s.publishEvent(ctx, events.NewEvent(events.EventTicketAssigned, ticket.ID, actor,
				events.TicketAssignedPayload{Ticket: ticket, OldAssignee: oldAssignee, NewAssignee: *ticket.AssignedTo}))
		}
	}
	if !sameOptionalTime(oldEstimate, ticket.EstimatedResolutionTime) {
		changed = append(changed, "estimated_resolution_time")
		s.recordHistory(ctx, requester, ticket.ID, domain.ChangeTypeEstimate, "estimated_resolution_time", oldEstimate, ticket.EstimatedResolutionTime)
	}

	s.publishEvent(ctx, events.NewEvent(events.EventTicketUpdated, ticket.ID, actor,
		events.TicketUpdatedPayload{Ticket: ticket, ChangedFields: changed}))
	return ticket, nil
}

func (s *TicketService) ensureAssignable(ctx context.Context, userID string) error {
	assignee, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fieldError("assigned_to", "assignee does not exist")
		}
		return apperrors.MapError(err)
	}
	if !assignee.IsActive || !assignee.IsStaff() {
		return fieldError("assigned_to", "assignee must be an active help-desk or admin user")
	}
	return nil
}

// AddComment appends a comment. Internal comments are restricted to staff.
func (s *TicketService) AddComment(ctx context.Context, requester *domain.User, ticketID, content string, isInternal bool) (*domain.Comment, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(requester, auth.CapViewTicket, ticket); err != nil {
		return nil, err
	}
	if isInternal {
		if err := auth.Authorize(requester, auth.CapHelpDeskOrAdmin, nil); err != nil {
			return nil, apperrors.NewForbidden("only help-desk staff may add internal comments")
		}
	}

	content = sanitizeText(content)
	if content == "" {
		return nil, fieldError("content", "content is required")
	}

	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   requester.ID,
		Content:    content,
		IsInternal: isInternal,
	}
	if err := s.tickets.AppendComment(ctx, comment); err != nil {
		return nil, mapRepoErr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	ticket.Comments = append(ticket.Comments, *comment)

	s.publishEvent(ctx, events.NewEvent(events.EventCommentAdded, ticket.ID, events.ActorFrom(requester),
		events.CommentAddedPayload{Ticket: ticket, Comment: comment}))
	return comment, nil
}

// Stats aggregates ticket counts for staff dashboards.
func (s *TicketService) Stats(ctx context.Context, requester *domain.User) (domain.TicketStats, error) {
	if err := auth.Authorize(requester, auth.CapHelpDeskOrAdmin, nil); err != nil {
		return domain.TicketStats{}, err
	}
	stats, err := s.tickets.Stats(ctx)
	if err != nil {
		return domain.TicketStats{}, apperrors.MapError(err)
	}
	return stats, nil
}

// History lists audit entries for a ticket.
func (s *TicketService) History(ctx context.Context, requester *domain.User, ticketID string) ([]domain.TicketHistory, error) {
	if err := auth.Authorize(requester, auth.CapHelpDeskOrAdmin, nil); err != nil {
		return nil, err
	}
	if _, err := s.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// ResolvePeople loads summaries for reporters, assignees and comment authors.
// Lookup failures leave the id unresolved.
func (s *TicketService) ResolvePeople(ctx context.Context, tickets ...*domain.Ticket) map[string]domain.UserSummary {
	people := map[string]domain.UserSummary{}
	want := func(id string) {
		if id == "" {
			return
		}
		if _, ok := people[id]; ok {
			return
		}
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			return
		}
		people[id] = user.Summary()
	}
	for _, ticket := range tickets {
		want(ticket.ReportedBy)
		if ticket.AssignedTo != nil {
			want(*ticket.AssignedTo)
		}
		for _, comment := range ticket.Comments {
			want(comment.AuthorID)
		}
	}
	return people
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoErr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// recordHistory writes an audit entry; failures are logged only.
func (s *TicketService) recordHistory(ctx context.Context, actor *domain.User, ticketID string, changeType domain.TicketChangeType, field string, oldValue, newValue any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  actor.ID,
		ChangeType: changeType,
		OldValue:   map[string]any{field: oldValue},
		NewValue:   map[string]any{field: newValue},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(changeType)),
			zap.Error(err),
		)
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func sameOptionalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameOptionalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func derefOr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
