package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/events"
	"github.com/spec-kit/station-helpdesk/internal/observability"
	"github.com/spec-kit/station-helpdesk/internal/realtime"
	"github.com/spec-kit/station-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

// NotificationService turns ticket events into persisted per-user
// notifications and serves the notification inbox.
type NotificationService struct {
	dispatcher    events.Dispatcher
	notifications repository.NotificationRepository
	users         repository.UserRepository
	publisher     realtime.Publisher
	metrics       *observability.Metrics
	logger        *zap.Logger
	cfg           config.NotificationConfig
	now           func() time.Time
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher       events.Dispatcher
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	Publisher        realtime.Publisher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	Config           config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher:    deps.Dispatcher,
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		logger:        logger,
		cfg:           deps.Config,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// NotificationListFilter narrows an inbox listing.
type NotificationListFilter struct {
	UnreadOnly bool
	Page       int
	Limit      int
}

// NotificationPage is one page of a user's inbox.
type NotificationPage struct {
	Items       []*domain.Notification
	Pagination  Pagination
	UnreadCount int
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	ticket := payload.Ticket

	staff, err := n.users.List(ctx, repository.UserFilter{
		Roles:    []domain.Role{domain.RoleHelpDesk, domain.RoleAdmin},
		IsActive: boolPtr(true),
	})
	if err != nil {
		return fmt.Errorf("list staff recipients: %w", err)
	}

	priority := domain.NotificationPriorityMedium
	if ticket.IsUrgent {
		priority = domain.NotificationPriorityHigh
	}
	for _, member := range staff {
		n.deliver(ctx, &domain.Notification{
			RecipientID: member.ID,
			Title:       "New Ticket Created",
			Message:     fmt.Sprintf("New %s priority ticket: %s at %s", ticket.Priority, ticket.Title, ticket.GasStationLocation),
			Type:        domain.NotificationTicketCreated,
			Priority:    priority,
			Metadata: map[string]any{
				"priority": ticket.Priority,
				"category": ticket.Category,
				"location": ticket.GasStationLocation,
			},
		}, ticket)
	}
	n.sendEmailStub(event, len(staff))
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	ticket := payload.Ticket
	if ticket.ReportedBy == "" || ticket.ReportedBy == event.Actor.UserID {
		return nil
	}
	n.deliver(ctx, &domain.Notification{
		RecipientID: ticket.ReportedBy,
		Title:       "Ticket Status Updated",
		Message:     fmt.Sprintf("Your ticket %q changed from %s to %s", ticket.Title, payload.OldStatus, payload.NewStatus),
		Type:        domain.NotificationStatusChange,
		Priority:    domain.NotificationPriorityMedium,
		Metadata: map[string]any{
			"old_status": payload.OldStatus,
			"new_status": payload.NewStatus,
			"changed_by": event.Actor.Name,
		},
	}, ticket)
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	ticket := payload.Ticket
	if payload.NewAssignee == "" || payload.NewAssignee == event.Actor.UserID {
		return nil
	}
	priority := domain.NotificationPriorityMedium
	if ticket.IsUrgent {
		priority = domain.NotificationPriorityHigh
	}
	n.deliver(ctx, &domain.Notification{
		RecipientID: payload.NewAssignee,
		Title:       "Ticket Assigned to You",
		Message:     fmt.Sprintf("You have been assigned ticket: %s", ticket.Title),
		Type:        domain.NotificationTicketAssigned,
		Priority:    priority,
		Metadata: map[string]any{
			"assigned_by": event.Actor.Name,
			"priority":    ticket.Priority,
		},
	}, ticket)
	return nil
}

// handleCommentAdded notifies the reporter and assignee of public comments,
// skipping the author.
func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CommentAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	if payload.Comment == nil || payload.Comment.IsInternal {
		return nil
	}
	ticket := payload.Ticket

	recipients := make([]string, 0, 2)
	add := func(id string) {
		if id == "" || id == payload.Comment.AuthorID {
			return
		}
		for _, existing := range recipients {
			if existing == id {
				return
			}
		}
		recipients = append(recipients, id)
	}
	add(ticket.ReportedBy)
	if ticket.AssignedTo != nil {
		add(*ticket.AssignedTo)
	}

	for _, recipient := range recipients {
		n.deliver(ctx, &domain.Notification{
			RecipientID: recipient,
			Title:       "New Comment Added",
			Message:     fmt.Sprintf("%s commented on ticket: %s", event.Actor.Name, ticket.Title),
			Type:        domain.NotificationCommentAdded,
			Priority:    domain.NotificationPriorityLow,
			Metadata: map[string]any{
				"comment_id": payload.Comment.ID,
				"author":     event.Actor.Name,
			},
		}, ticket)
	}
	return nil
}

// deliver persists then pushes one notification. Failures are logged so one
// recipient never blocks the rest.
func (n *NotificationService) deliver(ctx context.Context, notification *domain.Notification, ticket *domain.Ticket) {
	if ticket != nil {
		id := ticket.ID
		notification.RelatedTicketID = &id
		notification.ActionURL = "/tickets/" + ticket.ID
	}
	if err := n.notifications.Create(ctx, notification); err != nil {
		n.metrics.RecordNotification(string(notification.Type), "failed")
		n.logger.Warn("persist notification",
			zap.String("recipient_id", notification.RecipientID),
			zap.String("type", string(notification.Type)),
			zap.Error(err),
		)
		return
	}
	n.metrics.RecordNotification(string(notification.Type), "stored")

	if n.publisher == nil {
		return
	}
	if err := realtime.NotifyUser(ctx, n.publisher, notification); err != nil {
		n.logger.Warn("push notification",
			zap.String("notification_id", notification.ID),
			zap.String("recipient_id", notification.RecipientID),
			zap.Error(err),
		)
	}
}

func (n *NotificationService) sendEmailStub(event events.Event, recipients int) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)),
		zap.Int("recipients", recipients))
}

// List returns the caller's notifications, newest first, with the unread total.
func (n *NotificationService) List(ctx context.Context, user *domain.User, filter NotificationListFilter) (*NotificationPage, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	page, limit := NormalizePage(filter.Page, filter.Limit)
	items, total, err := n.notifications.ListByRecipient(ctx, user.ID, repository.NotificationFilter{
		UnreadOnly: filter.UnreadOnly,
		Page:       pageWindow(page, limit),
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	unread, err := n.notifications.CountUnread(ctx, user.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &NotificationPage{
		Items:       items,
		Pagination:  newPagination(page, limit, total),
		UnreadCount: unread,
	}, nil
}

// MarkRead marks one of the caller's notifications as read. Notifications
// belonging to other users are reported as missing.
func (n *NotificationService) MarkRead(ctx context.Context, user *domain.User, id string) (*domain.Notification, error) {
	notification, err := n.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if notification.IsRead {
		return notification, nil
	}
	now := n.now()
	if err := n.notifications.MarkRead(ctx, notification.ID, now); err != nil {
		return nil, mapRepoErr(err, "notification", map[string]any{"notification_id": id})
	}
	notification.MarkRead(now)
	return notification, nil
}

// MarkAllRead marks every unread notification of the caller.
func (n *NotificationService) MarkAllRead(ctx context.Context, user *domain.User) (int64, error) {
	if user == nil {
		return 0, apperrors.NewUnauthorized("authentication required")
	}
	updated, err := n.notifications.MarkAllRead(ctx, user.ID, n.now())
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return updated, nil
}

// Delete removes one of the caller's notifications.
func (n *NotificationService) Delete(ctx context.Context, user *domain.User, id string) error {
	notification, err := n.owned(ctx, user, id)
	if err != nil {
		return err
	}
	return mapRepoErr(n.notifications.Delete(ctx, notification.ID), "notification", map[string]any{"notification_id": id})
}

func (n *NotificationService) owned(ctx context.Context, user *domain.User, id string) (*domain.Notification, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	notification, err := n.notifications.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if notification.RecipientID != user.ID {
		return nil, apperrors.NewNotFound("notification", map[string]any{"notification_id": id})
	}
	return notification, nil
}

func boolPtr(v bool) *bool {
	return &v
}
