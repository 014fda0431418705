package realtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/api/dto"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/events"
)

// Broadcaster turns ticket events into live frames.
type Broadcaster struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewBroadcaster builds a broadcaster over publisher.
func NewBroadcaster(publisher Publisher, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{publisher: publisher, logger: logger}
}

// RegisterHandlers subscribes to the dispatcher.
func (b *Broadcaster) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, b.onTicketCreated)
	dispatcher.Subscribe(events.EventTicketUpdated, b.onTicketUpdated)
	dispatcher.Subscribe(events.EventCommentAdded, b.onCommentAdded)
}

// CommentFrame is the payload of comment-added.
type CommentFrame struct {
	TicketID string              `json:"ticket_id"`
	Comment  dto.CommentResponse `json:"comment"`
}

func (b *Broadcaster) onTicketCreated(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	return b.publish(ctx, EventTicketCreated, "", AudienceStaff, dto.NewTicketResponse(payload.Ticket, nil))
}

// onTicketUpdated sends staff the full ticket and station clients the public view.
func (b *Broadcaster) onTicketUpdated(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.TicketUpdatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	ticket := payload.Ticket
	if err := b.publish(ctx, EventTicketUpdated, ticket.ID, AudienceStaff, dto.NewTicketResponse(ticket, nil)); err != nil {
		return err
	}
	return b.publish(ctx, EventTicketUpdated, ticket.ID, AudienceStation, dto.NewTicketResponse(ticket.PublicView(), nil))
}

func (b *Broadcaster) onCommentAdded(ctx context.Context, evt events.Event) error {
	payload, ok := evt.Payload.(events.CommentAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	audience := AudienceAll
	if payload.Comment.IsInternal {
		audience = AudienceStaff
	}
	frame := CommentFrame{
		TicketID: payload.Ticket.ID,
		Comment:  dto.NewCommentResponse(payload.Comment, nil),
	}
	return b.publish(ctx, EventCommentAdded, payload.Ticket.ID, audience, frame)
}

func (b *Broadcaster) publish(ctx context.Context, event, ticketID string, audience Audience, data any) error {
	env, err := NewEnvelope(event, data)
	if err != nil {
		return err
	}
	env.TicketID = ticketID
	env.Audience = audience
	return b.publisher.Publish(ctx, env)
}

// NotifyUser pushes a persisted notification to its recipient's connections.
func NotifyUser(ctx context.Context, publisher Publisher, n *domain.Notification) error {
	env, err := NewEnvelope(EventNotification, dto.NewNotificationResponse(n))
	if err != nil {
		return err
	}
	env.UserID = n.RecipientID
	return publisher.Publish(ctx, env)
}
