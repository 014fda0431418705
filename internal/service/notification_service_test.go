package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/events"
	"github.com/spec-kit/station-helpdesk/internal/observability"
	"github.com/spec-kit/station-helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

func TestNotifications_ListAndUnreadCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.createTicket(t, f.station, domain.TicketPriorityLow)
	}

	page, err := f.notifications.List(ctx, f.agent, NotificationListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.UnreadCount)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	read, err := f.notifications.MarkRead(ctx, f.agent, page.Items[0].ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	again, err := f.notifications.MarkRead(ctx, f.agent, page.Items[0].ID)
	require.NoError(t, err)
	assert.True(t, read.ReadAt.Equal(*again.ReadAt))

	unread, err := f.notifications.List(ctx, f.agent, NotificationListFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread.Items, 2)
	assert.Equal(t, 2, unread.UnreadCount)

	n, err := f.notifications.MarkAllRead(ctx, f.agent)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	after, err := f.notifications.List(ctx, f.agent, NotificationListFilter{})
	require.NoError(t, err)
	assert.Zero(t, after.UnreadCount)
	assert.Len(t, after.Items, 3)
}

func TestNotifications_OwnershipIsEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTicket(t, f.station, domain.TicketPriorityLow)

	items := f.inbox(t, f.agent)
	require.Len(t, items, 1)

	_, err := f.notifications.MarkRead(ctx, f.agent2, items[0].ID)
	requireCode(t, err, apperrors.CodeNotFound)

	err = f.notifications.Delete(ctx, f.agent2, items[0].ID)
	requireCode(t, err, apperrors.CodeNotFound)

	require.NoError(t, f.notifications.Delete(ctx, f.agent, items[0].ID))
	assert.Empty(t, f.inbox(t, f.agent))

	_, err = f.notifications.List(ctx, nil, NotificationListFilter{})
	requireCode(t, err, apperrors.CodeUnauthed)
}

func TestNotifications_StatusChangeByReporterIsSilent(t *testing.T) {
	f := newFixture(t)
	ticket := f.createTicket(t, f.station, domain.TicketPriorityLow)
	ticket.Status = domain.TicketStatusResolved

	evt := events.NewEvent(events.EventTicketStatusChanged, ticket.ID, events.ActorFrom(f.station),
		events.TicketStatusChangedPayload{Ticket: ticket, OldStatus: domain.TicketStatusOpen, NewStatus: domain.TicketStatusResolved})
	require.NoError(t, f.notifications.handleTicketStatusChanged(context.Background(), evt))
	assert.Empty(t, f.inbox(t, f.station))
}

type failingNotifications struct {
	*memory.NotificationRepository
	failFor string
}

func (r *failingNotifications) Create(ctx context.Context, n *domain.Notification) error {
	if n.RecipientID == r.failFor {
		return errors.New("insert failed")
	}
	return r.NotificationRepository.Create(ctx, n)
}

func TestNotifications_FailureForOneRecipientDoesNotStopOthers(t *testing.T) {
	f := newFixture(t)
	metrics := observability.NewMetrics()
	repo := &failingNotifications{NotificationRepository: f.store.Notifications, failFor: f.admin.ID}

	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	svc := NewNotificationService(NotificationDependencies{
		Dispatcher:       dispatcher,
		NotificationRepo: repo,
		UserRepo:         f.store.Users,
		Metrics:          metrics,
	})
	svc.RegisterHandlers()

	ticket := &domain.Ticket{ID: "t-1", Title: "Pump", Priority: domain.TicketPriorityLow, ReportedBy: f.station.ID}
	require.NoError(t, dispatcher.Publish(context.Background(), events.NewEvent(events.EventTicketCreated, ticket.ID,
		events.ActorFrom(f.station), events.TicketCreatedPayload{Ticket: ticket})))

	assert.Empty(t, f.inbox(t, f.admin))
	assert.Len(t, f.inbox(t, f.agent), 1)
	assert.Len(t, f.inbox(t, f.agent2), 1)
	count, err := testutil.GatherAndCount(metrics.Registry(), "helpdesk_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
