package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository"
	"github.com/spec-kit/station-helpdesk/internal/storage"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

func TestCreateTicket_StationOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tickets.CreateTicket(ctx, f.agent, TicketCreateInput{Title: "x", Description: "y", Priority: domain.TicketPriorityLow})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.tickets.CreateTicket(ctx, nil, TicketCreateInput{})
	requireCode(t, err, apperrors.CodeUnauthed)
}

func TestCreateTicket_Defaults(t *testing.T) {
	f := newFixture(t)
	ticket, err := f.tickets.CreateTicket(context.Background(), f.station, TicketCreateInput{
		Title:       "  <b>Card reader</b> offline ",
		Description: "Reader on lane 2 <script>alert(1)</script>dead",
		Priority:    domain.TicketPriorityCritical,
		Tags:        []string{"Lane2", "lane2", " "},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketCategoryOther, ticket.Category)
	assert.Equal(t, "Downtown Station", ticket.GasStationLocation)
	assert.Equal(t, f.station.ID, ticket.ReportedBy)
	assert.Nil(t, ticket.AssignedTo)
	assert.True(t, ticket.IsUrgent)
	assert.Equal(t, 1, ticket.EscalationLevel)
	assert.Equal(t, "Card reader offline", ticket.Title)
	assert.NotContains(t, ticket.Description, "<script>")
	assert.Equal(t, []string{"lane2"}, ticket.Tags)
}

func TestCreateTicket_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.tickets.CreateTicket(context.Background(), f.station, TicketCreateInput{
		Priority: "urgent",
	})
	requireCode(t, err, apperrors.CodeValidation)

	fields := apperrors.ToDomainError(err).Details["errors"].([]apperrors.FieldError)
	names := make([]string, 0, len(fields))
	for _, fe := range fields {
		names = append(names, fe.Field)
	}
	assert.ElementsMatch(t, []string{"title", "description", "priority"}, names)
	assert.Empty(t, f.inbox(t, f.agent))
}

func TestCreateTicket_NotifiesActiveStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.users.SetActivation(ctx, f.admin, []string{f.agent2.ID}, false)
	require.NoError(t, err)

	staffClient := f.hub.Register(f.agent.ID, domain.RoleHelpDesk)
	ticket := f.createTicket(t, f.station, domain.TicketPriorityHigh)

	for _, user := range []*domain.User{f.admin, f.agent} {
		items := f.inbox(t, user)
		require.Len(t, items, 1, user.Username)
		assert.Equal(t, domain.NotificationTicketCreated, items[0].Type)
		assert.Equal(t, domain.NotificationPriorityHigh, items[0].Priority)
		require.NotNil(t, items[0].RelatedTicketID)
		assert.Equal(t, ticket.ID, *items[0].RelatedTicketID)
	}
	assert.Empty(t, f.inbox(t, f.agent2))
	assert.Empty(t, f.inbox(t, f.station))

	select {
	case raw := <-staffClient.Messages():
		assert.Contains(t, string(raw), `"notification"`)
	default:
		t.Fatal("expected realtime notification")
	}
}

type fakeAttachments struct {
	saved   []domain.Attachment
	removed []domain.Attachment
	failAt  int
}

func (f *fakeAttachments) Validate(uploads []storage.Upload) error {
	if len(uploads) > 5 {
		return apperrors.NewFieldValidationError([]apperrors.FieldError{{Field: "attachments", Message: "too many"}})
	}
	return nil
}

func (f *fakeAttachments) Save(_ context.Context, u storage.Upload) (domain.Attachment, error) {
	if f.failAt > 0 && len(f.saved)+1 == f.failAt {
		return domain.Attachment{}, errors.New("disk full")
	}
	att := domain.Attachment{Filename: "stored-" + u.OriginalName, OriginalName: u.OriginalName, Size: u.Size}
	f.saved = append(f.saved, att)
	return att, nil
}

func (f *fakeAttachments) Remove(att domain.Attachment) error {
	f.removed = append(f.removed, att)
	return nil
}

func upload(name string) storage.Upload {
	return storage.Upload{
		OriginalName: name,
		Size:         4,
		MimeType:     "text/plain",
		Open:         func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewBufferString("data")), nil },
	}
}

func TestCreateTicket_Attachments(t *testing.T) {
	f := newFixture(t)
	store := &fakeAttachments{}
	f.tickets.attachments = store

	ticket, err := f.tickets.CreateTicket(context.Background(), f.station, TicketCreateInput{
		Title: "Receipt printer", Description: "Paper jam", Priority: domain.TicketPriorityLow,
		Uploads: []storage.Upload{upload("a.log"), upload("b.txt")},
	})
	require.NoError(t, err)
	require.Len(t, ticket.Attachments, 2)
	assert.Equal(t, "a.log", ticket.Attachments[0].OriginalName)

	stored, err := f.store.Tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Attachments, 2)
}

func TestCreateTicket_AttachmentFailureCleansUp(t *testing.T) {
	f := newFixture(t)
	store := &fakeAttachments{failAt: 2}
	f.tickets.attachments = store

	_, err := f.tickets.CreateTicket(context.Background(), f.station, TicketCreateInput{
		Title: "Receipt printer", Description: "Paper jam", Priority: domain.TicketPriorityLow,
		Uploads: []storage.Upload{upload("a.log"), upload("b.txt")},
	})
	requireCode(t, err, apperrors.CodeInternal)
	assert.Len(t, store.removed, 1)

	_, total, err := f.store.Tickets.List(context.Background(), stationFilter(f.station.ID))
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreateTicket_DiskStoreRejectsExtension(t *testing.T) {
	f := newFixture(t)
	disk, err := storage.NewDiskStore(config.UploadConfig{
		Dir: t.TempDir(), MaxFiles: 5, MaxFileSizeMB: 1, AllowedExtensions: []string{"txt"},
	})
	require.NoError(t, err)
	f.tickets.attachments = disk

	_, err = f.tickets.CreateTicket(context.Background(), f.station, TicketCreateInput{
		Title: "Receipt printer", Description: "Paper jam", Priority: domain.TicketPriorityLow,
		Uploads: []storage.Upload{upload("malware.exe")},
	})
	requireCode(t, err, apperrors.CodeValidation)
}

func TestListTickets_StationScopedAndInternalCommentsStripped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	own := f.createTicket(t, f.station, domain.TicketPriorityLow)
	f.createTicket(t, f.station2, domain.TicketPriorityLow)

	_, err := f.tickets.AddComment(ctx, f.agent, own.ID, "checking logs", true)
	require.NoError(t, err)
	_, err = f.tickets.AddComment(ctx, f.agent, own.ID, "on our way", false)
	require.NoError(t, err)

	page, err := f.tickets.ListTickets(ctx, f.station, TicketListFilter{ReportedBy: strPtr(f.station2.ID)})
	require.NoError(t, err)
	require.Len(t, page.Tickets, 1)
	assert.Equal(t, own.ID, page.Tickets[0].ID)
	require.Len(t, page.Tickets[0].Comments, 1)
	assert.Equal(t, "on our way", page.Tickets[0].Comments[0].Content)

	staffPage, err := f.tickets.ListTickets(ctx, f.agent, TicketListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, staffPage.Pagination.TotalItems)
}

func TestListTickets_PaginationAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.createTicket(t, f.station, domain.TicketPriorityMedium)
	}
	f.createTicket(t, f.station2, domain.TicketPriorityCritical)

	page, err := f.tickets.ListTickets(ctx, f.agent, TicketListFilter{Page: 2, Limit: 4})
	require.NoError(t, err)
	assert.Len(t, page.Tickets, 2)
	assert.Equal(t, Pagination{CurrentPage: 2, TotalPages: 2, TotalItems: 6, ItemsPerPage: 4}, page.Pagination)

	critical := domain.TicketPriorityCritical
	page, err = f.tickets.ListTickets(ctx, f.agent, TicketListFilter{Priority: &critical})
	require.NoError(t, err)
	require.Len(t, page.Tickets, 1)
	assert.Equal(t, "Highway Station", page.Tickets[0].GasStationLocation)

	page, err = f.tickets.ListTickets(ctx, f.agent, TicketListFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.Pagination.ItemsPerPage)
}

func stationFilter(reporterID string) repository.TicketFilter {
	return repository.TicketFilter{ReportedBy: &reporterID}
}

func findNotification(items []*domain.Notification, kind domain.NotificationType) *domain.Notification {
	for _, item := range items {
		if item.Type == kind {
			return item
		}
	}
	return nil
}

func TestGetTicket_Access(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityLow)

	_, err := f.tickets.GetTicket(ctx, f.station2, ticket.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.tickets.GetTicket(ctx, f.agent, "missing")
	requireCode(t, err, apperrors.CodeNotFound)

	got, err := f.tickets.GetTicket(ctx, f.station, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.Title, got.Title)
}

func TestUpdateTicket_StatusLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityMedium)

	updated, err := f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{Status: statusPtr(domain.TicketStatusInProgress)})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	assert.Nil(t, updated.ActualResolutionTime)

	updated, err = f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{Status: statusPtr(domain.TicketStatusResolved)})
	require.NoError(t, err)
	require.NotNil(t, updated.ActualResolutionTime)
	resolvedAt := *updated.ActualResolutionTime

	updated, err = f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{Status: statusPtr(domain.TicketStatusResolved)})
	require.NoError(t, err)
	assert.True(t, resolvedAt.Equal(*updated.ActualResolutionTime))

	var statusNotes int
	for _, n := range f.inbox(t, f.station) {
		if n.Type == domain.NotificationStatusChange {
			statusNotes++
		}
	}
	assert.Equal(t, 2, statusNotes)

	history, err := f.tickets.History(ctx, f.admin, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, domain.ChangeTypeStatus, history[0].ChangeType)
}

func TestUpdateTicket_ForwardOnlyRejectsReopen(t *testing.T) {
	f := newFixture(t, withForwardOnly())
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityMedium)

	_, err := f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{Status: statusPtr(domain.TicketStatusClosed)})
	requireCode(t, err, apperrors.CodeConflict)

	for _, next := range []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed} {
		_, err = f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{Status: statusPtr(next)})
		require.NoError(t, err, next)
	}

	_, err = f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{Status: statusPtr(domain.TicketStatusOpen)})
	requireCode(t, err, apperrors.CodeConflict)

	stored, err := f.store.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
}

func TestUpdateTicket_RejectsStationAndBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityMedium)

	_, err := f.tickets.UpdateTicket(ctx, f.station, ticket.ID, TicketPatch{Priority: priorityPtr(domain.TicketPriorityCritical)})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{Status: statusPtr("pending")})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{AssignedTo: strPtr(f.station2.ID)})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{AssignedTo: strPtr("nobody")})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.tickets.UpdateTicket(ctx, f.agent, "missing", TicketPatch{})
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestUpdateTicket_PriorityRecomputesUrgency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityLow)
	assert.False(t, ticket.IsUrgent)

	updated, err := f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{Priority: priorityPtr(domain.TicketPriorityHigh)})
	require.NoError(t, err)
	assert.True(t, updated.IsUrgent)

	updated, err = f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{Priority: priorityPtr(domain.TicketPriorityMedium)})
	require.NoError(t, err)
	assert.False(t, updated.IsUrgent)
}

func TestUpdateTicket_AssignmentNotifiesAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityCritical)
	before := len(f.inbox(t, f.agent2))

	eta := time.Now().Add(2 * time.Hour)
	updated, err := f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{
		AssignedTo:              strPtr(f.agent2.ID),
		EstimatedResolutionTime: &eta,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, f.agent2.ID, *updated.AssignedTo)
	require.NotNil(t, updated.EstimatedResolutionTime)

	items := f.inbox(t, f.agent2)
	require.Len(t, items, before+1)
	assigned := findNotification(items, domain.NotificationTicketAssigned)
	require.NotNil(t, assigned)
	assert.Equal(t, domain.NotificationPriorityHigh, assigned.Priority)

	self, err := f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{AssignedTo: strPtr(f.agent.ID)})
	require.NoError(t, err)
	assert.Equal(t, f.agent.ID, *self.AssignedTo)
	assert.Nil(t, findNotification(f.inbox(t, f.agent), domain.NotificationTicketAssigned))

	cleared, err := f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{AssignedTo: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, cleared.AssignedTo)
}

func TestAddComment_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityMedium)
	_, err := f.tickets.UpdateTicket(ctx, f.agent, ticket.ID, TicketPatch{AssignedTo: strPtr(f.agent2.ID)})
	require.NoError(t, err)

	_, err = f.tickets.AddComment(ctx, f.station, ticket.ID, "secret", true)
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.tickets.AddComment(ctx, f.station2, ticket.ID, "hello", false)
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.tickets.AddComment(ctx, f.station, ticket.ID, "<p></p>", false)
	requireCode(t, err, apperrors.CodeValidation)

	countComments := func(user *domain.User) int {
		n := 0
		for _, item := range f.inbox(t, user) {
			if item.Type == domain.NotificationCommentAdded {
				n++
			}
		}
		return n
	}

	_, err = f.tickets.AddComment(ctx, f.agent, ticket.ID, "internal note", true)
	require.NoError(t, err)
	assert.Zero(t, countComments(f.station))
	assert.Zero(t, countComments(f.agent2))

	comment, err := f.tickets.AddComment(ctx, f.station, ticket.ID, "still broken", false)
	require.NoError(t, err)
	assert.Equal(t, f.station.ID, comment.AuthorID)
	assert.Zero(t, countComments(f.station))
	assert.Equal(t, 1, countComments(f.agent2))

	_, err = f.tickets.AddComment(ctx, f.agent2, ticket.ID, "replacing the nozzle", false)
	require.NoError(t, err)
	assert.Equal(t, 1, countComments(f.station))
	assert.Equal(t, 1, countComments(f.agent2))

	stored, err := f.tickets.GetTicket(ctx, f.agent, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Comments, 3)
}

func TestStats_StaffOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTicket(t, f.station, domain.TicketPriorityHigh)
	f.createTicket(t, f.station, domain.TicketPriorityLow)
	f.createTicket(t, f.station2, domain.TicketPriorityLow)

	_, err := f.tickets.Stats(ctx, f.station)
	requireCode(t, err, apperrors.CodeForbidden)

	stats, err := f.tickets.Stats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByPriority[domain.TicketPriorityLow])
	require.NotEmpty(t, stats.TopLocations)
	assert.Equal(t, "Downtown Station", stats.TopLocations[0].Location)
}

func TestResolvePeople(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityLow)
	_, err := f.tickets.AddComment(ctx, f.agent, ticket.ID, "on it", false)
	require.NoError(t, err)
	full, err := f.tickets.GetTicket(ctx, f.agent, ticket.ID)
	require.NoError(t, err)

	people := f.tickets.ResolvePeople(ctx, full)
	assert.Len(t, people, 2)
	assert.Equal(t, f.station.Email, people[f.station.ID].Email)
	assert.Equal(t, domain.RoleHelpDesk, people[f.agent.ID].Role)
}
