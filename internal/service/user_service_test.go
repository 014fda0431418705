package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository"
	"github.com/spec-kit/station-helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, token, exp, err := f.auth.Login(ctx, "  Agent@Helpdesk.com ", "password123")
	require.NoError(t, err)
	assert.Equal(t, f.agent.ID, user.ID)
	assert.NotEmpty(t, token)
	assert.False(t, exp.IsZero())
	require.NotNil(t, user.LastLogin)

	stored, err := f.store.Users.GetByID(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)

	claims, err := f.auth.TokenManager().ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, f.agent.ID, claims.UserID)

	_, _, _, err = f.auth.Login(ctx, "agent@helpdesk.com", "wrong")
	requireCode(t, err, apperrors.CodeUnauthed)

	_, _, _, err = f.auth.Login(ctx, "ghost@helpdesk.com", "password123")
	requireCode(t, err, apperrors.CodeUnauthed)
}

func TestLogin_InactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.users.SetActivation(ctx, f.admin, []string{f.station.ID}, false)
	require.NoError(t, err)

	_, _, _, err = f.auth.Login(ctx, "station@helpdesk.com", "password123")
	requireCode(t, err, apperrors.CodeUnauthed)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := RegisterInput{
		Username:           "station3",
		Email:              "Station3@Helpdesk.com",
		Password:           "secret99",
		FirstName:          "Third",
		LastName:           "Station",
		Role:               domain.RoleGasStation,
		GasStationLocation: "Airport Station",
	}

	_, err := f.auth.Register(ctx, f.agent, input)
	requireCode(t, err, apperrors.CodeForbidden)

	user, err := f.auth.Register(ctx, f.admin, input)
	require.NoError(t, err)
	assert.Equal(t, "station3@helpdesk.com", user.Email)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "secret99", user.PasswordHash)

	_, _, _, err = f.auth.Login(ctx, "station3@helpdesk.com", "secret99")
	require.NoError(t, err)

	_, err = f.auth.Register(ctx, f.admin, input)
	requireCode(t, err, apperrors.CodeConflict)

	input.Username = "another"
	input.Email = "another@helpdesk.com"
	input.GasStationLocation = ""
	_, err = f.auth.Register(ctx, f.admin, input)
	requireCode(t, err, apperrors.CodeValidation)
}

func TestUpdateProfileAndChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	updated, err := f.auth.UpdateProfile(ctx, f.station, ProfilePatch{Phone: strPtr(" 555-0101 ")})
	require.NoError(t, err)
	assert.Equal(t, "555-0101", updated.Phone)
	assert.Equal(t, f.station.FirstName, updated.FirstName)

	_, err = f.auth.UpdateProfile(ctx, f.station, ProfilePatch{FirstName: strPtr("  ")})
	requireCode(t, err, apperrors.CodeValidation)

	err = f.auth.ChangePassword(ctx, f.station, "nope", "newpass1")
	requireCode(t, err, apperrors.CodeValidation)

	require.NoError(t, f.auth.ChangePassword(ctx, f.station, "password123", "newpass1"))
	_, _, _, err = f.auth.Login(ctx, "station@helpdesk.com", "newpass1")
	require.NoError(t, err)
}

func TestUserService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.List(ctx, f.station, UserListFilter{})
	requireCode(t, err, apperrors.CodeForbidden)

	role := domain.RoleGasStation
	users, err := f.users.List(ctx, f.agent, UserListFilter{Role: &role})
	require.NoError(t, err)
	assert.Len(t, users, 2)

	all, err := f.users.List(ctx, f.admin, UserListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestUserService_UpdateKeepsInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.Update(ctx, f.agent, f.station.ID, UserPatch{Phone: strPtr("1")})
	requireCode(t, err, apperrors.CodeForbidden)

	station := domain.RoleGasStation
	_, err = f.users.Update(ctx, f.admin, f.agent.ID, UserPatch{Role: &station})
	requireCode(t, err, apperrors.CodeValidation)

	updated, err := f.users.Update(ctx, f.admin, f.agent.ID, UserPatch{Role: &station, GasStationLocation: strPtr("North Station")})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGasStation, updated.Role)

	_, err = f.users.Update(ctx, f.admin, f.agent2.ID, UserPatch{Email: strPtr("station@helpdesk.com")})
	requireCode(t, err, apperrors.CodeConflict)

	_, err = f.users.Update(ctx, f.admin, f.admin.ID, UserPatch{IsActive: boolPtr(false)})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.users.Get(ctx, f.admin, "missing")
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestUserService_SetActivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.SetActivation(ctx, f.admin, []string{f.admin.ID, f.agent.ID}, false)
	requireCode(t, err, apperrors.CodeValidation)

	n, err := f.users.SetActivation(ctx, f.admin, []string{f.agent.ID, f.station.ID, "missing"}, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	inactive := false
	users, err := f.users.List(ctx, f.admin, UserListFilter{IsActive: &inactive})
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestUserService_DeleteBlockPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTicket(t, f.station, domain.TicketPriorityLow)

	_, err := f.users.Delete(ctx, f.admin, f.station.ID)
	requireCode(t, err, apperrors.CodeConflict)

	_, err = f.users.Delete(ctx, f.admin, f.admin.ID)
	requireCode(t, err, apperrors.CodeValidation)

	require.NotEmpty(t, f.inbox(t, f.agent))
	outcome, err := f.users.Delete(ctx, f.admin, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteOutcomeDeleted, outcome)

	_, err = f.store.Users.GetByID(ctx, f.agent.ID)
	assert.Error(t, err)
	count, err := f.store.Notifications.CountUnread(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUserService_DeleteDeactivatePolicy(t *testing.T) {
	f := newFixture(t, withDeletePolicy(config.UserDeletePolicyDeactivate))
	ctx := context.Background()
	f.createTicket(t, f.station, domain.TicketPriorityLow)

	outcome, err := f.users.Delete(ctx, f.admin, f.station.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteOutcomeDeactivated, outcome)

	stored, err := f.store.Users.GetByID(ctx, f.station.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestUserService_DeleteRefusesCommentAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityLow)

	_, err := f.tickets.AddComment(ctx, f.agent2, ticket.ID, "Checking the pump controller", false)
	require.NoError(t, err)

	_, err = f.users.Delete(ctx, f.admin, f.agent2.ID)
	requireCode(t, err, apperrors.CodeConflict)

	_, err = f.store.Users.GetByID(ctx, f.agent2.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, f.inbox(t, f.agent2))
}

func TestUserService_DeleteRefusesHistoryActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityLow)

	_, err := f.tickets.UpdateTicket(ctx, f.agent2, ticket.ID, TicketPatch{Status: statusPtr(domain.TicketStatusInProgress)})
	require.NoError(t, err)

	_, err = f.users.Delete(ctx, f.admin, f.agent2.ID)
	requireCode(t, err, apperrors.CodeConflict)
	assert.NotEmpty(t, f.inbox(t, f.agent2))
}

func TestUserService_DeleteDeactivatesCommentAuthor(t *testing.T) {
	f := newFixture(t, withDeletePolicy(config.UserDeletePolicyDeactivate))
	ctx := context.Background()
	ticket := f.createTicket(t, f.station, domain.TicketPriorityLow)
	_, err := f.tickets.AddComment(ctx, f.agent2, ticket.ID, "Parts ordered", true)
	require.NoError(t, err)

	outcome, err := f.users.Delete(ctx, f.admin, f.agent2.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteOutcomeDeactivated, outcome)

	stored, err := f.tickets.GetTicket(ctx, f.admin, ticket.ID)
	require.NoError(t, err)
	require.Len(t, stored.Comments, 1)
	people := f.tickets.ResolvePeople(ctx, stored)
	assert.Contains(t, people, stored.Comments[0].AuthorID)
}

type referencedUsers struct {
	*memory.UserRepository
}

func (r referencedUsers) Delete(context.Context, string) error {
	return repository.ErrReferenced
}

func TestUserService_RefusedDeleteKeepsNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createTicket(t, f.station, domain.TicketPriorityLow)
	require.NotEmpty(t, f.inbox(t, f.agent2))

	svc := NewUserService(UserDependencies{
		UserRepo:         referencedUsers{UserRepository: f.store.Users},
		TicketRepo:       f.store.Tickets,
		HistoryRepo:      f.store.History,
		NotificationRepo: f.store.Notifications,
	})
	_, err := svc.Delete(ctx, f.admin, f.agent2.ID)
	requireCode(t, err, apperrors.CodeConflict)
	assert.NotEmpty(t, f.inbox(t, f.agent2))
}
