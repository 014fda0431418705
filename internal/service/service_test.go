package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/events"
	"github.com/spec-kit/station-helpdesk/internal/realtime"
	"github.com/spec-kit/station-helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

type fixture struct {
	store         *memory.Store
	hub           *realtime.Hub
	tickets       *TicketService
	notifications *NotificationService
	auth          *AuthService
	users         *UserService

	admin    *domain.User
	agent    *domain.User
	agent2   *domain.User
	station  *domain.User
	station2 *domain.User
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	policy       domain.TransitionPolicy
	deletePolicy string
}

func withForwardOnly() fixtureOption {
	return func(c *fixtureConfig) { c.policy = domain.TransitionForwardOnly }
}

func withDeletePolicy(policy string) fixtureOption {
	return func(c *fixtureConfig) { c.deletePolicy = policy }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{policy: domain.TransitionFree}
	for _, opt := range opts {
		opt(&cfg)
	}

	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	hub := realtime.NewHub(16, nil, nil)

	f := &fixture{store: store, hub: hub}
	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo:  store.Tickets,
		UserRepo:    store.Users,
		HistoryRepo: store.History,
		Dispatcher:  dispatcher,
		Policy:      cfg.policy,
	})
	f.notifications = NewNotificationService(NotificationDependencies{
		Dispatcher:       dispatcher,
		NotificationRepo: store.Notifications,
		UserRepo:         store.Users,
		Publisher:        hub,
	})
	f.notifications.RegisterHandlers()
	f.auth = NewAuthService(config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 60,
		BcryptCost:            4,
	}}, AuthDependencies{UserRepo: store.Users})
	f.users = NewUserService(UserDependencies{
		UserRepo:         store.Users,
		TicketRepo:       store.Tickets,
		HistoryRepo:      store.History,
		NotificationRepo: store.Notifications,
		DeletePolicy:     cfg.deletePolicy,
	})

	f.admin = f.seedUser(t, "admin", domain.RoleAdmin, "")
	f.agent = f.seedUser(t, "agent", domain.RoleHelpDesk, "")
	f.agent2 = f.seedUser(t, "agent2", domain.RoleHelpDesk, "")
	f.station = f.seedUser(t, "station", domain.RoleGasStation, "Downtown Station")
	f.station2 = f.seedUser(t, "station2", domain.RoleGasStation, "Highway Station")
	return f
}

func (f *fixture) seedUser(t *testing.T, name string, role domain.Role, location string) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword("password123", 4)
	require.NoError(t, err)
	user := &domain.User{
		Username:           name,
		Email:              name + "@helpdesk.com",
		PasswordHash:       hash,
		FirstName:          name,
		LastName:           "User",
		Role:               role,
		GasStationLocation: location,
		IsActive:           true,
	}
	require.NoError(t, f.store.Users.Create(context.Background(), user))
	return user
}

func (f *fixture) createTicket(t *testing.T, reporter *domain.User, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), reporter, TicketCreateInput{
		Title:       "Pump 3 not dispensing",
		Description: "Display shows error E42",
		Priority:    priority,
		Category:    domain.TicketCategoryFuelSystem,
	})
	require.NoError(t, err)
	return ticket
}

func (f *fixture) inbox(t *testing.T, user *domain.User) []*domain.Notification {
	t.Helper()
	page, err := f.notifications.List(context.Background(), user, NotificationListFilter{})
	require.NoError(t, err)
	return page.Items
}

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }

func priorityPtr(p domain.TicketPriority) *domain.TicketPriority { return &p }

func strPtr(s string) *string { return &s }

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.ToDomainError(err).Code, err.Error())
}
