// Package bootstrap assembles the help-desk server from configuration.
package bootstrap

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/station-helpdesk/internal/api/http"
	"github.com/spec-kit/station-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/events"
	"github.com/spec-kit/station-helpdesk/internal/observability"
	"github.com/spec-kit/station-helpdesk/internal/persistence"
	"github.com/spec-kit/station-helpdesk/internal/realtime"
	"github.com/spec-kit/station-helpdesk/internal/repository"
	"github.com/spec-kit/station-helpdesk/internal/repository/memory"
	"github.com/spec-kit/station-helpdesk/internal/seed"
	"github.com/spec-kit/station-helpdesk/internal/service"
	"github.com/spec-kit/station-helpdesk/internal/storage"
	"github.com/spec-kit/station-helpdesk/internal/worker"
)

// bodyLimit leaves room for the maximum multipart upload plus form fields.
const bodyLimit = 55 * 1024 * 1024

// Repositories is the storage backend the services run on.
type Repositories struct {
	Users         repository.UserRepository
	Tickets       repository.TicketRepository
	Notifications repository.NotificationRepository
	History       repository.TicketHistoryRepository
}

// MemoryRepositories returns repositories over a fresh in-process store.
func MemoryRepositories() Repositories {
	store := memory.NewStore()
	return Repositories{
		Users:         store.Users,
		Tickets:       store.Tickets,
		Notifications: store.Notifications,
		History:       store.History,
	}
}

// PostgresRepositories returns repositories backed by pg.
func PostgresRepositories(pg *persistence.Postgres) Repositories {
	return Repositories{
		Users:         repository.NewUserRepository(pg.Pool),
		Tickets:       repository.NewTicketRepository(pg.Pool),
		Notifications: repository.NewNotificationRepository(pg.Pool),
		History:       repository.NewTicketHistoryRepository(pg.Pool),
	}
}

// Options configures Build. Postgres and Redis may be nil.
type Options struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Repos    Repositories
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
}

// Server is the assembled application.
type Server struct {
	App           *fiber.App
	Hub           *realtime.Hub
	Relay         *realtime.RedisRelay
	Dispatcher    events.Dispatcher
	Auth          *service.AuthService
	Tickets       *service.TicketService
	Users         *service.UserService
	Notifications *service.NotificationService
	Repos         Repositories

	cfg    *config.Config
	logger *zap.Logger
}

// Build wires services, handlers and routes.
func Build(opts Options) (*Server, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	hub := realtime.NewHub(cfg.Realtime.SendBuffer, logger, metrics)
	var publisher realtime.Publisher = hub
	var relay *realtime.RedisRelay
	if opts.Redis.Enabled() {
		relay = realtime.NewRedisRelay(opts.Redis.Client, cfg.Redis.RealtimeChannel, hub, logger)
		publisher = relay
	}

	attachments, err := storage.NewDiskStore(cfg.Uploads)
	if err != nil {
		return nil, err
	}

	policy := domain.TransitionFree
	if cfg.Tickets.ForwardOnlyTransitions {
		policy = domain.TransitionForwardOnly
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	repos := opts.Repos

	authService := service.NewAuthService(*cfg, service.AuthDependencies{UserRepo: repos.Users})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:      repos.Tickets,
		UserRepo:        repos.Users,
		HistoryRepo:     repos.History,
		AttachmentStore: attachments,
		Dispatcher:      dispatcher,
		Policy:          policy,
		Logger:          logger,
	})
	userService := service.NewUserService(service.UserDependencies{
		UserRepo:         repos.Users,
		TicketRepo:       repos.Tickets,
		HistoryRepo:      repos.History,
		NotificationRepo: repos.Notifications,
		DeletePolicy:     cfg.Tickets.UserDeletePolicy,
		Logger:           logger,
	})
	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:       dispatcher,
		NotificationRepo: repos.Notifications,
		UserRepo:         repos.Users,
		Publisher:        publisher,
		Metrics:          metrics,
		Logger:           logger,
		Config:           cfg.Notification,
	})
	worker.StartNotificationWorker(dispatcher, notificationService, realtime.NewBroadcaster(publisher, logger))

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
		BodyLimit:    bodyLimit,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App)

	probes := map[string]handlers.Pinger{}
	if opts.Postgres != nil {
		probes["postgres"] = opts.Postgres
	}
	if opts.Redis != nil {
		probes["redis"] = opts.Redis
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, probes),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Users:          handlers.NewUsersHandler(userService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Realtime:       handlers.NewRealtimeHandler(hub, ticketService, logger),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), repos.Users),
		Metrics:        metrics,
		UploadsDir:     attachments.Dir(),
	})

	return &Server{
		App:           app,
		Hub:           hub,
		Relay:         relay,
		Dispatcher:    dispatcher,
		Auth:          authService,
		Tickets:       ticketService,
		Users:         userService,
		Notifications: notificationService,
		Repos:         repos,
		cfg:           cfg,
		logger:        logger,
	}, nil
}

// Start seeds demo data when enabled and starts background subscribers.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Seed.DemoData {
		if _, err := seed.Users(ctx, s.Repos.Users, s.cfg.Auth.BcryptCost, s.logger); err != nil {
			return err
		}
	}
	worker.StartRealtimeRelay(ctx, s.Relay, s.logger)
	return nil
}
