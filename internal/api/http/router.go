package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/station-helpdesk/internal/api/dto"
	"github.com/spec-kit/station-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Users          *handlers.UsersHandler
	Notifications  *handlers.NotificationsHandler
	Realtime       *handlers.RealtimeHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
	UploadsDir     string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}
	if cfg.UploadsDir != "" {
		app.Static(dto.UploadsURLPrefix, cfg.UploadsDir, fiber.Static{Browse: false})
	}

	api := app.Group("/api")
	protected := cfg.AuthMiddleware.Handle

	authGroup := api.Group("/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/register", protected, auth.RequireAdmin(), cfg.Auth.Register)
	authGroup.Get("/me", protected, cfg.Auth.Me)
	authGroup.Put("/me", protected, cfg.Auth.UpdateMe)
	authGroup.Post("/change-password", protected, cfg.Auth.ChangePassword)

	tickets := api.Group("/tickets", protected)
	tickets.Post("/", auth.RequireRoles(domain.RoleGasStation), cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/stats/overview", auth.RequireStaff(), cfg.Tickets.Stats)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", auth.RequireStaff(), cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)
	tickets.Get("/:id/history", auth.RequireStaff(), cfg.Tickets.History)

	users := api.Group("/users", protected)
	users.Get("/", auth.RequireStaff(), cfg.Users.List)
	users.Put("/", auth.RequireAdmin(), cfg.Users.BulkActivation)
	users.Get("/:id", auth.RequireAdmin(), cfg.Users.Get)
	users.Put("/:id", auth.RequireAdmin(), cfg.Users.Update)
	users.Delete("/:id", auth.RequireAdmin(), cfg.Users.Delete)

	notifications := api.Group("/notifications", protected)
	notifications.Get("/", cfg.Notifications.List)
	notifications.Put("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Put("/:id/read", cfg.Notifications.MarkRead)
	notifications.Delete("/:id", cfg.Notifications.Delete)

	if cfg.Realtime != nil {
		app.Get("/ws", cfg.Realtime.RequireUpgrade, cfg.AuthMiddleware.HandleUpgrade, cfg.Realtime.Serve())
	}
}
