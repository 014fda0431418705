package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/station-helpdesk/internal/domain"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

// RequireRoles ensures the principal has one of the allowed roles.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.Role()]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireStaff admits admin and help-desk users.
func RequireStaff() fiber.Handler {
	return RequireRoles(domain.RoleAdmin, domain.RoleHelpDesk)
}

// RequireAdmin admits admins only.
func RequireAdmin() fiber.Handler {
	return RequireRoles(domain.RoleAdmin)
}

// Capability names an action checked against a user and, optionally, a ticket.
type Capability string

const (
	CapAdmin           Capability = "admin"
	CapHelpDeskOrAdmin Capability = "help_desk_or_admin"
	CapStationOwner    Capability = "station_owner"
	CapViewTicket      Capability = "view_ticket"
	CapCreateTicket    Capability = "create_ticket"
)

// Authorize returns nil when user holds capability, otherwise a FORBIDDEN error.
// Ticket-scoped capabilities require a non-nil ticket.
func Authorize(user *domain.User, capability Capability, ticket *domain.Ticket) error {
	if user == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !user.IsActive {
		return apperrors.NewForbidden("account is deactivated")
	}

	allowed := false
	switch capability {
	case CapAdmin:
		allowed = user.Role == domain.RoleAdmin
	case CapHelpDeskOrAdmin:
		allowed = user.IsStaff()
	case CapCreateTicket:
		allowed = user.Role == domain.RoleGasStation
	case CapStationOwner:
		allowed = ownsTicket(user, ticket)
	case CapViewTicket:
		allowed = user.IsStaff() || ownsTicket(user, ticket)
	}
	if !allowed {
		return apperrors.NewForbidden("access denied")
	}
	return nil
}

func ownsTicket(user *domain.User, ticket *domain.Ticket) bool {
	return ticket != nil && user.Role == domain.RoleGasStation && ticket.ReportedBy == user.ID
}
