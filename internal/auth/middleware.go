package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

// PrincipalLocalsKey is the fiber locals key holding the authenticated *Principal.
const PrincipalLocalsKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User *domain.User
}

// ID returns the caller's user id.
func (p *Principal) ID() string {
	return p.User.ID
}

// Role returns the caller's role.
func (p *Principal) Role() domain.Role {
	return p.User.Role
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	return m.authenticateAndContinue(c, raw)
}

// HandleUpgrade authenticates websocket upgrades, which may carry the token as a query parameter.
func (m *AuthMiddleware) HandleUpgrade(c *fiber.Ctx) error {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		return m.Handle(c)
	}
	raw := c.Query("token")
	if raw == "" {
		return apperrors.NewUnauthorized("missing token")
	}
	return m.authenticateAndContinue(c, raw)
}

func (m *AuthMiddleware) authenticateAndContinue(c *fiber.Ctx, raw string) error {
	principal, err := m.Authenticate(c.UserContext(), raw)
	if err != nil {
		return err
	}
	c.Locals(PrincipalLocalsKey, principal)
	return c.Next()
}

// Authenticate resolves a raw token to an active user.
func (m *AuthMiddleware) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	claims, err := m.tokens.ParseToken(raw)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}

	user, err := m.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, apperrors.MapError(err)
	}
	if !user.IsActive {
		return nil, apperrors.NewUnauthorized("account is deactivated")
	}
	return &Principal{User: user}, nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	return PrincipalFromValue(c.Locals(PrincipalLocalsKey))
}

// PrincipalFromValue unwraps a locals value; used where only the stored value is available.
func PrincipalFromValue(val any) (*Principal, bool) {
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal != nil && principal.User != nil
}
