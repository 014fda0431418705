package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/station-helpdesk/internal/api/dto"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/service"
)

// AuthHandler exposes login, registration and self-service account endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := bindJSON(c, &req, false); err != nil {
		return err
	}

	user, token, exp, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.AuthResponse{
		Token:     token,
		ExpiresAt: exp,
		User:      dto.NewUserResponse(user),
	})
}

// Register handles POST /api/auth/register (admin only).
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.RegisterRequest
	if err := bindJSON(c, &req, false); err != nil {
		return err
	}

	user, err := h.auth.Register(c.UserContext(), admin, service.RegisterInput{
		Username:           req.Username,
		Email:              req.Email,
		Password:           req.Password,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Phone:              req.Phone,
		Role:               domain.Role(req.Role),
		GasStationLocation: req.GasStationLocation,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, dto.NewUserResponse(user))
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	current, err := h.auth.Me(c.UserContext(), user)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.NewUserResponse(current))
}

// UpdateMe handles PUT /api/auth/me.
func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.UpdateProfileRequest
	if err := bindJSON(c, &req, true); err != nil {
		return err
	}

	updated, err := h.auth.UpdateProfile(c.UserContext(), user, service.ProfilePatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.NewUserResponse(updated))
}

// ChangePassword handles POST /api/auth/change-password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.ChangePasswordRequest
	if err := bindJSON(c, &req, false); err != nil {
		return err
	}
	if err := h.auth.ChangePassword(c.UserContext(), user, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, fiber.Map{"message": "password updated"})
}
