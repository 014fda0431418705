package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/station-helpdesk/internal/api/dto"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/service"
)

// UsersHandler exposes account administration.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(userService *service.UserService) *UsersHandler {
	return &UsersHandler{users: userService}
}

// List handles GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	requester, err := currentUser(c)
	if err != nil {
		return err
	}
	var q dto.UserListQuery
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	filter := service.UserListFilter{}
	if q.Role != "" {
		role := domain.Role(q.Role)
		filter.Role = &role
	}
	if filter.IsActive, err = parseBoolParam("is_active", q.IsActive); err != nil {
		return err
	}

	users, err := h.users.List(c.UserContext(), requester, filter)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.NewUserResponses(users))
}

// BulkActivation handles PUT /api/users.
func (h *UsersHandler) BulkActivation(c *fiber.Ctx) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.BulkActivationRequest
	if err := bindJSON(c, &req, true); err != nil {
		return err
	}
	updated, err := h.users.SetActivation(c.UserContext(), admin, req.UserIDs, *req.IsActive)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.BulkActivationResponse{Updated: updated})
}

// Get handles GET /api/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}
	user, err := h.users.Get(c.UserContext(), admin, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.NewUserResponse(user))
}

// Update handles PUT /api/users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.AdminUpdateUserRequest
	if err := bindJSON(c, &req, true); err != nil {
		return err
	}

	patch := service.UserPatch{
		Email:              req.Email,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Phone:              req.Phone,
		GasStationLocation: req.GasStationLocation,
		IsActive:           req.IsActive,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		patch.Role = &role
	}

	user, err := h.users.Update(c.UserContext(), admin, c.Params("id"), patch)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.NewUserResponse(user))
}

// Delete handles DELETE /api/users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	admin, err := currentUser(c)
	if err != nil {
		return err
	}
	outcome, err := h.users.Delete(c.UserContext(), admin, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, fiber.Map{"id": c.Params("id"), "outcome": outcome})
}
