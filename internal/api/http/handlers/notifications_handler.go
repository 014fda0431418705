package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/station-helpdesk/internal/api/dto"
	"github.com/spec-kit/station-helpdesk/internal/service"
)

// NotificationsHandler serves the caller's notification inbox.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notificationService *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notificationService}
}

// List handles GET /api/notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var q dto.NotificationListQuery
	if err := bindQuery(c, &q); err != nil {
		return err
	}

	page, err := h.notifications.List(c.UserContext(), user, service.NotificationListFilter{
		UnreadOnly: q.UnreadOnly,
		Page:       q.Page,
		Limit:      q.Limit,
	})
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(page.Items))
	for _, n := range page.Items {
		items = append(items, dto.NewNotificationResponse(n))
	}
	return respond(c, http.StatusOK, dto.NotificationListResponse{
		Notifications: items,
		Pagination:    paginationResponse(page.Pagination),
		UnreadCount:   page.UnreadCount,
	})
}

// MarkRead handles PUT /api/notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	n, err := h.notifications.MarkRead(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.NewNotificationResponse(n))
}

// MarkAllRead handles PUT /api/notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	updated, err := h.notifications.MarkAllRead(c.UserContext(), user)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.MarkAllReadResponse{Updated: updated})
}

// Delete handles DELETE /api/notifications/:id.
func (h *NotificationsHandler) Delete(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.notifications.Delete(c.UserContext(), user, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
