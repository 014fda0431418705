package handlers

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/station-helpdesk/internal/api/dto"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/service"
	"github.com/spec-kit/station-helpdesk/internal/storage"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

// TicketsHandler serves the ticket endpoints for every role.
type TicketsHandler struct {
	tickets *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService}
}

// CreateTicket POST /api/tickets. Accepts JSON or multipart with attachments.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var (
		req     dto.CreateTicketRequest
		uploads []storage.Upload
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		uploads, err = bindMultipartTicket(c, &req)
	} else {
		err = bindJSON(c, &req, false)
	}
	if err != nil {
		return err
	}

	input := service.TicketCreateInput{
		Title:              req.Title,
		Description:        req.Description,
		Priority:           domain.TicketPriority(req.Priority),
		Category:           domain.TicketCategory(req.Category),
		GasStationLocation: req.GasStationLocation,
		Tags:               req.Tags,
		Uploads:            uploads,
	}
	if req.CustomerContact != nil {
		input.CustomerContact = &domain.CustomerContact{
			Name:  req.CustomerContact.Name,
			Phone: req.CustomerContact.Phone,
			Email: req.CustomerContact.Email,
		}
	}

	ticket, err := h.tickets.CreateTicket(c.UserContext(), user, input)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, h.render(c, ticket))
}

func bindMultipartTicket(c *fiber.Ctx, req *dto.CreateTicketRequest) ([]storage.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperrors.NewValidationError("invalid multipart payload", nil)
	}
	value := func(key string) string {
		if vals := form.Value[key]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	req.Title = value("title")
	req.Description = value("description")
	req.Priority = value("priority")
	req.Category = value("category")
	req.GasStationLocation = value("gas_station_location")
	for _, raw := range form.Value["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				req.Tags = append(req.Tags, tag)
			}
		}
	}
	if raw := value("customer_contact"); raw != "" {
		var contact dto.CustomerContactRequest
		if err := json.Unmarshal([]byte(raw), &contact); err != nil {
			return nil, apperrors.NewFieldValidationError([]apperrors.FieldError{{
				Field: "customer_contact", Message: "must be a JSON object",
			}})
		}
		req.CustomerContact = &contact
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	files := form.File["attachments"]
	uploads := make([]storage.Upload, 0, len(files))
	for _, fh := range files {
		uploads = append(uploads, fileUpload(fh))
	}
	return uploads, nil
}

func fileUpload(fh *multipart.FileHeader) storage.Upload {
	return storage.Upload{
		OriginalName: fh.Filename,
		Size:         fh.Size,
		MimeType:     fh.Header.Get(fiber.HeaderContentType),
		Open: func() (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var q dto.TicketListQuery
	if err := bindQuery(c, &q); err != nil {
		return err
	}
	filter, err := ticketFilterFromQuery(q)
	if err != nil {
		return err
	}

	page, err := h.tickets.ListTickets(c.UserContext(), user, filter)
	if err != nil {
		return err
	}
	people := dto.People(h.tickets.ResolvePeople(c.UserContext(), page.Tickets...))
	items := make([]dto.TicketResponse, 0, len(page.Tickets))
	for _, ticket := range page.Tickets {
		items = append(items, dto.NewTicketResponse(ticket, people))
	}
	return respond(c, http.StatusOK, dto.TicketListResponse{
		Tickets:    items,
		Pagination: paginationResponse(page.Pagination),
	})
}

func ticketFilterFromQuery(q dto.TicketListQuery) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{Page: q.Page, Limit: q.Limit}
	if q.Status != "" {
		status := domain.TicketStatus(q.Status)
		filter.Status = &status
	}
	if q.Priority != "" {
		priority := domain.TicketPriority(q.Priority)
		filter.Priority = &priority
	}
	if q.Category != "" {
		category := domain.TicketCategory(q.Category)
		filter.Category = &category
	}
	if q.Location != "" {
		filter.Location = &q.Location
	}
	if q.AssignedTo != "" {
		filter.AssignedTo = &q.AssignedTo
	}
	if q.ReportedBy != "" {
		filter.ReportedBy = &q.ReportedBy
	}

	var err error
	if filter.DateFrom, err = parseDateParam("date_from", q.DateFrom, false); err != nil {
		return filter, err
	}
	if filter.DateTo, err = parseDateParam("date_to", q.DateTo, true); err != nil {
		return filter, err
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return filter, apperrors.NewFieldValidationError([]apperrors.FieldError{{
			Field: "date_to", Message: "must not be before date_from",
		}})
	}
	return filter, nil
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, h.render(c, ticket))
}

// UpdateTicket PUT /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := bindJSON(c, &req, true); err != nil {
		return err
	}
	if req.Empty() {
		return apperrors.NewValidationError("at least one of status, priority, assigned_to, estimated_resolution_time is required", nil)
	}

	patch := service.TicketPatch{
		AssignedTo:              req.AssignedTo,
		EstimatedResolutionTime: req.EstimatedResolutionTime,
	}
	if req.Status != nil {
		status := domain.TicketStatus(*req.Status)
		patch.Status = &status
	}
	if req.Priority != nil {
		priority := domain.TicketPriority(*req.Priority)
		patch.Priority = &priority
	}

	ticket, err := h.tickets.UpdateTicket(c.UserContext(), user, c.Params("id"), patch)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, h.render(c, ticket))
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.AddCommentRequest
	if err := bindJSON(c, &req, false); err != nil {
		return err
	}

	comment, err := h.tickets.AddComment(c.UserContext(), user, c.Params("id"), req.Content, req.IsInternal)
	if err != nil {
		return err
	}
	people := dto.People{user.ID: user.Summary()}
	return respond(c, http.StatusCreated, dto.NewCommentResponse(comment, people))
}

// Stats GET /api/tickets/stats/overview.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	stats, err := h.tickets.Stats(c.UserContext(), user)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.NewTicketStatsResponse(stats))
}

// History GET /api/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.History(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, dto.NewTicketHistoryResponses(entries))
}

func (h *TicketsHandler) render(c *fiber.Ctx, ticket *domain.Ticket) dto.TicketResponse {
	return dto.NewTicketResponse(ticket, h.tickets.ResolvePeople(c.UserContext(), ticket))
}

func paginationResponse(p service.Pagination) dto.PaginationResponse {
	return dto.PaginationResponse{
		CurrentPage:  p.CurrentPage,
		TotalPages:   p.TotalPages,
		TotalItems:   p.TotalItems,
		ItemsPerPage: p.ItemsPerPage,
	}
}
