package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository"
)

// TicketRepository keeps tickets with their comments and attachments.
type TicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository builds an empty ticket repository.
func NewTicketRepository() *TicketRepository {
	return &TicketRepository{tickets: map[string]*domain.Ticket{}}
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	clone := *t
	clone.Attachments = append([]domain.Attachment{}, t.Attachments...)
	clone.Comments = append([]domain.Comment{}, t.Comments...)
	clone.Tags = append([]string{}, t.Tags...)
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		clone.AssignedTo = &v
	}
	if t.EstimatedResolutionTime != nil {
		v := *t.EstimatedResolutionTime
		clone.EstimatedResolutionTime = &v
	}
	if t.ActualResolutionTime != nil {
		v := *t.ActualResolutionTime
		clone.ActualResolutionTime = &v
	}
	if t.CustomerContact != nil {
		v := *t.CustomerContact
		clone.CustomerContact = &v
	}
	return &clone
}

func (r *TicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ts := now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = ts
	}
	ticket.UpdatedAt = ts
	for i := range ticket.Attachments {
		if ticket.Attachments[i].ID == "" {
			ticket.Attachments[i].ID = uuid.NewString()
		}
		ticket.Attachments[i].CreatedAt = ts
	}
	r.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

// Update replaces the scalar fields; comments and attachments are kept from the stored copy.
func (r *TicketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	ticket.UpdatedAt = now()
	stored := copyTicket(ticket)
	stored.CreatedAt = existing.CreatedAt
	stored.Comments = existing.Comments
	stored.Attachments = existing.Attachments
	r.tickets[ticket.ID] = stored
	return nil
}

func (r *TicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyTicket(ticket), nil
}

func (r *TicketRepository) List(_ context.Context, filter repository.TicketFilter) ([]*domain.Ticket, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*domain.Ticket{}
	for _, ticket := range r.tickets {
		if matches(ticket, filter) {
			matched = append(matched, ticket)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	page := filter.Page.Normalize()
	if page.Offset >= total {
		return []*domain.Ticket{}, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}

	result := make([]*domain.Ticket, 0, end-page.Offset)
	for _, ticket := range matched[page.Offset:end] {
		result = append(result, copyTicket(ticket))
	}
	return result, total, nil
}

func matches(t *domain.Ticket, f repository.TicketFilter) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.Category != nil && t.Category != *f.Category {
		return false
	}
	if f.Location != nil {
		needle := strings.ToLower(strings.TrimSpace(*f.Location))
		if needle != "" && !strings.Contains(strings.ToLower(t.GasStationLocation), needle) {
			return false
		}
	}
	if f.AssignedTo != nil && !t.IsAssignedTo(*f.AssignedTo) {
		return false
	}
	if f.ReportedBy != nil && t.ReportedBy != *f.ReportedBy {
		return false
	}
	if f.DateFrom != nil && t.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && t.CreatedAt.After(*f.DateTo) {
		return false
	}
	return true
}

func (r *TicketRepository) AppendComment(_ context.Context, comment *domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[comment.TicketID]
	if !ok {
		return repository.ErrNotFound
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	comment.CreatedAt = now()
	ticket.Comments = append(ticket.Comments, *comment)
	ticket.UpdatedAt = comment.CreatedAt
	return nil
}

func (r *TicketRepository) Stats(_ context.Context) (domain.TicketStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		all = append(all, ticket)
	}
	return domain.ComputeStats(all), nil
}

func (r *TicketRepository) CountByUser(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, ticket := range r.tickets {
		if ticket.ReportedBy == userID || ticket.IsAssignedTo(userID) || commentedBy(ticket, userID) {
			n++
		}
	}
	return n, nil
}

func commentedBy(ticket *domain.Ticket, userID string) bool {
	for _, c := range ticket.Comments {
		if c.AuthorID == userID {
			return true
		}
	}
	return false
}
