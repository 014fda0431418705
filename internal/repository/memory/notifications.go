package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository"
)

// NotificationRepository keeps notifications keyed by id.
type NotificationRepository struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository builds an empty notification repository.
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{notifications: map[string]*domain.Notification{}}
}

func copyNotification(n *domain.Notification) *domain.Notification {
	clone := *n
	if n.ReadAt != nil {
		v := *n.ReadAt
		clone.ReadAt = &v
	}
	if n.RelatedTicketID != nil {
		v := *n.RelatedTicketID
		clone.RelatedTicketID = &v
	}
	clone.Metadata = make(map[string]any, len(n.Metadata))
	for k, v := range n.Metadata {
		clone.Metadata[k] = v
	}
	return &clone
}

func (r *NotificationRepository) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = now()
	r.notifications[n.ID] = copyNotification(n)
	return nil
}

func (r *NotificationRepository) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notifications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyNotification(n), nil
}

func (r *NotificationRepository) ListByRecipient(_ context.Context, recipientID string, filter repository.NotificationFilter) ([]*domain.Notification, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*domain.Notification{}
	for _, n := range r.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		matched = append(matched, n)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	page := filter.Page.Normalize()
	if page.Offset >= total {
		return []*domain.Notification{}, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	result := make([]*domain.Notification, 0, end-page.Offset)
	for _, n := range matched[page.Offset:end] {
		result = append(result, copyNotification(n))
	}
	return result, total, nil
}

func (r *NotificationRepository) CountUnread(_ context.Context, recipientID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok {
		return repository.ErrNotFound
	}
	n.MarkRead(at)
	return nil
}

func (r *NotificationRepository) MarkAllRead(_ context.Context, recipientID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updated int64
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			n.MarkRead(at)
			updated++
		}
	}
	return updated, nil
}

func (r *NotificationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notifications[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.notifications, id)
	return nil
}

func (r *NotificationRepository) DeleteByRecipient(_ context.Context, recipientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, n := range r.notifications {
		if n.RecipientID == recipientID {
			delete(r.notifications, id)
		}
	}
	return nil
}

// TicketHistoryRepository keeps audit entries per ticket in insertion order.
type TicketHistoryRepository struct {
	mu      sync.RWMutex
	entries map[string][]domain.TicketHistory
}

var _ repository.TicketHistoryRepository = (*TicketHistoryRepository)(nil)

// NewTicketHistoryRepository builds an empty history repository.
func NewTicketHistoryRepository() *TicketHistoryRepository {
	return &TicketHistoryRepository{entries: map[string][]domain.TicketHistory{}}
}

func (r *TicketHistoryRepository) Create(_ context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	history.CreatedAt = now()
	r.entries[history.TicketID] = append(r.entries[history.TicketID], *history)
	return nil
}

func (r *TicketHistoryRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.TicketHistory{}, r.entries[ticketID]...), nil
}

func (r *TicketHistoryRepository) CountByUser(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, entries := range r.entries {
		for _, entry := range entries {
			if entry.ChangedBy == userID {
				n++
			}
		}
	}
	return n, nil
}
