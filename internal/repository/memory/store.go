// Package memory provides goroutine-safe in-process repositories used when no
// database is configured and as fakes in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository"
)

// Store bundles the repositories over one shared dataset.
type Store struct {
	Users         *UserRepository
	Tickets       *TicketRepository
	Notifications *NotificationRepository
	History       *TicketHistoryRepository
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{
		Users:         NewUserRepository(),
		Tickets:       NewTicketRepository(),
		Notifications: NewNotificationRepository(),
		History:       NewTicketHistoryRepository(),
	}
}

var now = func() time.Time { return time.Now().UTC() }

// UserRepository keeps users in a map keyed by id.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

var _ repository.UserRepository = (*UserRepository)(nil)

// NewUserRepository builds an empty user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: map[string]*domain.User{}}
}

func copyUser(u *domain.User) *domain.User {
	clone := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		clone.LastLogin = &t
	}
	return &clone
}

func (r *UserRepository) conflicts(user *domain.User) bool {
	for id, existing := range r.users {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(existing.Email, user.Email) || existing.Username == user.Username {
			return true
		}
	}
	return false
}

func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflicts(user) {
		return repository.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	ts := now()
	user.CreatedAt, user.UpdatedAt = ts, ts
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *UserRepository) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.conflicts(user) {
		return repository.ErrDuplicate
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = now()
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(user), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Username == username })
}

func (r *UserRepository) find(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if match(user) {
			return copyUser(user), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) List(_ context.Context, filter repository.UserFilter) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*domain.User{}
	for _, user := range r.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if len(filter.Roles) > 0 && !containsRole(filter.Roles, user.Role) {
			continue
		}
		if filter.IsActive != nil && user.IsActive != *filter.IsActive {
			continue
		}
		result = append(result, copyUser(user))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *UserRepository) SetActive(_ context.Context, ids []string, active bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, id := range ids {
		user, ok := r.users[id]
		if !ok {
			continue
		}
		user.IsActive = active
		user.UpdatedAt = now()
		n++
	}
	return n, nil
}

func containsRole(roles []domain.Role, role domain.Role) bool {
	for _, candidate := range roles {
		if candidate == role {
			return true
		}
	}
	return false
}
