package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

// UserService implements account administration.
type UserService struct {
	users         repository.UserRepository
	tickets       repository.TicketRepository
	history       repository.TicketHistoryRepository
	notifications repository.NotificationRepository
	deletePolicy  string
	logger        *zap.Logger
}

// UserDependencies bundles collaborators for user administration.
type UserDependencies struct {
	UserRepo         repository.UserRepository
	TicketRepo       repository.TicketRepository
	HistoryRepo      repository.TicketHistoryRepository
	NotificationRepo repository.NotificationRepository
	DeletePolicy     string
	Logger           *zap.Logger
}

// NewUserService builds the service. An empty delete policy means block.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.DeletePolicy
	if policy == "" {
		policy = config.UserDeletePolicyBlock
	}
	return &UserService{
		users:         deps.UserRepo,
		tickets:       deps.TicketRepo,
		history:       deps.HistoryRepo,
		notifications: deps.NotificationRepo,
		deletePolicy:  policy,
		logger:        logger,
	}
}

// UserListFilter narrows the user listing.
type UserListFilter struct {
	Role     *domain.Role
	IsActive *bool
}

// UserPatch lists the fields an admin may change.
type UserPatch struct {
	Email              *string
	FirstName          *string
	LastName           *string
	Phone              *string
	Role               *domain.Role
	GasStationLocation *string
	IsActive           *bool
}

// DeleteOutcome reports what Delete did to the account.
type DeleteOutcome string

const (
	DeleteOutcomeDeleted     DeleteOutcome = "deleted"
	DeleteOutcomeDeactivated DeleteOutcome = "deactivated"
)

// List returns users for staff; help-desk access is read-only.
func (s *UserService) List(ctx context.Context, requester *domain.User, filter UserListFilter) ([]*domain.User, error) {
	if err := auth.Authorize(requester, auth.CapHelpDeskOrAdmin, nil); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx, repository.UserFilter{Role: filter.Role, IsActive: filter.IsActive})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return users, nil
}

// Get loads one user for an admin.
func (s *UserService) Get(ctx context.Context, admin *domain.User, id string) (*domain.User, error) {
	if err := auth.Authorize(admin, auth.CapAdmin, nil); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

// Update applies an admin patch while keeping the station location invariant.
func (s *UserService) Update(ctx context.Context, admin *domain.User, id string, patch UserPatch) (*domain.User, error) {
	if err := auth.Authorize(admin, auth.CapAdmin, nil); err != nil {
		return nil, err
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if user.ID == admin.ID {
		if patch.IsActive != nil && !*patch.IsActive {
			return nil, fieldError("is_active", "you cannot deactivate your own account")
		}
		if patch.Role != nil && *patch.Role != domain.RoleAdmin {
			return nil, fieldError("role", "you cannot change your own role")
		}
	}

	if patch.Email != nil {
		user.Email = normalizeEmail(*patch.Email)
	}
	if patch.FirstName != nil {
		user.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		user.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.Phone != nil {
		user.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	if patch.GasStationLocation != nil {
		user.GasStationLocation = strings.TrimSpace(*patch.GasStationLocation)
	}
	if patch.IsActive != nil {
		user.IsActive = *patch.IsActive
	}

	if err := validateUser(user); err != nil {
		return nil, err
	}
	if patch.Email != nil {
		if err := checkUnique(ctx, s.users, user, user.ID); err != nil {
			return nil, err
		}
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, mapRepoErr(err, "user", map[string]any{"user_id": id})
	}
	return user, nil
}

// SetActivation toggles activation for several users at once.
func (s *UserService) SetActivation(ctx context.Context, admin *domain.User, ids []string, active bool) (int64, error) {
	if err := auth.Authorize(admin, auth.CapAdmin, nil); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fieldError("user_ids", "at least one user id is required")
	}
	if !active {
		for _, id := range ids {
			if id == admin.ID {
				return 0, fieldError("user_ids", "you cannot deactivate your own account")
			}
		}
	}
	updated, err := s.users.SetActive(ctx, ids, active)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	s.logger.Info("bulk user activation",
		zap.String("admin_id", admin.ID),
		zap.Int("requested", len(ids)),
		zap.Int64("updated", updated),
		zap.Bool("is_active", active),
	)
	return updated, nil
}

// Delete removes an account. Accounts still referenced by tickets, comments
// or history entries are either refused or deactivated, depending on the
// configured policy.
func (s *UserService) Delete(ctx context.Context, admin *domain.User, id string) (DeleteOutcome, error) {
	if err := auth.Authorize(admin, auth.CapAdmin, nil); err != nil {
		return "", err
	}
	if id == admin.ID {
		return "", apperrors.NewValidationError("you cannot delete your own account", nil)
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}

	refs, err := s.references(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if refs.any() {
		return s.handleReferenced(ctx, user, refs)
	}

	// Notifications go only after the account row is gone so a refused
	// delete leaves the inbox intact.
	if err := s.users.Delete(ctx, user.ID); err != nil {
		if apperrors.HasCode(mapRepoErr(err, "user", nil), apperrors.CodeConflict) {
			return s.handleReferenced(ctx, user, refs)
		}
		return "", mapRepoErr(err, "user", map[string]any{"user_id": id})
	}
	if err := s.notifications.DeleteByRecipient(ctx, user.ID); err != nil {
		s.logger.Warn("failed to purge notifications of deleted user",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
	s.logger.Info("user deleted", zap.String("admin_id", admin.ID), zap.String("user_id", user.ID))
	return DeleteOutcomeDeleted, nil
}

type userReferences struct {
	tickets int
	history int
}

func (r userReferences) any() bool {
	return r.tickets > 0 || r.history > 0
}

func (s *UserService) references(ctx context.Context, userID string) (userReferences, error) {
	var refs userReferences
	var err error
	if refs.tickets, err = s.tickets.CountByUser(ctx, userID); err != nil {
		return refs, apperrors.MapError(err)
	}
	if s.history != nil {
		if refs.history, err = s.history.CountByUser(ctx, userID); err != nil {
			return refs, apperrors.MapError(err)
		}
	}
	return refs, nil
}

func (s *UserService) handleReferenced(ctx context.Context, user *domain.User, refs userReferences) (DeleteOutcome, error) {
	if s.deletePolicy != config.UserDeletePolicyDeactivate {
		return "", apperrors.NewConflict("user is referenced by tickets", map[string]any{
			"user_id":         user.ID,
			"tickets":         refs.tickets,
			"history_entries": refs.history,
		})
	}
	if _, err := s.users.SetActive(ctx, []string{user.ID}, false); err != nil {
		return "", apperrors.MapError(err)
	}
	return DeleteOutcomeDeactivated, nil
}

func (s *UserService) load(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr(err, "user", map[string]any{"user_id": id})
	}
	return user, nil
}
