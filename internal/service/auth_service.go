package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/config"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository"
	apperrors "github.com/spec-kit/station-helpdesk/pkg/util/errorutil"
)

// AuthService coordinates registration, login and self-service account flows.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	now        func() time.Time
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username           string
	Email              string
	Password           string
	FirstName          string
	LastName           string
	Phone              string
	Role               domain.Role
	GasStationLocation string
}

// ProfilePatch lists the fields users may change on their own account.
type ProfilePatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
}

var errInvalidCredentials = apperrors.NewUnauthorized("invalid credentials")

// Login authenticates by email and password and stamps LastLogin.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, errInvalidCredentials
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("account is deactivated")
	}

	now := s.now()
	user.LastLogin = &now
	if err := s.users.Update(ctx, user); err != nil {
		return nil, "", time.Time{}, mapRepoErr(err, "user", nil)
	}

	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return user, token, exp, nil
}

// Register creates an account on behalf of an admin.
func (s *AuthService) Register(ctx context.Context, admin *domain.User, input RegisterInput) (*domain.User, error) {
	if err := auth.Authorize(admin, auth.CapAdmin, nil); err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:           strings.TrimSpace(input.Username),
		Email:              normalizeEmail(input.Email),
		FirstName:          strings.TrimSpace(input.FirstName),
		LastName:           strings.TrimSpace(input.LastName),
		Phone:              strings.TrimSpace(input.Phone),
		Role:               input.Role,
		GasStationLocation: strings.TrimSpace(input.GasStationLocation),
		IsActive:           true,
	}
	if err := validateUser(user); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, user, ""); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash

	if err := s.users.Create(ctx, user); err != nil {
		return nil, mapRepoErr(err, "user", nil)
	}
	return user, nil
}

// Me reloads the caller so profile reads reflect the stored record.
func (s *AuthService) Me(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	current, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, mapRepoErr(err, "user", nil)
	}
	return current, nil
}

// UpdateProfile applies a self-service profile patch.
func (s *AuthService) UpdateProfile(ctx context.Context, user *domain.User, patch ProfilePatch) (*domain.User, error) {
	current, err := s.Me(ctx, user)
	if err != nil {
		return nil, err
	}
	if patch.FirstName != nil {
		current.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		current.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.Phone != nil {
		current.Phone = strings.TrimSpace(*patch.Phone)
	}
	if err := validateUser(current); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, current); err != nil {
		return nil, mapRepoErr(err, "user", nil)
	}
	return current, nil
}

// ChangePassword verifies current password before updating to new hash.
func (s *AuthService) ChangePassword(ctx context.Context, user *domain.User, currentPassword, newPassword string) error {
	current, err := s.Me(ctx, user)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(current.PasswordHash, currentPassword); err != nil {
		return fieldError("current_password", "current password is incorrect")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	current.PasswordHash = hash
	return mapRepoErr(s.users.Update(ctx, current), "user", nil)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// ensureUnique reports taken email or username as conflicts, ignoring selfID.
func (s *AuthService) ensureUnique(ctx context.Context, user *domain.User, selfID string) error {
	return checkUnique(ctx, s.users, user, selfID)
}

func checkUnique(ctx context.Context, users repository.UserRepository, user *domain.User, selfID string) error {
	if existing, err := users.GetByEmail(ctx, user.Email); err == nil && existing.ID != selfID {
		return apperrors.NewConflict("email already registered", map[string]any{"field": "email"})
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.MapError(err)
	}
	if user.Username == "" {
		return nil
	}
	if existing, err := users.GetByUsername(ctx, user.Username); err == nil && existing.ID != selfID {
		return apperrors.NewConflict("username already taken", map[string]any{"field": "username"})
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.MapError(err)
	}
	return nil
}

func validateUser(user *domain.User) error {
	var fields []apperrors.FieldError
	if !user.Role.Valid() {
		fields = append(fields, apperrors.FieldError{Field: "role", Message: "role is invalid"})
	}
	if user.Email == "" {
		fields = append(fields, apperrors.FieldError{Field: "email", Message: "email is required"})
	}
	if user.FirstName == "" {
		fields = append(fields, apperrors.FieldError{Field: "first_name", Message: "first name is required"})
	}
	if user.LastName == "" {
		fields = append(fields, apperrors.FieldError{Field: "last_name", Message: "last name is required"})
	}
	if err := user.Validate(); errors.Is(err, domain.ErrStationLocationRequired) {
		fields = append(fields, apperrors.FieldError{Field: "gas_station_location", Message: err.Error()})
	}
	if len(fields) > 0 {
		return apperrors.NewFieldValidationError(fields)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
