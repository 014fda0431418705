package dto

import (
	"time"

	"github.com/spec-kit/station-helpdesk/internal/domain"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest payload for new accounts (admin only).
type RegisterRequest struct {
	Username           string `json:"username" validate:"required,min=3,max=30,alphanum"`
	Email              string `json:"email" validate:"required,email,max=255"`
	Password           string `json:"password" validate:"required,min=6,max=128"`
	FirstName          string `json:"first_name" validate:"required,max=50"`
	LastName           string `json:"last_name" validate:"required,max=50"`
	Phone              string `json:"phone" validate:"omitempty,max=40"`
	Role               string `json:"role" validate:"required,oneof=admin help-desk gas-station"`
	GasStationLocation string `json:"gas_station_location" validate:"required_if=Role gas-station,max=200"`
}

// UpdateProfileRequest lists the fields a user may change on their own account.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=50"`
	Phone     *string `json:"phone" validate:"omitempty,max=40"`
}

// ChangePasswordRequest payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=128"`
}

// AdminUpdateUserRequest payload for admin edits.
type AdminUpdateUserRequest struct {
	Email              *string `json:"email" validate:"omitempty,email,max=255"`
	FirstName          *string `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName           *string `json:"last_name" validate:"omitempty,min=1,max=50"`
	Phone              *string `json:"phone" validate:"omitempty,max=40"`
	Role               *string `json:"role" validate:"omitempty,oneof=admin help-desk gas-station"`
	GasStationLocation *string `json:"gas_station_location" validate:"omitempty,max=200"`
	IsActive           *bool   `json:"is_active"`
}

// BulkActivationRequest toggles activation for several users.
type BulkActivationRequest struct {
	UserIDs  []string `json:"user_ids" validate:"required,min=1,max=100,dive,required"`
	IsActive *bool    `json:"is_active" validate:"required"`
}

// UserListQuery filters the user listing.
type UserListQuery struct {
	Role     string `query:"role" validate:"omitempty,oneof=admin help-desk gas-station"`
	IsActive string `query:"is_active" validate:"omitempty,oneof=true false"`
}

// UserResponse is the public user shape; never carries the password hash.
type UserResponse struct {
	ID                 string      `json:"id"`
	Username           string      `json:"username"`
	Email              string      `json:"email"`
	FirstName          string      `json:"first_name"`
	LastName           string      `json:"last_name"`
	Phone              string      `json:"phone"`
	Role               domain.Role `json:"role"`
	GasStationLocation string      `json:"gas_station_location,omitempty"`
	IsActive           bool        `json:"is_active"`
	LastLogin          *time.Time  `json:"last_login"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// NewUserResponse renders a user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Phone:              u.Phone,
		Role:               u.Role,
		GasStationLocation: u.GasStationLocation,
		IsActive:           u.IsActive,
		LastLogin:          u.LastLogin,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

// NewUserResponses renders a list of users.
func NewUserResponses(users []*domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserResponse(u))
	}
	return out
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// BulkActivationResponse reports how many users changed.
type BulkActivationResponse struct {
	Updated int64 `json:"updated"`
}
