package domain

import (
	"errors"
	"strings"
	"time"
)

// Role enumerates account roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleHelpDesk   Role = "help-desk"
	RoleGasStation Role = "gas-station"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHelpDesk, RoleGasStation:
		return true
	}
	return false
}

// IsStaff reports whether r belongs to the help-desk side (admin or help-desk).
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleHelpDesk
}

// ErrStationLocationRequired is returned when a gas-station account has no location.
var ErrStationLocationRequired = errors.New("gas station location is required for gas station users")

// User is an account of any role.
type User struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       string
	FirstName          string
	LastName           string
	Phone              string
	Role               Role
	GasStationLocation string
	IsActive           bool
	LastLogin          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate enforces the role/location invariant.
func (u *User) Validate() error {
	if !u.Role.Valid() {
		return errors.New("unknown role")
	}
	if u.Role == RoleGasStation && strings.TrimSpace(u.GasStationLocation) == "" {
		return ErrStationLocationRequired
	}
	return nil
}

// IsStaff reports whether the user is admin or help-desk.
func (u *User) IsStaff() bool {
	return u != nil && u.Role.IsStaff()
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserSummary is the public projection embedded in ticket and comment payloads.
type UserSummary struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Role      Role
}

// Summary projects the user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
	}
}
