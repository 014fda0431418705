// Package seed loads demo accounts for local development.
package seed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository"
)

// DemoPassword is shared by every demo account.
const DemoPassword = "password123"

// DemoUsers are the accounts created by Users.
var DemoUsers = []domain.User{
	{Username: "admin", Email: "admin@helpdesk.com", FirstName: "System", LastName: "Administrator", Phone: "+1-555-0100", Role: domain.RoleAdmin},
	{Username: "agent1", Email: "agent@helpdesk.com", FirstName: "John", LastName: "Smith", Phone: "+1-555-0101", Role: domain.RoleHelpDesk},
	{Username: "agent2", Email: "agent2@helpdesk.com", FirstName: "Sarah", LastName: "Johnson", Phone: "+1-555-0102", Role: domain.RoleHelpDesk},
	{Username: "station1", Email: "station@helpdesk.com", FirstName: "Mike", LastName: "Wilson", Phone: "+1-555-0201", Role: domain.RoleGasStation, GasStationLocation: "Downtown Station"},
	{Username: "station2", Email: "station2@helpdesk.com", FirstName: "Lisa", LastName: "Davis", Phone: "+1-555-0202", Role: domain.RoleGasStation, GasStationLocation: "Highway Station"},
}

// Users creates any demo account whose email is not taken yet and reports
// how many were created.
func Users(ctx context.Context, users repository.UserRepository, bcryptCost int, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	created := 0
	for _, template := range DemoUsers {
		if _, err := users.GetByEmail(ctx, template.Email); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return created, fmt.Errorf("lookup %s: %w", template.Email, err)
		}

		hash, err := auth.HashPassword(DemoPassword, bcryptCost)
		if err != nil {
			return created, err
		}
		user := template
		user.PasswordHash = hash
		user.IsActive = true
		if err := users.Create(ctx, &user); err != nil {
			return created, fmt.Errorf("create %s: %w", template.Email, err)
		}
		created++
		logger.Info("seeded demo user", zap.String("email", user.Email), zap.String("role", string(user.Role)))
	}
	return created, nil
}
