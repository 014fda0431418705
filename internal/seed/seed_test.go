package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/station-helpdesk/internal/auth"
	"github.com/spec-kit/station-helpdesk/internal/domain"
	"github.com/spec-kit/station-helpdesk/internal/repository/memory"
)

func TestUsersIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewUserRepository()

	created, err := Users(ctx, repo, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, len(DemoUsers), created)

	created, err = Users(ctx, repo, 4, nil)
	require.NoError(t, err)
	assert.Zero(t, created)

	station, err := repo.GetByEmail(ctx, "station@helpdesk.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleGasStation, station.Role)
	assert.Equal(t, "Downtown Station", station.GasStationLocation)
	assert.True(t, station.IsActive)
	assert.NoError(t, auth.ComparePassword(station.PasswordHash, DemoPassword))

	for _, u := range DemoUsers {
		assert.NoError(t, u.Validate(), u.Email)
	}
}
