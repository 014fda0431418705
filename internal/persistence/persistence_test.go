package persistence

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/station-helpdesk/internal/config"
)

func TestMigrationNamesAreEmbeddedAndOrdered(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_init.sql", names[0])

	content, err := migrationFiles.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "CREATE TABLE IF NOT EXISTS tickets"))
}

func TestUnconfiguredBackends(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	pg, err := NewPostgres(ctx, config.PostgresConfig{}, logger)
	require.NoError(t, err)
	assert.False(t, pg.Enabled())
	assert.ErrorIs(t, pg.Ping(ctx), ErrNotConfigured)
	pg.Close()

	applied, err := RunMigrations(ctx, nil, logger)
	require.NoError(t, err)
	assert.Zero(t, applied)

	rdb := NewRedis(ctx, config.RedisConfig{}, logger)
	assert.False(t, rdb.Enabled())
	assert.ErrorIs(t, rdb.Ping(ctx), ErrNotConfigured)
	rdb.Close()
}
