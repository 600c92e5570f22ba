package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/cmlabs-hris/hris-checkin-go/internal/repository/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerTimeRepository_ServerTime(t *testing.T) {
	setup := NewTestDatabase(t)
	repo := postgresql.NewServerTimeRepository(setup.DB)

	first, err := repo.ServerTime(context.Background())
	require.NoError(t, err)
	assert.False(t, first.IsZero())
	assert.WithinDuration(t, time.Now(), first, time.Hour)

	second, err := repo.ServerTime(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Before(first))
}

func TestServerTimeRepository_CanceledContext(t *testing.T) {
	setup := NewTestDatabase(t)
	repo := postgresql.NewServerTimeRepository(setup.DB)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ServerTime(ctx)
	assert.Error(t, err)
}
