package redis_test

import (
	"testing"

	"github.com/robalyx/legalgate/internal/redis"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManagerWithoutHost(t *testing.T) {
	t.Parallel()

	manager := redis.NewManager(&config.Redis{}, zap.NewNop())
	defer manager.Close()

	assert.False(t, manager.Enabled())

	client, err := manager.GetClient(redis.GraceDBIndex)
	require.ErrorIs(t, err, redis.ErrRedisNotConfigured)
	assert.Nil(t, client)
}

func TestManagerEnabled(t *testing.T) {
	t.Parallel()

	manager := redis.NewManager(&config.Redis{Host: "localhost", Port: 6379}, zap.NewNop())
	assert.True(t, manager.Enabled())
}
