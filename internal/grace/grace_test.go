package grace_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/legalgate/internal/grace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, rueidis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, client
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	mr, client := setupRedis(t)
	store := grace.NewRedisStore(client, 5*time.Second, zap.NewNop())
	defer store.Close()

	ctx := t.Context()

	active, err := store.Active(ctx, "user-1", "session-1")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, store.Set(ctx, "user-1", "session-1"))

	active, err = store.Active(ctx, "user-1", "session-1")
	require.NoError(t, err)
	assert.True(t, active)

	// Other sessions of the same user are not covered
	active, err = store.Active(ctx, "user-1", "session-2")
	require.NoError(t, err)
	assert.False(t, active)

	assert.Equal(t, 5*time.Second, mr.TTL(grace.Key("user-1", "session-1")))

	mr.FastForward(6 * time.Second)

	active, err = store.Active(ctx, "user-1", "session-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	store := grace.NewMemoryStore(100 * time.Millisecond)
	defer store.Close()

	ctx := t.Context()

	require.NoError(t, store.Set(ctx, "user-1", "session-1"))

	active, err := store.Active(ctx, "user-1", "session-1")
	require.NoError(t, err)
	assert.True(t, active)

	assert.Eventually(t, func() bool {
		active, err := store.Active(ctx, "user-1", "session-1")
		return err == nil && !active
	}, 2*time.Second, 20*time.Millisecond)
}

func TestKeyIncludesSession(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, grace.Key("user-1", "a"), grace.Key("user-1", "b"))
	assert.Equal(t, "grace:user-1:a", grace.Key("user-1", "a"))
}
