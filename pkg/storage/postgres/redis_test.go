package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisClientTest creates a miniredis instance and a client connected to it
func setupRedisClientTest(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{
		URL:        "redis://" + mr.Addr(),
		MaxRetries: 3,
		PoolSize:   10,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

type cachedFlags struct {
	CanRead  bool `json:"canRead"`
	CanWrite bool `json:"canWrite"`
}

func TestNewRedisClient(t *testing.T) {
	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewRedisClient(RedisConfig{URL: "invalid://url"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid redis URL")
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := NewRedisClient(RedisConfig{URL: "redis://127.0.0.1:1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to redis")
	})

	t.Run("ping", func(t *testing.T) {
		client, _ := setupRedisClientTest(t)
		assert.NoError(t, client.Ping(context.Background()))
		assert.NotNil(t, client.Client())
	})
}

func TestRedisClient_JSONRoundTrip(t *testing.T) {
	client, mr := setupRedisClientTest(t)
	ctx := context.Background()

	var got cachedFlags
	found, err := client.GetJSON(ctx, "snap:org-1:user-1:booking:reservas", &got)
	require.NoError(t, err)
	assert.False(t, found)

	want := cachedFlags{CanRead: true}
	require.NoError(t, client.SetJSON(ctx, "snap:org-1:user-1:booking:reservas", want, time.Minute))

	found, err = client.GetJSON(ctx, "snap:org-1:user-1:booking:reservas", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	found, err = client.GetJSON(ctx, "snap:org-1:user-1:booking:reservas", &got)
	require.NoError(t, err)
	assert.False(t, found, "entry must expire with its ttl")
}

func TestRedisClient_CorruptEntryIsAMiss(t *testing.T) {
	client, mr := setupRedisClientTest(t)
	require.NoError(t, mr.Set("snap:bad", "{not json"))

	var got cachedFlags
	found, err := client.GetJSON(context.Background(), "snap:bad", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("snap:bad"), "corrupt entry must be deleted")
}

func TestRedisClient_Del(t *testing.T) {
	client, mr := setupRedisClientTest(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, mr.Set("b", "2"))

	require.NoError(t, client.Del(ctx))
	require.NoError(t, client.Del(ctx, "a", "b"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestRedisClient_InvalidatePatterns(t *testing.T) {
	client, mr := setupRedisClientTest(t)
	ctx := context.Background()

	for _, key := range []string{
		"snap:org-1:user-1:booking:reservas",
		"snap:org-1:user-2:booking:canchas",
		"snap:org-2:user-3:booking:reservas",
		"ratelimit:10.0.0.1",
	} {
		require.NoError(t, mr.Set(key, "{}"))
	}

	removed, err := client.InvalidatePatterns(ctx, "snap:org-1:*")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.True(t, mr.Exists("snap:org-2:user-3:booking:reservas"))
	assert.True(t, mr.Exists("ratelimit:10.0.0.1"))

	removed, err = client.InvalidatePatterns(ctx, "snap:*:user-9:*")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisClient_IncrWindow(t *testing.T) {
	client, mr := setupRedisClientTest(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := client.IncrWindow(ctx, "ratelimit:10.0.0.1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:10.0.0.1"))

	mr.FastForward(time.Minute + time.Second)
	n, err := client.IncrWindow(ctx, "ratelimit:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "window must reset after expiry")
}

func TestRedisClient_ContextCancellation(t *testing.T) {
	client, _ := setupRedisClientTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.SetJSON(ctx, "k", cachedFlags{}, time.Minute)
	assert.Error(t, err)
}
