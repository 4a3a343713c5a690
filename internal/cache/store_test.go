package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisStoreRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	s := NewRedisStore(client, "test", time.Minute)

	require.NoError(t, s.Set(ctx, "https://example.com/t:data.html", "<p>hi</p>", 10*time.Second))
	assert.True(t, mr.Exists("test:cache:https://example.com/t:data.html"))

	v, ok, err := s.Get(ctx, "https://example.com/t:data.html")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "<p>hi</p>", v)

	mr.FastForward(11 * time.Second)

	_, ok, err = s.Get(ctx, "https://example.com/t:data.html")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreClearOnlyTouchesPrefix(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	s := NewRedisStore(client, "test", time.Minute)

	require.NoError(t, s.Set(ctx, "a", "1", 0))
	require.NoError(t, s.Set(ctx, "b", "2", 0))
	require.NoError(t, mr.Set("other", "keep"))

	require.NoError(t, s.Clear(ctx))

	assert.False(t, mr.Exists("test:cache:a"))
	assert.False(t, mr.Exists("test:cache:b"))
	assert.True(t, mr.Exists("other"))
}

func TestRedisStoreDelete(t *testing.T) {
	ctx := context.Background()
	client, _ := setupTestRedis(t)
	s := NewRedisStore(client, "", 0)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
