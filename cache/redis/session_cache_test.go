package redis

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/recovery/domain"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSessionCache_RoundTrip(t *testing.T) {
	client := setupRedis(t)
	c := NewSessionCache(client, "test-"+t.Name(), 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "session", []byte(`{"identity":"u1"}`)))
	got, err := c.Get(ctx, "session")
	require.NoError(t, err)
	assert.JSONEq(t, `{"identity":"u1"}`, string(got))

	require.NoError(t, c.Delete(ctx, "session"))
	_, err = c.Get(ctx, "session")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestSessionCache_Key(t *testing.T) {
	assert.Equal(t, "session:k", NewSessionCache(nil, "", 0).redisKey("k"))
	assert.Equal(t, "app:session:k", NewSessionCache(nil, "app", 0).redisKey("k"))
}
