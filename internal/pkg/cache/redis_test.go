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

func newTestCache(t *testing.T) (Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCacheFromClient(client, "payment"), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestRedisCache_MissIsEmpty(t *testing.T) {
	c, _ := newTestCache(t)

	got, err := c.Get(context.Background(), "missing")

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisCache_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", time.Second))

	mr.FastForward(2 * time.Second)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Get(context.Background(), "k")

	assert.Error(t, err)
}

func TestRedisCache_GenerateKey(t *testing.T) {
	c, _ := newTestCache(t)

	assert.Equal(t, "payment:charge:o-1", c.GenerateKey("charge", "o-1"))
}
