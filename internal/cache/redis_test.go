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

type snapshot struct {
	Total   int            `json:"total"`
	ByState map[string]int `json:"byState"`
}

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "issues"), mr
}

func TestSetAndGet(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	expected := snapshot{Total: 4, ByState: map[string]int{"Pending": 3, "Resolved": 1}}
	require.NoError(t, c.Set(ctx, "stats:admin", expected, time.Minute))
	assert.True(t, mr.Exists("issues:stats:admin"))

	var actual snapshot
	found, err := c.Get(ctx, "stats:admin", &actual)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, expected, actual)
}

func TestGetMissAndExpiry(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	var out snapshot
	found, err := c.Get(ctx, "stats:admin", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "stats:admin", snapshot{Total: 1}, time.Second))
	mr.FastForward(2 * time.Second)

	found, err = c.Get(ctx, "stats:admin", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidate(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, c.Invalidate(ctx, "a", "b"))

	var out int
	found, err := c.Get(ctx, "a", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetInvalidJSON(t *testing.T) {
	c, mr := setupTestCache(t)
	require.NoError(t, mr.Set("issues:bad", "not-json"))

	var out snapshot
	found, err := c.Get(context.Background(), "bad", &out)
	assert.False(t, found)
	assert.Error(t, err)
}

func TestDisabledCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	assert.False(t, c.Enabled())
	assert.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	assert.NoError(t, c.Invalidate(ctx, "k"))

	var out int
	found, err := New(nil, "x").Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
