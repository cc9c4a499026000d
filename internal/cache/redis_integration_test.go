//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestCacheAgainstRedisContainer(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	c := New(client, "it")
	require.NoError(t, c.Set(ctx, "stats", map[string]int{"total": 7}, time.Minute))

	var out map[string]int
	found, err := c.Get(ctx, "stats", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 7, out["total"])

	require.NoError(t, c.Invalidate(ctx, "stats"))
	found, err = c.Get(ctx, "stats", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
