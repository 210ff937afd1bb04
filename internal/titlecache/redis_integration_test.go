package titlecache

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := goredis.ParseURL(connStr)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestRedisStore_SetAndGet(t *testing.T) {
	client := setupRedisClient(t)
	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()

	_, ok := store.Get(ctx, "dQw4w9WgXcQ")
	assert.False(t, ok)

	store.Set(ctx, "dQw4w9WgXcQ", "Keynote Live")

	title, ok := store.Get(ctx, "dQw4w9WgXcQ")
	assert.True(t, ok)
	assert.Equal(t, "Keynote Live", title)
}

func TestRedisStore_EntriesExpire(t *testing.T) {
	client := setupRedisClient(t)
	store := NewRedisStore(client, 50*time.Millisecond)
	ctx := context.Background()

	store.Set(ctx, "abc123def45", "Short Lived")
	time.Sleep(100 * time.Millisecond)

	_, ok := store.Get(ctx, "abc123def45")
	assert.False(t, ok)
}

func TestRedisStore_UnreachableServerIsMiss(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()

	store.Set(ctx, "abc123def45", "Ignored")
	_, ok := store.Get(ctx, "abc123def45")
	assert.False(t, ok)
}
