//go:build integration

package recency_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/kenneth/clipboard-service/internal/recency"
)

func newTestQueue(t *testing.T) *recency.Queue {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, err := tcredis.RunContainer(ctx, tcredis.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(connStr)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	return recency.New(client, recency.DefaultCapacity, recency.DefaultTimeout)
}

func TestQueueLifecycleAgainstRealRedis(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.PushFront(ctx, 1, 10))
	require.NoError(t, q.PushFront(ctx, 1, 20))
	require.NoError(t, q.PushFront(ctx, 1, 10))

	ids, err := q.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20}, ids)

	require.NoError(t, q.Remove(ctx, 1, 20))
	ids, err = q.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{10}, ids)

	size, err := q.Size(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	require.NoError(t, q.Clear(ctx, 1))
	ids, err = q.Recent(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, ids)
}
