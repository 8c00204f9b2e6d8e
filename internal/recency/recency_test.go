package recency

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, 3, 0)
}

func TestPushFrontOrdering(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.PushFront(ctx, 1, 10))
	require.NoError(t, q.PushFront(ctx, 1, 20))
	require.NoError(t, q.PushFront(ctx, 1, 30))

	recent, err := q.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{30, 20, 10}, recent)
}

func TestPushFrontTrimsToCapacity(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, q.PushFront(ctx, 1, i))
	}

	recent, err := q.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{5, 4, 3}, recent)
}

func TestMoveToFrontIsIdempotentOnOrdering(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.PushFront(ctx, 1, 10))
	require.NoError(t, q.PushFront(ctx, 1, 20))
	require.NoError(t, q.MoveToFront(ctx, 1, 10))

	recent, err := q.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20}, recent)

	require.NoError(t, q.MoveToFront(ctx, 1, 10))
	recent, err = q.Recent(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20}, recent)
}

func TestRemoveAndClear(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.PushFront(ctx, 1, 10))
	require.NoError(t, q.PushFront(ctx, 1, 20))
	require.NoError(t, q.Remove(ctx, 1, 10))

	size, err := q.Size(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	require.NoError(t, q.Clear(ctx, 1))
	size, err = q.Size(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), size)
}
