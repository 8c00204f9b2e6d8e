// Package recency maintains a per-user ordered list of recently touched
// snippet identifiers in Redis.
package recency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCapacity is the queue length each user's list is trimmed to.
const DefaultCapacity = 50

// DefaultTimeout bounds every Redis round trip issued by the queue.
const DefaultTimeout = 2 * time.Second

// Queue is the per-user recency list: push-front, move-to-front, remove,
// clear, range, all backed by a single Redis list key per user.
type Queue struct {
	client   *redis.Client
	prefix   string
	capacity int
	timeout  time.Duration
}

// New constructs a Queue. capacity and timeout fall back to DefaultCapacity
// and DefaultTimeout when zero.
func New(client *redis.Client, capacity int, timeout time.Duration) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Queue{
		client:   client,
		prefix:   "recency:",
		capacity: capacity,
		timeout:  timeout,
	}
}

func (q *Queue) key(owner int64) string {
	return q.prefix + strconv.FormatInt(owner, 10)
}

func (q *Queue) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.timeout)
}

// PushFront removes any existing occurrence of id and prepends it, then
// trims the list to the configured capacity.
func (q *Queue) PushFront(ctx context.Context, owner int64, id int64) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	key := q.key(owner)
	val := strconv.FormatInt(id, 10)

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, key, 0, val)
	pipe.LPush(ctx, key, val)
	pipe.LTrim(ctx, key, 0, int64(q.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recency.PushFront: %w", err)
	}
	return nil
}

// MoveToFront is PushFront's semantic twin, used when a snippet already in
// the queue is accessed again; the implementation is identical.
func (q *Queue) MoveToFront(ctx context.Context, owner int64, id int64) error {
	return q.PushFront(ctx, owner, id)
}

// Recent returns up to the configured capacity of identifiers, most
// recent first.
func (q *Queue) Recent(ctx context.Context, owner int64) ([]int64, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	vals, err := q.client.LRange(ctx, q.key(owner), 0, int64(q.capacity-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("recency.Recent: %w", err)
	}

	out := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Remove deletes every occurrence of id from the owner's queue.
func (q *Queue) Remove(ctx context.Context, owner int64, id int64) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	if err := q.client.LRem(ctx, q.key(owner), 0, strconv.FormatInt(id, 10)).Err(); err != nil {
		return fmt.Errorf("recency.Remove: %w", err)
	}
	return nil
}

// Clear deletes the owner's entire queue.
func (q *Queue) Clear(ctx context.Context, owner int64) error {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	if err := q.client.Del(ctx, q.key(owner)).Err(); err != nil {
		return fmt.Errorf("recency.Clear: %w", err)
	}
	return nil
}

// Size returns the number of identifiers currently held for owner.
func (q *Queue) Size(ctx context.Context, owner int64) (int64, error) {
	ctx, cancel := q.withTimeout(ctx)
	defer cancel()

	n, err := q.client.LLen(ctx, q.key(owner)).Result()
	if err != nil {
		return 0, fmt.Errorf("recency.Size: %w", err)
	}
	return n, nil
}
