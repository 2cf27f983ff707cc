// Package rebuild maintains the derived document summaries.
//
// The lifecycle engine enqueues document IDs after every committed unit of
// work. Workers pop them from a Redis list, recompute the summary from
// authoritative data and write it back. A document is queued at most once
// at a time. Each worker claims onto its own processing list and keeps a
// heartbeat key alive; once a worker's heartbeat expires, any other worker
// puts its claims back on the queue. Summaries carry the document generation
// they were built from and are never replaced by an older one.
package rebuild

import (
	"context"
	"fmt"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/redis/go-redis/v9"
)

// enqueueScript pushes a document ID only if it is not already pending.
var enqueueScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
  redis.call('LPUSH', KEYS[2], ARGV[1])
  return 1
end
return 0
`)

// Queue is the producer side of the rebuild queue. It satisfies lifecycle.Rebuilder.
type Queue struct {
	rdb      *redis.Client
	instance string
}

// NewQueue creates a queue sharing store's Redis connection.
func NewQueue(store *datasheet.Client) *Queue {
	return &Queue{rdb: store.RedisClient(), instance: store.InstanceName()}
}

// Enqueue queues a rebuild for each document not already waiting for one.
func (q *Queue) Enqueue(ctx context.Context, documentIDs ...string) error {
	keys := []string{datasheet.RebuildPendingKey(q.instance), datasheet.RebuildQueueKey(q.instance)}
	for _, id := range documentIDs {
		if id == "" {
			continue
		}
		if err := enqueueScript.Run(ctx, q.rdb, keys, id).Err(); err != nil {
			return fmt.Errorf("failed to enqueue rebuild for %s: %w", id, err)
		}
	}
	return nil
}

// Kick wakes any idle workers.
func (q *Queue) Kick(ctx context.Context) error {
	if err := q.rdb.Publish(ctx, datasheet.RebuildKickChannel(q.instance), "kick").Err(); err != nil {
		return fmt.Errorf("failed to wake rebuild workers: %w", err)
	}
	return nil
}

// Len returns the number of rebuilds waiting to be claimed.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, datasheet.RebuildQueueKey(q.instance)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read rebuild queue length: %w", err)
	}
	return n, nil
}
