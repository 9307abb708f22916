package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
)

// ErrMalformedPayload marks a queue entry that can never be decoded.
var ErrMalformedPayload = errors.New("malformed queue payload")

// ViolationQueue is the Redis list between live sessions and the ViolationWorker.
type ViolationQueue struct {
	rdb *redis.Client
	key string
}

// NewViolationQueue creates a queue on config.WorkerKey.PersistViolationsQueue.
func NewViolationQueue(rdb *redis.Client) *ViolationQueue {
	return &ViolationQueue{rdb: rdb, key: config.WorkerKey.PersistViolationsQueue}
}

// Append pushes one event. The event id is assigned here so retries stay idempotent.
func (q *ViolationQueue) Append(ctx context.Context, ev model.ViolationEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode violation: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, data).Err()
}

// Pop blocks up to timeout for the next event. It returns (nil, nil) when the queue
// stayed empty.
func (q *ViolationQueue) Pop(ctx context.Context, timeout time.Duration) (*model.ViolationEvent, error) {
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}

	var ev model.ViolationEvent
	if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrMalformedPayload, err, result[1])
	}
	return &ev, nil
}

// Requeue pushes events back in one pipeline.
func (q *ViolationQueue) Requeue(ctx context.Context, events []model.ViolationEvent) error {
	pipe := q.rdb.Pipeline()
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, q.key, data)
	}
	_, err := pipe.Exec(ctx)
	return err
}
