package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Redis-backed Port: a single list (RPush/BLPop) holding
// pending jobs, plus a processing sorted-set (scored by deadline) so a
// crashed worker's in-flight job is still discoverable.
type RedisQueue struct {
	client  *redis.Client
	prefix  string
	listKey string
	procKey string
}

// NewRedisQueue parses redisURL (e.g. "redis://localhost:6379/0") and pings
// the server before returning, so a bad connection string fails fast at
// startup rather than on the first job.
func NewRedisQueue(ctx context.Context, redisURL, keyPrefix string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: connect to redis: %w", err)
	}

	if keyPrefix == "" {
		keyPrefix = "workflowengine:"
	}
	return &RedisQueue{
		client:  client,
		prefix:  keyPrefix,
		listKey: keyPrefix + "jobs",
		procKey: keyPrefix + "processing",
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	return q.client.RPush(ctx, q.listKey, payload).Err()
}

// Dequeue blocks up to timeout for the next job. It returns (nil, nil) on
// timeout with no job available, matching the Go idiom the rest of the
// port follows: absence of work is not an error.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.listKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job: %w", err)
	}

	deadline := time.Now().Add(5 * time.Minute)
	if err := q.client.ZAdd(ctx, q.procKey, redis.Z{Score: float64(deadline.Unix()), Member: job.ExecutionID}).Err(); err != nil {
		return nil, fmt.Errorf("queue: mark processing: %w", err)
	}
	return &job, nil
}

// Ack removes job from the processing set: the worker finished (either
// way) and the queue no longer needs to track its deadline.
func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	return q.client.ZRem(ctx, q.procKey, job.ExecutionID).Err()
}

// Fail clears job from the processing set and, if requeue is set,
// re-enqueues it with RetryCount incremented. Whether to requeue is the
// job handler's call (the queue has no opinion on retry policy).
func (q *RedisQueue) Fail(ctx context.Context, job Job, requeue bool) error {
	if err := q.Ack(ctx, job); err != nil {
		return err
	}
	if !requeue {
		return nil
	}
	job.RetryCount++
	return q.Enqueue(ctx, job)
}

func (q *RedisQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.listKey).Result()
	return int(n), err
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
