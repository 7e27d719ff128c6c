package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when no job arrived within the poll window.
var ErrEmpty = errors.New("no job available")

type Queue interface {
	Push(ctx context.Context, job Job) error
	// Pop blocks until a job is available, the poll window elapses or ctx
	// is done. A popped job stays in flight until it is acknowledged.
	Pop(ctx context.Context) (Job, error)
	Ack(ctx context.Context, job Job) error
	// Recover returns in-flight jobs left behind by a previous run to the
	// front of the queue.
	Recover(ctx context.Context) (int, error)
}

// RedisQueue is a FIFO of jobs owned by a single process. Jobs are pushed on
// the left of the pending list and atomically moved to the processing list
// when popped.
type RedisQueue struct {
	rdb          *redis.Client
	pendingKey   string
	inflightKey  string
	pollInterval time.Duration
}

func NewRedisQueue(rdb *redis.Client, processId string) *RedisQueue {
	return &RedisQueue{
		rdb:          rdb,
		pendingKey:   fmt.Sprintf("jobs:%s:pending", processId),
		inflightKey:  fmt.Sprintf("jobs:%s:processing", processId),
		pollInterval: time.Second,
	}
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.LPush(ctx, q.pendingKey, b).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (Job, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.pendingKey, q.inflightKey, q.pollInterval).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrEmpty
	}
	if err != nil {
		if ctx.Err() != nil {
			return Job{}, ctx.Err()
		}
		return Job{}, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// drop the poison entry so it is not recovered forever
		q.rdb.LRem(ctx, q.inflightKey, 1, raw)
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	job.raw = raw
	return job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	if job.raw == "" {
		return fmt.Errorf("ack job %s: not popped from this queue", job.Id)
	}
	return q.rdb.LRem(ctx, q.inflightKey, 1, job.raw).Err()
}

func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		// oldest in-flight entry sits on the right
		_, err := q.rdb.RPopLPush(ctx, q.inflightKey, q.pendingKey+":recover").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, err
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}

	// move the recovered jobs onto the consuming end of pending in their
	// original order
	for {
		_, err := q.rdb.LMove(ctx, q.pendingKey+":recover", q.pendingKey, "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
