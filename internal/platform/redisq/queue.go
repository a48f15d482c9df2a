package redisq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/task"
)

const (
	// pollTimeout bounds a single BLPOP so Close is noticed promptly.
	pollTimeout = time.Second

	// reservationTTL expires the reservation counter if a process dies
	// between Reserve and Commit.
	reservationTTL = time.Minute
)

var reserveScript = redis.NewScript(`
	local queued = redis.call("llen", KEYS[1])
	local reserved = tonumber(redis.call("get", KEYS[2]) or "0")
	if queued + reserved >= tonumber(ARGV[1]) then
		return 0
	end
	redis.call("incr", KEYS[2])
	redis.call("pexpire", KEYS[2], ARGV[2])
	return 1
`)

var commitScript = redis.NewScript(`
	redis.call("rpush", KEYS[1], ARGV[1])
	if redis.call("decr", KEYS[2]) < 0 then
		redis.call("set", KEYS[2], 0)
	end
	return 1
`)

var releaseScript = redis.NewScript(`
	if redis.call("decr", KEYS[1]) < 0 then
		redis.call("set", KEYS[1], 0)
	end
	return 1
`)

// Queue is a task.Queue backed by a Redis list.
type Queue struct {
	client      redis.UniversalClient
	key         string
	reservedKey string
	capacity    int
	logger      *slog.Logger

	// closed is done once Close has been called.
	closed    context.Context
	closeFunc context.CancelFunc
}

var _ task.Queue = (*Queue)(nil)

// New creates a queue stored under key. The client is owned by the caller.
func New(client redis.UniversalClient, key string, capacity int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	closed, closeFunc := context.WithCancel(context.Background())
	return &Queue{
		client:      client,
		key:         key,
		reservedKey: key + ":reserved",
		capacity:    capacity,
		logger:      logger.With("component", "redis_queue", "key", key),
		closed:      closed,
		closeFunc:   closeFunc,
	}
}

func (q *Queue) isClosed() bool {
	return q.closed.Err() != nil
}

// Reserve claims a slot of capacity.
func (q *Queue) Reserve(ctx context.Context) error {
	if q.isClosed() {
		return task.ErrQueueClosed
	}

	ok, err := reserveScript.Run(ctx, q.client,
		[]string{q.key, q.reservedKey},
		q.capacity, reservationTTL.Milliseconds()).Int()
	if err != nil {
		return wrapErr("reserve", err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: queue capacity %d reached", task.ErrQueueFull, q.capacity)
	}
	return nil
}

// Commit enqueues id into a reserved slot.
func (q *Queue) Commit(ctx context.Context, id uuid.UUID) error {
	if q.isClosed() {
		_ = q.Release(ctx)
		return task.ErrQueueClosed
	}
	if err := commitScript.Run(ctx, q.client, []string{q.key, q.reservedKey}, id.String()).Err(); err != nil {
		return wrapErr("commit", err)
	}
	q.logger.Debug("task enqueued", "task_id", id)
	return nil
}

// Release returns a reserved slot.
func (q *Queue) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, q.client, []string{q.reservedKey}).Err(); err != nil {
		return wrapErr("release", err)
	}
	return nil
}

// Requeue appends id without checking capacity.
func (q *Queue) Requeue(ctx context.Context, id uuid.UUID) error {
	if q.isClosed() {
		return task.ErrQueueClosed
	}
	if err := q.client.RPush(ctx, q.key, id.String()).Err(); err != nil {
		return wrapErr("requeue", err)
	}
	return nil
}

// Dequeue blocks until an ID is available, ctx is done or the queue is
// closed. Entries that are not task IDs are dropped with a warning.
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(q.closed, cancel)
	defer stop()

	for {
		if q.isClosed() {
			return uuid.Nil, task.ErrQueueClosed
		}

		res, err := q.client.BLPop(ctx, pollTimeout, q.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if q.isClosed() {
				return uuid.Nil, task.ErrQueueClosed
			}
			if ctx.Err() != nil {
				return uuid.Nil, ctx.Err()
			}
			return uuid.Nil, wrapErr("dequeue", err)
		}

		// BLPOP replies with the key followed by the value.
		id, err := uuid.Parse(res[1])
		if err != nil {
			q.logger.Warn("dropping malformed queue entry", "entry", res[1])
			continue
		}
		return id, nil
	}
}

// Len returns the number of queued IDs across all processes.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, wrapErr("len", err)
	}
	return int(n), nil
}

// Close stops intake for this process and wakes blocked consumers. Queued
// IDs stay in Redis for other processes.
func (q *Queue) Close() error {
	if !q.isClosed() {
		q.closeFunc()
		q.logger.Info("task queue closed")
	}
	return nil
}

func wrapErr(op string, err error) error {
	return fmt.Errorf("redis queue %s: %w: %w", op, domain.ErrStorage, err)
}
