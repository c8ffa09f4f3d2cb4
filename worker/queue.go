package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"manuscript-converter/config"
)

var ErrQueueEmpty = errors.New("queue empty")

// Queue carries file confirmed events between the upload service and the
// workers. Popped payloads stay on a processing list until acknowledged.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Push(ctx context.Context, payload string) error
	Ack(ctx context.Context, payload string) error
	Fail(ctx context.Context, payload string) error
	Processing(ctx context.Context) ([]string, error)
	SetStatus(ctx context.Context, key string, fields map[string]interface{}) error
}

// ResourceLocker serializes runs for one resource across processes.
type ResourceLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
	Held(ctx context.Context, key string) (bool, error)
}

type RedisQueue struct {
	client     *redis.Client
	pending    string
	processing string
	failed     string
	lockPrefix string
}

func NewRedisQueue(client *redis.Client, cfg *config.Config) *RedisQueue {
	return &RedisQueue{
		client:     client,
		pending:    cfg.PendingQueue,
		processing: cfg.ProcessingQueue,
		failed:     cfg.FailedQueue,
		lockPrefix: cfg.LockPrefix,
	}
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	// Atomic pop from pending and push to processing
	result, err := q.client.BRPopLPush(ctx, q.pending, q.processing, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrQueueEmpty
	}
	return result, err
}

func (q *RedisQueue) Push(ctx context.Context, payload string) error {
	return q.client.LPush(ctx, q.pending, payload).Err()
}

func (q *RedisQueue) Ack(ctx context.Context, payload string) error {
	return q.client.LRem(ctx, q.processing, 1, payload).Err()
}

func (q *RedisQueue) Fail(ctx context.Context, payload string) error {
	return q.client.LPush(ctx, q.failed, payload).Err()
}

func (q *RedisQueue) Processing(ctx context.Context) ([]string, error) {
	return q.client.LRange(ctx, q.processing, 0, -1).Result()
}

func (q *RedisQueue) SetStatus(ctx context.Context, key string, fields map[string]interface{}) error {
	return q.client.HSet(ctx, key, fields).Err()
}

// unlockScript deletes the lock only if this holder still owns it.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (q *RedisQueue) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lockKey := q.lockPrefix + key
	token := uuid.NewString()

	ok, err := q.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	return func() {
		// The run context may already be cancelled; release regardless.
		_ = unlockScript.Run(context.Background(), q.client, []string{lockKey}, token).Err()
	}, true, nil
}

func (q *RedisQueue) Held(ctx context.Context, key string) (bool, error) {
	n, err := q.client.Exists(ctx, q.lockPrefix+key).Result()
	return n > 0, err
}
