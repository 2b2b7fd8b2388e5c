package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when a distributed lock could not be acquired
// before its acquire timeout elapsed.
var ErrLockHeld = errors.New("sandbox: distributed lock held by another process")

// DistLock is the cross-process layer of the three-layer locking scheme
// get_or_create relies on (DB unique constraint + this lock + an
// in-process mutex). Implementations must be safe for concurrent use by
// multiple processes racing on the same key.
type DistLock interface {
	// Acquire blocks up to acquireTimeout trying to take key, held for ttl.
	// The returned release func is idempotent.
	Acquire(ctx context.Context, key string, ttl, acquireTimeout time.Duration) (release func(context.Context), err error)
}

// RedisLock implements DistLock with Redis SET NX PX / a token-checked Lua
// delete, following the conventional single-instance Redis lock recipe.
type RedisLock struct {
	redis *redis.Client
}

var _ DistLock = (*RedisLock)(nil)

// NewRedisLock builds a DistLock over an existing Redis client.
func NewRedisLock(rdb *redis.Client) *RedisLock {
	return &RedisLock{redis: rdb}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Acquire implements DistLock.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl, acquireTimeout time.Duration) (func(context.Context), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(acquireTimeout)
	const pollInterval = 100 * time.Millisecond

	for {
		ok, err := l.redis.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("sandbox: acquire lock %s: %w", key, err)
		}
		if ok {
			release := func(rctx context.Context) {
				releaseScript.Run(rctx, l.redis, []string{key}, token)
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
