package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is still held by someone else once
// the wait budget runs out.
var ErrNotAcquired = errors.New("lock: not acquired")

// Client is the subset of the go-redis API the locker needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Locker provides a Redis-backed mutual exclusion keyed by name, used to
// serialise concurrent callbacks touching the same order.
type Locker struct {
	R            Client
	Prefix       string
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock polls for a held lock. Zero waits until
	// the context is done.
	MaxWait time.Duration
}

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// WithLock executes fn while holding a lock for the provided key. The lock is
// released automatically even if fn returns an error.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	waitCtx := ctx
	if l.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.MaxWait)
		defer cancel()
	}

	redisKey := l.Prefix + key
	token := uuid.NewString()
	for {
		ok, err := l.R.SetNX(waitCtx, redisKey, token, ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return fmt.Errorf("%w: %s", ErrNotAcquired, key)
			}
			return fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			defer l.release(context.Background(), redisKey, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s", ErrNotAcquired, key)
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
