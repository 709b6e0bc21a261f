package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/agenda/internal/logger"
)

// Defaults for RedisLockerOptions.
const (
	DefaultLockTTL       = 10 * time.Second
	DefaultLockRetry     = 50 * time.Millisecond
	DefaultLockKeyPrefix = "agenda:lock:"
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockerOptions configures a RedisLocker. Zero values take defaults.
type RedisLockerOptions struct {
	// TTL bounds how long a crashed holder can keep a participant locked.
	TTL time.Duration

	// RetryInterval is the wait between acquisition attempts.
	RetryInterval time.Duration

	// Prefix is prepended to every lock key.
	Prefix string

	Logger *logger.Logger
}

// RedisLocker is a Locker shared by every process connected to the same
// Redis, for deployments where several agenda processes write one store.
type RedisLocker struct {
	client redis.UniversalClient
	opts   RedisLockerOptions
}

// NewRedisLocker creates a RedisLocker on an existing client.
func NewRedisLocker(client redis.UniversalClient, opts RedisLockerOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = DefaultLockTTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultLockRetry
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultLockKeyPrefix
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &RedisLocker{client: client, opts: opts}
}

// Lock acquires key with SET NX PX, retrying until ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.opts.Prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", redisKey, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.opts.Logger.Warn("release lock failed", "key", redisKey, "error", err)
			}
		})
	}, nil
}
