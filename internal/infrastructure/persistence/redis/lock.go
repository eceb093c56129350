package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// releaseScript deletes the lock only while it still holds the caller's
// token. A lock that expired and was taken by another holder stays.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockConfig configures RecomputeLock.
type LockConfig struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
}

// DefaultLockConfig returns default lock configuration.
func DefaultLockConfig() LockConfig {
	return LockConfig{
		TTL:           30 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// RecomputeLock is a SET NX PX lock with a random token per holder. It
// serializes aggregate recomputation of one assignment across API replicas
// and the worker. Keys are <ns>:lock:<resource>.
type RecomputeLock struct {
	cache  *Cache
	config LockConfig
	log    *logger.Logger
}

// NewRecomputeLock creates a lock on top of cache.
func NewRecomputeLock(cache *Cache, cfg LockConfig, log *logger.Logger) *RecomputeLock {
	def := DefaultLockConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &RecomputeLock{cache: cache, config: cfg, log: log.With(logger.Component("recompute_lock"))}
}

// Acquire blocks until the lock on resource is held or ctx is done. The
// returned func releases it and may be called once.
func (l *RecomputeLock) Acquire(ctx context.Context, resource string) (func(), error) {
	key := l.cache.Key("lock", resource)
	token := uuid.NewString()

	var wait *time.Timer
	defer func() {
		if wait != nil {
			wait.Stop()
		}
	}()

	for {
		ok, err := l.cache.client.SetNX(ctx, key, token, l.config.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		if wait == nil {
			wait = time.NewTimer(l.config.RetryInterval)
		} else {
			wait.Reset(l.config.RetryInterval)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait.C:
		}
	}
}

// release runs on its own context so a lock taken under a cancelled
// request is still freed. A failed release leaves the key to expire.
func (l *RecomputeLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cache.opTimeout)
	defer cancel()

	if err := releaseScript.Run(ctx, l.cache.client, []string{key}, token).Err(); err != nil {
		l.log.Warn("failed to release recompute lock",
			logger.String("key", key),
			logger.Duration("ttl", l.config.TTL),
			logger.Err(err),
		)
	}
}
