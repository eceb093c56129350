package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestCache_Key(t *testing.T) {
	c := newCache(nil, "", 0)
	assert.Equal(t, "avalia:lock:assignment:a1", c.Key("lock", "assignment:a1"))

	c = newCache(nil, "staging", 0)
	assert.Equal(t, "staging:cascade:unfinished", c.Key("cascade", "unfinished"))
}

func TestCache_OpTimeout(t *testing.T) {
	assert.Equal(t, 4*time.Second, newCache(nil, "", 0).opTimeout)
	assert.Equal(t, 1500*time.Millisecond, newCache(nil, "", 500*time.Millisecond).opTimeout)
}

func TestCursorStore_Keys(t *testing.T) {
	s := NewCursorStore(newCache(nil, "", 0))
	assert.Equal(t, "avalia:cascade:run:r1", s.runKey("r1"))
	assert.Equal(t, "avalia:cascade:unfinished", s.indexKey())
	assert.Equal(t, CursorTTL, s.ttl)
}

func TestConfigAddr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, DefaultNamespace, cfg.Namespace)
}

func TestNewRecomputeLock_Defaults(t *testing.T) {
	l := NewRecomputeLock(nil, LockConfig{}, nil)
	assert.Equal(t, 30*time.Second, l.config.TTL)
	assert.Equal(t, 50*time.Millisecond, l.config.RetryInterval)

	l = NewRecomputeLock(nil, LockConfig{TTL: time.Second, RetryInterval: time.Millisecond}, nil)
	assert.Equal(t, time.Second, l.config.TTL)
}

func TestNewCacheFromURL_InvalidURL(t *testing.T) {
	_, err := NewCacheFromURL("not-a-url://")
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestNewCache_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.MaxRetries = -1
	cfg.DialTimeout = 200 * time.Millisecond

	_, err := NewCache(cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestCache_CloseOwnClient(t *testing.T) {
	c := newCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "", 0)
	assert.NoError(t, c.Close())
}
