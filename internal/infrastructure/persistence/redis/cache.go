// Package redis holds the Redis-backed coordination shared by API replicas
// and the worker: the per-assignment recompute lock and the persisted
// roster cascade cursors. Every key lives under one namespace so several
// deployments can share a Redis database.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key written by this package.
const DefaultNamespace = "avalia"

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	// Namespace prefixes keys. Empty means DefaultNamespace.
	Namespace string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a local single-node configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		Namespace:    DefaultNamespace,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var (
	// ErrCacheMiss is returned when a key does not exist.
	ErrCacheMiss = errors.New("redis: key not found")

	// ErrCacheConnection is returned when Redis cannot be reached.
	ErrCacheConnection = errors.New("redis: connection failed")
)

// Cache is a namespaced connection to Redis.
type Cache struct {
	client    *redis.Client
	namespace string
	// opTimeout bounds cleanup calls made after the caller's context ended.
	opTimeout time.Duration
}

// NewCache connects using cfg and verifies the connection.
func NewCache(cfg Config) (*Cache, error) {
	return connect(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, cfg.Namespace)
}

// NewCacheFromURL connects using a redis:// or rediss:// URL.
func NewCacheFromURL(url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = DefaultConfig().DialTimeout
	}
	return connect(opts, DefaultNamespace)
}

func connect(opts *redis.Options, namespace string) (*Cache, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return newCache(client, namespace, opts.WriteTimeout), nil
}

func newCache(client *redis.Client, namespace string, opTimeout time.Duration) *Cache {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if opTimeout <= 0 {
		opTimeout = DefaultConfig().WriteTimeout
	}
	return &Cache{client: client, namespace: namespace, opTimeout: opTimeout + time.Second}
}

// Key joins parts under the namespace: Key("lock", "x") is "avalia:lock:x".
func (c *Cache) Key(parts ...string) string {
	return c.namespace + ":" + strings.Join(parts, ":")
}

// Close closes the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// getJSON decodes the value at key into dest.
func (c *Cache) getJSON(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
