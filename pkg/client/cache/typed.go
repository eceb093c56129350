package cache

import (
	"context"
	"fmt"
)

// Typed is a view of a Cache whose values are all of type T.
type Typed[T any] struct {
	c *Cache
}

// NewTyped wraps c.
func NewTyped[T any](c *Cache) Typed[T] {
	return Typed[T]{c: c}
}

// Get returns the fresh value of key.
func (t Typed[T]) Get(key string) (T, bool) {
	var zero T
	v, ok := t.c.GetCached(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Set stores value under key.
func (t Typed[T]) Set(key string, value T) {
	t.c.SetData(key, value)
}

// Load is Cache.Load for values of type T.
func (t Typed[T]) Load(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	v, err := t.c.Load(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: key %q holds %T", key, v)
	}
	return typed, nil
}
