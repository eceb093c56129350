// Package cache is the read-through cache used by the API client.
//
// Entries are keyed by opaque strings (see keys.go) and are fresh for a fixed
// TTL after they were fetched. Concurrent loads of the same missing key share
// one fetch. Mutations drop dependent entries through Invalidate.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a fetched value stays fresh.
const DefaultTTL = 5 * time.Minute

// ErrFetchAbandoned is returned to callers waiting on a fetch that ended
// without a value or an error of its own. They may retry.
var ErrFetchAbandoned = errors.New("cache: fetch abandoned")

// Clock returns the current time.
type Clock func() time.Time

// Entry is a snapshot of one cache entry.
type Entry struct {
	Value     any
	HasValue  bool
	FetchedAt time.Time
	Loading   bool
	LastError string
}

// EventKind describes what happened to a key.
type EventKind int

const (
	EventLoading EventKind = iota
	EventData
	EventError
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventLoading:
		return "loading"
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventCleared:
		return "cleared"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is delivered to subscribers after every state change.
type Event struct {
	Kind EventKind
	Key  string
}

// flight is one in-progress fetch. done is closed once value/err are set;
// only the first resolve counts.
type flight struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error

	// waiters counts callers blocked on done. Guarded by Cache.mu.
	waiters int
}

func newFlight() *flight {
	return &flight{done: make(chan struct{})}
}

func (f *flight) resolve(value any, err error) {
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
	})
}

type entry struct {
	value     any
	hasValue  bool
	fetchedAt time.Time
	loading   bool
	lastError string
}

// Cache holds entries, in-flight fetches and subscribers. The zero value is
// not usable; construct with New.
type Cache struct {
	ttl time.Duration
	now Clock

	mu      sync.Mutex
	entries map[string]*entry
	flights map[string]*flight

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now Clock) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]*entry),
		flights: make(map[string]*flight),
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

func (c *Cache) freshLocked(key string) (*entry, bool) {
	e, ok := c.entries[key]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e, c.now().Sub(e.fetchedAt) < c.ttl
}

// IsFresh reports whether key holds a value fetched less than TTL ago.
func (c *Cache) IsFresh(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, fresh := c.freshLocked(key)
	return fresh
}

// GetCached returns the value of key if it is fresh. It never fetches.
func (c *Cache) GetCached(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, fresh := c.freshLocked(key)
	if !fresh {
		return nil, false
	}
	return e.value, true
}

// Entry returns a snapshot of key, stale or not.
func (c *Cache) Entry(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Value:     e.value,
		HasValue:  e.hasValue,
		FetchedAt: e.fetchedAt,
		Loading:   e.loading,
		LastError: e.lastError,
	}, true
}

// IsLoading reports whether a fetch for key is in flight.
func (c *Cache) IsLoading(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.loading
}

// Waiters returns how many callers are waiting on the in-flight fetch of
// key, not counting the caller running it.
func (c *Cache) Waiters(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.flights[key]; ok {
		return f.waiters
	}
	return 0
}

// AnyLoading reports whether any fetch is in flight.
func (c *Cache) AnyLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.loading {
			return true
		}
	}
	return false
}

// Len returns the number of entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITES
// ══════════════════════════════════════════════════════════════════════════════

func (c *Cache) entryLocked(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// SetLoading marks key as being fetched. Later Load calls wait for the
// outcome instead of fetching again. SetLoading(key, false) without a
// SetData or SetError releases those waiters with ErrFetchAbandoned.
func (c *Cache) SetLoading(key string, loading bool) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.loading = loading
	if loading {
		e.lastError = ""
		if _, ok := c.flights[key]; !ok {
			c.flights[key] = newFlight()
		}
	} else if f, ok := c.flights[key]; ok {
		delete(c.flights, key)
		f.resolve(nil, ErrFetchAbandoned)
	}
	c.mu.Unlock()

	if loading {
		c.publish(Event{Kind: EventLoading, Key: key})
	}
}

// SetData stores value as fresh and settles any fetch waiting on key.
func (c *Cache) SetData(key string, value any) {
	c.mu.Lock()
	c.storeLocked(key, value)
	if f, ok := c.flights[key]; ok {
		delete(c.flights, key)
		f.resolve(value, nil)
	}
	c.mu.Unlock()

	c.publish(Event{Kind: EventData, Key: key})
}

func (c *Cache) storeLocked(key string, value any) {
	e := c.entryLocked(key)
	e.value = value
	e.hasValue = true
	e.fetchedAt = c.now()
	e.loading = false
	e.lastError = ""
}

// SetError records a failed fetch. A previously cached value is kept; waiters
// receive err.
func (c *Cache) SetError(key string, err error) {
	if err == nil {
		err = errors.New("cache: unknown fetch error")
	}
	c.mu.Lock()
	c.failLocked(key, err)
	if f, ok := c.flights[key]; ok {
		delete(c.flights, key)
		f.resolve(nil, err)
	}
	c.mu.Unlock()

	c.publish(Event{Kind: EventError, Key: key})
}

func (c *Cache) failLocked(key string, err error) {
	e := c.entryLocked(key)
	e.loading = false
	e.lastError = err.Error()
}

// Clear drops key. A fetch in flight for it still answers its own waiters
// but its result is not stored.
func (c *Cache) Clear(key string) {
	c.ClearMany(key)
}

// ClearMany drops all keys under one lock, so no reader sees some of them
// cleared and others not.
func (c *Cache) ClearMany(keys ...string) {
	c.mu.Lock()
	cleared := make([]string, 0, len(keys))
	for _, key := range keys {
		if c.dropLocked(key) {
			cleared = append(cleared, key)
		}
	}
	c.mu.Unlock()

	c.publishCleared(cleared)
}

// ClearPrefix drops every key starting with prefix.
func (c *Cache) ClearPrefix(prefix string) {
	c.ClearTargets(Target{Key: prefix, Prefix: true})
}

// ClearAll drops every entry.
func (c *Cache) ClearAll() {
	c.ClearTargets(Target{Key: "", Prefix: true})
}

// ClearTargets drops every key matched by targets under one lock.
func (c *Cache) ClearTargets(targets ...Target) {
	c.mu.Lock()
	var cleared []string
	for _, t := range targets {
		if !t.Prefix {
			if c.dropLocked(t.Key) {
				cleared = append(cleared, t.Key)
			}
			continue
		}
		for key := range c.keysLocked() {
			if strings.HasPrefix(key, t.Key) && c.dropLocked(key) {
				cleared = append(cleared, key)
			}
		}
	}
	c.mu.Unlock()

	c.publishCleared(cleared)
}

func (c *Cache) keysLocked() map[string]struct{} {
	keys := make(map[string]struct{}, len(c.entries)+len(c.flights))
	for k := range c.entries {
		keys[k] = struct{}{}
	}
	for k := range c.flights {
		keys[k] = struct{}{}
	}
	return keys
}

// dropLocked detaches key's flight without settling it: the fetcher still
// answers the callers that joined it.
func (c *Cache) dropLocked(key string) bool {
	_, hadEntry := c.entries[key]
	_, hadFlight := c.flights[key]
	delete(c.entries, key)
	delete(c.flights, key)
	return hadEntry || hadFlight
}

// ══════════════════════════════════════════════════════════════════════════════
// LOAD
// ══════════════════════════════════════════════════════════════════════════════

// FetchFunc fetches the value of one key.
type FetchFunc func(ctx context.Context) (any, error)

// Load returns the fresh value of key or fetches it. While a fetch for key
// is in flight every other caller waits for it and gets the same value or
// error. A waiter gives up when its own ctx ends.
func (c *Cache) Load(ctx context.Context, key string, fetch FetchFunc) (any, error) {
	for {
		c.mu.Lock()
		if e, fresh := c.freshLocked(key); fresh {
			c.mu.Unlock()
			return e.value, nil
		}
		if f, ok := c.flights[key]; ok {
			f.waiters++
			c.mu.Unlock()
			value, err := wait(ctx, f)
			c.mu.Lock()
			f.waiters--
			c.mu.Unlock()
			if errors.Is(err, ErrFetchAbandoned) && ctx.Err() == nil {
				continue
			}
			return value, err
		}

		f := newFlight()
		c.flights[key] = f
		e := c.entryLocked(key)
		e.loading = true
		e.lastError = ""
		c.mu.Unlock()

		c.publish(Event{Kind: EventLoading, Key: key})
		return c.lead(ctx, key, f, fetch)
	}
}

func wait(ctx context.Context, f *flight) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lead runs fetch for the callers waiting on f.
func (c *Cache) lead(ctx context.Context, key string, f *flight, fetch FetchFunc) (value any, err error) {
	settled := false
	defer func() {
		if !settled {
			// fetch panicked: release the waiters before the panic goes on.
			c.settle(key, f, nil, ErrFetchAbandoned)
		}
	}()

	value, err = fetch(ctx)
	settled = true

	if err != nil && ctx.Err() != nil {
		// The leader's own context ended. Others may still want the value.
		c.settle(key, f, nil, ErrFetchAbandoned)
		return nil, err
	}
	c.settle(key, f, value, err)
	return value, err
}

// settle answers f's waiters and, if f is still the current flight for
// key, stores the outcome.
func (c *Cache) settle(key string, f *flight, value any, err error) {
	c.mu.Lock()
	current := c.flights[key] == f
	var kind EventKind
	if current {
		delete(c.flights, key)
		switch {
		case errors.Is(err, ErrFetchAbandoned):
			if e, ok := c.entries[key]; ok {
				e.loading = false
			}
			current = false
		case err != nil:
			c.failLocked(key, err)
			kind = EventError
		default:
			c.storeLocked(key, value)
			kind = EventData
		}
	}
	f.resolve(value, err)
	c.mu.Unlock()

	if current {
		c.publish(Event{Kind: kind, Key: key})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBSCRIBERS
// ══════════════════════════════════════════════════════════════════════════════

// Subscribe registers fn for every state change and returns a function that
// removes it. fn runs synchronously on the goroutine that made the change
// and must not block.
func (c *Cache) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Cache) publish(ev Event) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, fn := range c.subs {
		fn(ev)
	}
}

func (c *Cache) publishCleared(keys []string) {
	for _, key := range keys {
		c.publish(Event{Kind: EventCleared, Key: key})
	}
}
