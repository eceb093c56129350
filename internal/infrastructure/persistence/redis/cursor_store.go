package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avalia-hub/avalia-hub/internal/application/saga"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// CursorTTL keeps cursors long enough for an operator to resume a run.
const CursorTTL = 7 * 24 * time.Hour

// CursorStore persists roster cascade cursors as JSON values and indexes
// unfinished runs in a set. A cursor and its index entry change together
// in one MULTI block.
//
// Layout:
//
//	<ns>:cascade:run:<run id>   JSON cursor, expires after CursorTTL
//	<ns>:cascade:unfinished     set of run IDs not yet completed
type CursorStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewCursorStore creates a CursorStore.
func NewCursorStore(cache *Cache) *CursorStore {
	return &CursorStore{cache: cache, ttl: CursorTTL}
}

func (s *CursorStore) runKey(runID string) string { return s.cache.Key("cascade", "run", runID) }
func (s *CursorStore) indexKey() string           { return s.cache.Key("cascade", "unfinished") }

// Save implements saga.CursorStore.
func (s *CursorStore) Save(ctx context.Context, c *saga.CascadeCursor) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cursor %s: %w", c.RunID, err)
	}

	_, err = s.cache.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.runKey(c.RunID), data, s.ttl)
		if c.Finished() {
			p.SRem(ctx, s.indexKey(), c.RunID)
		} else {
			p.SAdd(ctx, s.indexKey(), c.RunID)
		}
		return nil
	})
	if err != nil {
		return shared.StoreFailure("cascade", "SaveCursor", err)
	}
	return nil
}

// Load implements saga.CursorStore.
func (s *CursorStore) Load(ctx context.Context, runID string) (*saga.CascadeCursor, error) {
	var c saga.CascadeCursor
	err := s.cache.getJSON(ctx, s.runKey(runID), &c)
	switch {
	case errors.Is(err, ErrCacheMiss):
		return nil, shared.ErrCascadeNotFound
	case err != nil:
		return nil, shared.StoreFailure("cascade", "LoadCursor", err)
	}
	return &c, nil
}

// ListUnfinished implements saga.CursorStore. Index entries whose cursor
// expired are pruned.
func (s *CursorStore) ListUnfinished(ctx context.Context) ([]string, error) {
	ids, err := s.cache.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, shared.StoreFailure("cascade", "ListUnfinished", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	exists, err := s.cache.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, shared.StoreFailure("cascade", "ListUnfinished", err)
	}

	out := make([]string, 0, len(ids))
	var expired []any
	for i, v := range exists {
		if v == nil {
			expired = append(expired, ids[i])
			continue
		}
		out = append(out, ids[i])
	}
	if len(expired) > 0 {
		_ = s.cache.client.SRem(ctx, s.indexKey(), expired...).Err()
	}

	sort.Strings(out)
	return out, nil
}
