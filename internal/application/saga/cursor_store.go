package saga

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// MemoryCursorStore keeps cascade cursors in process memory. Cursors are
// stored as JSON snapshots so callers never share state with the store.
type MemoryCursorStore struct {
	mu      sync.RWMutex
	cursors map[string][]byte
	status  map[string]CascadeStatus
}

// NewMemoryCursorStore creates an empty store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{
		cursors: make(map[string][]byte),
		status:  make(map[string]CascadeStatus),
	}
}

// Save implements CursorStore.
func (m *MemoryCursorStore) Save(ctx context.Context, c *CascadeCursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[c.RunID] = data
	m.status[c.RunID] = c.Status
	return nil
}

// Load implements CursorStore.
func (m *MemoryCursorStore) Load(ctx context.Context, runID string) (*CascadeCursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.cursors[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, shared.ErrCascadeNotFound
	}

	var c CascadeCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListUnfinished implements CursorStore.
func (m *MemoryCursorStore) ListUnfinished(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, status := range m.status {
		if status != StatusCompleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
