package state

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps state in process memory. Used by tests and by
// ephemeral runs that should leave no file behind.
type MemoryStore struct {
	mu         sync.RWMutex
	selections map[selKey]Selection
	dispatches []Dispatch
}

type selKey struct {
	workspaceID string
	kind        string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		selections: make(map[selKey]Selection),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// SaveSelection inserts or replaces the selection for its (workspace,
// kind) pair.
func (m *MemoryStore) SaveSelection(_ context.Context, sel Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections[selKey{sel.WorkspaceID, sel.Kind}] = sel
	return nil
}

// LoadSelection returns the stored selection or ErrNotFound.
func (m *MemoryStore) LoadSelection(_ context.Context, workspaceID, kind string) (*Selection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sel, ok := m.selections[selKey{workspaceID, kind}]
	if !ok {
		return nil, ErrNotFound
	}
	out := sel
	return &out, nil
}

// ClearSelection removes the selection if present.
func (m *MemoryStore) ClearSelection(_ context.Context, workspaceID, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.selections, selKey{workspaceID, kind})
	return nil
}

// RecordDispatch appends one dispatch record.
func (m *MemoryStore) RecordDispatch(_ context.Context, d Dispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, d)
	return nil
}

// RecentDispatches returns up to limit records for the workspace,
// newest first. Insert order breaks started_at ties.
func (m *MemoryStore) RecentDispatches(_ context.Context, workspaceID string, limit int) ([]Dispatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Dispatch
	for i := len(m.dispatches) - 1; i >= 0; i-- {
		if m.dispatches[i].WorkspaceID == workspaceID {
			out = append(out, m.dispatches[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
