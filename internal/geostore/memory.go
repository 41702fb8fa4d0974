package geostore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	policy RetryPolicy

	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(policy RetryPolicy) *MemoryStore {
	return &MemoryStore{
		policy:  policy,
		records: make(map[string]*Record),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	return m.load(ctx, id)
}

// RunTransaction implements Store.
func (m *MemoryStore) RunTransaction(ctx context.Context, id string, fn TxFunc) (*Record, error) {
	return runTransaction(ctx, m, m.policy, id, fn)
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		c := r.clone()
		c.sanitize()
		out = append(out, *c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Tracked.Equal(out[j].Tracked) {
			return out[i].Tracked.After(out[j].Tracked)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Seed stores rec as is, bypassing sanitising. It exists to load fixtures,
// including malformed historical data.
func (m *MemoryStore) Seed(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := rec.clone()
	if c.Version == 0 {
		c.Version = 1
	}
	m.records[c.ID] = c
}

func (m *MemoryStore) load(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := r.clone()
	c.sanitize()
	return c, nil
}

func (m *MemoryStore) put(_ context.Context, rec *Record, prev int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if cur, ok := m.records[rec.ID]; ok {
		stored = cur.Version
	}
	if stored != prev {
		return ErrConflict
	}
	rec.Version = prev + 1
	m.records[rec.ID] = rec.clone()
	return nil
}
