package idalloc

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a Store kept in process memory. It does not survive a
// restart and is meant for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	counter int64
	used    map[int64]bool
	unused  map[int64]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		used:   make(map[int64]bool),
		unused: make(map[int64]bool),
	}
}

// LoadCounter implements Store.
func (m *MemoryStore) LoadCounter(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter, nil
}

// CommitAllocation implements Store.
func (m *MemoryStore) CommitAllocation(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter = id
	m.used[id] = true
	return nil
}

// CommitRelease implements Store.
func (m *MemoryStore) CommitRelease(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.used[id] {
		return ErrNotAllocated
	}
	delete(m.used, id)
	m.unused[id] = true
	return nil
}

// Used implements Store.
func (m *MemoryStore) Used(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.used), nil
}

// Unused implements Store.
func (m *MemoryStore) Unused(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.unused), nil
}

func sortedKeys(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
