package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zsiec/avcore/internal/metrics"
)

// MemoryStore is an in-process Store. It is the default when Redis is
// disabled.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*ContainerSnapshot
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*ContainerSnapshot)}
}

func (m *MemoryStore) Put(ctx context.Context, snap *ContainerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c := snap.Clone()
	if existing, ok := m.snapshots[snap.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	m.snapshots[snap.ID] = c

	metrics.IncrementRegistryOperation("memory", "put", nil)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*ContainerSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[id]
	if !ok {
		return nil, notFound(id)
	}
	return snap.Clone(), nil
}

// List returns snapshots ordered by creation time.
func (m *MemoryStore) List(ctx context.Context) ([]*ContainerSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ContainerSnapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, snap.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListPaginated pages through List. The cursor is the offset of the next
// snapshot in creation order.
func (m *MemoryStore) ListPaginated(ctx context.Context, cursor uint64, count int64) ([]*ContainerSnapshot, uint64, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	if count <= 0 {
		count = 10
	}
	if cursor >= uint64(len(all)) {
		return []*ContainerSnapshot{}, 0, nil
	}

	end := cursor + uint64(count)
	if end >= uint64(len(all)) {
		return all[cursor:], 0, nil
	}
	return all[cursor:end], end, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snapshots[id]; !ok {
		return notFound(id)
	}
	delete(m.snapshots, id)
	metrics.IncrementRegistryOperation("memory", "delete", nil)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = make(map[string]*ContainerSnapshot)
	return nil
}
