package seen

import (
	"context"
	"sync"
)

// Memory is the default in-process store. With capacity 0 it never evicts;
// with a positive capacity it drops ids in insertion order once full.
//
// Insertion-order eviction only guarantees no re-notification when ids
// arrive in non-decreasing order, as Telegram message ids do: an evicted
// id is then older than anything a bounded pull window returns again.
// Hash-derived ids (the RSS source) carry no such ordering, so a capacity
// smaller than the feed window can evict a still-current id; keep the
// store unbounded there.
type Memory struct {
	mu       sync.Mutex
	ids      map[int64]struct{}
	order    []int64
	capacity int
}

func NewMemory(capacity int) *Memory {
	return &Memory{
		ids:      make(map[int64]struct{}),
		capacity: capacity,
	}
}

func (m *Memory) Contains(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.ids[id]
	return ok, nil
}

func (m *Memory) Add(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ids[id]; ok {
		return nil
	}

	m.ids[id] = struct{}{}
	m.order = append(m.order, id)

	if m.capacity > 0 && len(m.order) > m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.ids, oldest)
	}

	return nil
}

func (m *Memory) Size(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return int64(len(m.ids)), nil
}
