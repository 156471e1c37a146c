package eventstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process fake of Store, used in tests in place of a
// live Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int
	contents map[string]map[string]any
	base     []BaseEvent
}

// NewMemory returns a Store backed by in-process slices/maps.
func NewMemory() *MemoryStore {
	return &MemoryStore{contents: make(map[string]map[string]any)}
}

func (m *MemoryStore) InsertContents(_ context.Context, contents []map[string]any) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(contents))
	for i, c := range contents {
		m.nextID++
		id := fmt.Sprintf("%d", m.nextID)
		m.contents[id] = c
		ids[i] = id
	}
	return ids, nil
}

func (m *MemoryStore) InsertBaseEvents(_ context.Context, events []BaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.base = append(m.base, events...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// BaseEvents returns a snapshot of every base event persisted so far, for
// test assertions.
func (m *MemoryStore) BaseEvents() []BaseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BaseEvent, len(m.base))
	copy(out, m.base)
	return out
}

// Content returns the content document stored under id, for test
// assertions.
func (m *MemoryStore) Content(id string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contents[id]
	return c, ok
}
