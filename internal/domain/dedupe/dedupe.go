// Package dedupe provides at-most-one in-flight tracking by key.
//
// The roster projection uses it to coalesce snapshot refetches: many sync
// events for the same date while a refetch is in flight collapse into that
// one refetch plus at most one follow-up.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Marker records keys currently in flight.
type Marker interface {
	// SeenAndRecord atomically checks whether key is in flight and records
	// it if not. Returns true if key was already recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord clears a key once its work completes, allowing the next
	// request for that key through.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

type inMemoryMarker struct {
	mu   sync.Mutex
	keys map[string]struct{}
	size atomic.Int64
}

// NewInMemoryMarker creates an unbounded in-memory marker. The key space is
// small (one key per viewed date), so no eviction is needed.
func NewInMemoryMarker() Marker {
	return &inMemoryMarker{keys: make(map[string]struct{})}
}

func (m *inMemoryMarker) SeenAndRecord(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return true
	}
	m.keys[key] = struct{}{}
	m.size.Add(1)
	return false
}

func (m *inMemoryMarker) Unrecord(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		delete(m.keys, key)
		m.size.Add(-1)
	}
}

func (m *inMemoryMarker) Size() int64 {
	return m.size.Load()
}
