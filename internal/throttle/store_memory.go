package throttle

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int64
}

// MemoryStore keeps counters in process. Entries from earlier windows are
// dropped lazily, so one MemoryStore must serve a single policy.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]memoryEntry
	latest   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Incr(_ context.Context, key string, window int64, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if window > m.latest {
		m.latest = window
		for k, e := range m.counters {
			if e.window < window-1 {
				delete(m.counters, k)
			}
		}
	}
	e := m.counters[key]
	if e.window != window {
		e = memoryEntry{window: window}
	}
	e.count++
	m.counters[key] = e
	return e.count, nil
}
