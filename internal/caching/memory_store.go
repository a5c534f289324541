package caching

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultMaxEntries = 10000
	// Counters untouched this long are dropped by PurgeExpired. A dropped
	// counter is re-seeded above its old value on next use.
	counterIdleTTL = 24 * time.Hour
)

// MemoryStore is an in-process Store with TTL expiration and LRU eviction.
// Counters live outside the LRU and are only dropped once idle.
type MemoryStore struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	items    map[string]*list.Element
	eviction *list.List // front = most recently used
	counters map[string]*memoryCounter
	maxSize  int

	hits, misses, evictions int64
}

type memoryCounter struct {
	value   int64
	touched time.Time
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryStats is a point-in-time view of the store.
type MemoryStats struct {
	Size      int
	MaxSize   int
	Hits      int64
	Misses    int64
	Evictions int64
	Counters  int
}

func NewMemoryStore(clock clockwork.Clock, maxSize int) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxSize <= 0 {
		maxSize = defaultMaxEntries
	}
	return &MemoryStore{
		clock:    clock,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		counters: make(map[string]*memoryCounter),
		maxSize:  maxSize,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.misses++
		return nil, nil
	}
	entry := elem.Value.(*memoryEntry)
	if !m.clock.Now().Before(entry.expiresAt) {
		m.removeLocked(elem)
		m.misses++
		return nil, nil
	}

	m.eviction.MoveToFront(elem)
	m.hits++
	return slices.Clone(entry.value), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.clock.Now().Add(ttl)
	if elem, ok := m.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = slices.Clone(value)
		entry.expiresAt = expiresAt
		m.eviction.MoveToFront(elem)
		return nil
	}

	for m.eviction.Len() >= m.maxSize {
		m.evictLocked()
	}
	m.items[key] = m.eviction.PushFront(&memoryEntry{
		key:       key,
		value:     slices.Clone(value),
		expiresAt: expiresAt,
	})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		if elem, ok := m.items[key]; ok {
			m.removeLocked(elem)
		}
	}
	return nil
}

func (m *MemoryStore) Incr(_ context.Context, counters ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range counters {
		m.counterLocked(c).value++
	}
	return nil
}

func (m *MemoryStore) Counters(_ context.Context, counters ...string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]int64, len(counters))
	for i, c := range counters {
		out[i] = m.counterLocked(c).value
	}
	return out, nil
}

func (m *MemoryStore) counterLocked(name string) *memoryCounter {
	now := m.clock.Now()
	c, ok := m.counters[name]
	if !ok {
		c = &memoryCounter{value: counterSeed(m.clock)}
		m.counters[name] = c
	}
	c.touched = now
	return c
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// PurgeExpired drops every expired entry and returns how many went. Idle
// counters are dropped too but not counted.
func (m *MemoryStore) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for name, c := range m.counters {
		if now.Sub(c.touched) >= counterIdleTTL {
			delete(m.counters, name)
		}
	}

	purged := 0
	var next *list.Element
	for e := m.eviction.Front(); e != nil; e = next {
		next = e.Next()
		if !now.Before(e.Value.(*memoryEntry).expiresAt) {
			m.removeLocked(e)
			purged++
		}
	}
	return purged
}

// Len counts entries, including expired ones not yet purged.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eviction.Len()
}

func (m *MemoryStore) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoryStats{
		Size:      m.eviction.Len(),
		MaxSize:   m.maxSize,
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Counters:  len(m.counters),
	}
}

func (m *MemoryStore) evictLocked() {
	back := m.eviction.Back()
	if back == nil {
		return
	}
	m.removeLocked(back)
	m.evictions++
}

func (m *MemoryStore) removeLocked(elem *list.Element) {
	delete(m.items, elem.Value.(*memoryEntry).key)
	m.eviction.Remove(elem)
}
