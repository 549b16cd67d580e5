package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore keeps one LRU per kind. Capacity is enforced by the LRU on
// every Put, so EnforceCapacity has nothing left to do.
type MemoryStore struct {
	policies map[Kind]Policy

	mu     sync.Mutex
	caches map[Kind]*lru.Cache[string, Entry]

	// guards read-modify-write of entries; the LRU only locks single calls
	entryMu sync.Mutex
}

func NewMemoryStore(policies map[Kind]Policy) *MemoryStore {
	return &MemoryStore{
		policies: policies,
		caches:   make(map[Kind]*lru.Cache[string, Entry]),
	}
}

func (m *MemoryStore) cacheFor(kind Kind) (*lru.Cache[string, Entry], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caches[kind]; ok {
		return c, nil
	}
	c, err := lru.New[string, Entry](policyFor(m.policies, kind).Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru for %s: %w", kind, err)
	}
	m.caches[kind] = c
	return c, nil
}

func (m *MemoryStore) Get(kind Kind, key string, now time.Time) (Entry, bool, error) {
	c, err := m.cacheFor(kind)
	if err != nil {
		return Entry{}, false, err
	}
	m.entryMu.Lock()
	defer m.entryMu.Unlock()
	e, ok := c.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if e.Expired(now) {
		c.Remove(key)
		return Entry{}, false, nil
	}
	e.AccessCount++
	e.LastAccessedAt = now
	// Add on an existing key only refreshes it; it cannot evict.
	c.Add(key, e)
	return e, true, nil
}

func (m *MemoryStore) Put(e Entry) error {
	c, err := m.cacheFor(e.Kind)
	if err != nil {
		return err
	}
	m.entryMu.Lock()
	defer m.entryMu.Unlock()
	c.Add(e.Key, e)
	return nil
}

func (m *MemoryStore) Delete(kind Kind, key string) error {
	c, err := m.cacheFor(kind)
	if err != nil {
		return err
	}
	c.Remove(key)
	return nil
}

func (m *MemoryStore) PurgeExpired(now time.Time) (int, error) {
	m.mu.Lock()
	caches := make([]*lru.Cache[string, Entry], 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.mu.Unlock()

	m.entryMu.Lock()
	defer m.entryMu.Unlock()
	purged := 0
	for _, c := range caches {
		for _, key := range c.Keys() {
			if e, ok := c.Peek(key); ok && e.Expired(now) {
				c.Remove(key)
				purged++
			}
		}
	}
	return purged, nil
}

func (m *MemoryStore) EnforceCapacity(Kind, int, string) (int, error) { return 0, nil }

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.caches {
		c.Purge()
	}
	return nil
}
