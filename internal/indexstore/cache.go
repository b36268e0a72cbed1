package indexstore

import "sync"

// Cache holds resolved snapshots keyed by tenant. Implementations must be safe for
// concurrent use and must store the pointer they are given without copying or mutating it.
type Cache interface {
	Get(clientID string) (*Snapshot, bool)
	Set(clientID string, snap *Snapshot)
	Delete(clientID string)
	Len() int
}

// MapCache is an unbounded Cache that lives for the life of its Store.
type MapCache struct {
	mu    sync.RWMutex
	items map[string]*Snapshot
}

// NewMapCache returns an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{items: make(map[string]*Snapshot)}
}

func (c *MapCache) Get(clientID string) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.items[clientID]
	return s, ok
}

func (c *MapCache) Set(clientID string, snap *Snapshot) {
	c.mu.Lock()
	c.items[clientID] = snap
	c.mu.Unlock()
}

func (c *MapCache) Delete(clientID string) {
	c.mu.Lock()
	delete(c.items, clientID)
	c.mu.Unlock()
}

func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
