package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is an in-memory cache with LRU eviction bounded by total
// value size in bytes.
type MemoryCache struct {
	capacity int64
	size     int64

	items    map[string]*list.Element
	eviction *list.List

	mu    sync.Mutex
	stats Stats
}

type memoryEntry struct {
	key   string
	value []byte
}

// NewMemoryCache creates a new memory cache with the specified capacity in bytes.
func NewMemoryCache(capacity int64) *MemoryCache {
	return &MemoryCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastAccess = time.Now()
	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	c.eviction.MoveToFront(elem)
	c.stats.Hits++
	return elem.Value.(*memoryEntry).value, true
}

// Put stores a value in the cache.
func (c *MemoryCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(value))
	if n > c.capacity {
		return ErrItemTooLarge
	}

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}

	for c.size+n > c.capacity && c.eviction.Len() > 0 {
		c.removeElement(c.eviction.Back())
		c.stats.Evictions++
	}

	c.items[key] = c.eviction.PushFront(&memoryEntry{key: key, value: value})
	c.size += n
	return nil
}

// Delete removes an entry from the cache.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.size = 0
	return nil
}

// Contains checks if a key exists in the cache without updating LRU.
func (c *MemoryCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	return ok
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Capacity = c.capacity
	s.Size = c.size
	s.ItemCount = int64(len(c.items))
	return s
}

// removeElement must be called with the lock held.
func (c *MemoryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	c.eviction.Remove(elem)
	delete(c.items, entry.key)
	c.size -= int64(len(entry.value))
}
