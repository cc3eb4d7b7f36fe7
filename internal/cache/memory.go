package cache

import (
	"container/list"
	"sync"
	"time"
)

// MemoryCache is the in-process tier: a strict LRU over cache keys with a
// byte budget. Eviction happens synchronously inside Put, so the budget
// invariant holds the moment a write returns. One MemoryCache exists per
// subscription tier; budgets never interact.
type MemoryCache struct {
	mu       sync.RWMutex
	budget   int64
	size     int64
	items    map[string]*list.Element
	eviction *list.List // front = most recently used
	onEvict  func(*Entry)
}

// NewMemoryCache creates a memory tier with the given byte budget. onEvict,
// if non-nil, observes every budget eviction (not expiry removals).
func NewMemoryCache(budget int64, onEvict func(*Entry)) *MemoryCache {
	return &MemoryCache{
		budget:   budget,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
		onEvict:  onEvict,
	}
}

// Put inserts or replaces an entry, evicting from the LRU tail until the
// entry fits. An entry larger than the whole budget is rejected.
func (c *MemoryCache) Put(entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.SizeBytes > c.budget {
		return ErrEntryTooLarge
	}

	if elem, ok := c.items[entry.Key]; ok {
		old := elem.Value.(*Entry)
		c.size += entry.SizeBytes - old.SizeBytes
		elem.Value = entry
		c.eviction.MoveToFront(elem)
		for c.size > c.budget && c.eviction.Len() > 1 {
			c.evictOldest()
		}
		return nil
	}

	for c.size+entry.SizeBytes > c.budget && c.eviction.Len() > 0 {
		c.evictOldest()
	}

	elem := c.eviction.PushFront(entry)
	c.items[entry.Key] = elem
	c.size += entry.SizeBytes
	return nil
}

// Get returns a snapshot of a live entry and bumps its recency. Expired or
// invalidated entries are dropped on discovery and reported as a miss.
func (c *MemoryCache) Get(key string, now time.Time) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*Entry)
	if !entry.Live(now) {
		c.removeElement(elem)
		return nil, false
	}

	entry.Touch(now)
	c.eviction.MoveToFront(elem)
	snapshot := *entry
	return &snapshot, true
}

// Contains reports whether a live entry for the key is resident.
func (c *MemoryCache) Contains(key string, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	elem, ok := c.items[key]
	return ok && elem.Value.(*Entry).Live(now)
}

// Remove deletes an entry by key. Removing an absent key is a no-op.
func (c *MemoryCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

// RemoveExpired drops every entry past its expiry and returns the count.
func (c *MemoryCache) RemoveExpired(now time.Time) int {
	return c.RemoveFunc(func(e *Entry) bool { return !e.Live(now) })
}

// RemoveFunc drops every entry the predicate matches and returns the count.
func (c *MemoryCache) RemoveFunc(match func(*Entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var doomed []*list.Element
	for elem := c.eviction.Front(); elem != nil; elem = elem.Next() {
		if match(elem.Value.(*Entry)) {
			doomed = append(doomed, elem)
		}
	}
	for _, elem := range doomed {
		c.removeElement(elem)
	}
	return len(doomed)
}

// Clear empties the tier.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	c.size = 0
}

// Len returns the number of resident entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// SizeBytes returns the resident byte total.
func (c *MemoryCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Budget returns the configured byte budget.
func (c *MemoryCache) Budget() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.budget
}

// Resize changes the byte budget, evicting from the LRU tail until the
// resident set fits the new budget.
func (c *MemoryCache) Resize(budget int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budget = budget
	for c.size > c.budget && c.eviction.Len() > 0 {
		c.evictOldest()
	}
}

// evictOldest removes the least-recently-used entry. Caller holds the lock.
func (c *MemoryCache) evictOldest() {
	elem := c.eviction.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*Entry)
	c.removeElement(elem)
	if c.onEvict != nil {
		c.onEvict(entry)
	}
}

// removeElement unlinks an element. Caller holds the lock.
func (c *MemoryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*Entry)
	delete(c.items, entry.Key)
	c.eviction.Remove(elem)
	c.size -= entry.SizeBytes
}
