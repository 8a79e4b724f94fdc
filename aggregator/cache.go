package aggregator

import (
	"container/list"
	"sync"
	"time"

	"atlas-taman/models"
)

// responseCache is a bounded LRU with per-entry expiry. The aggregator clones
// values on both write and read, so the cache itself stores and returns the
// pointers it is given.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List
	entries map[string]*list.Element

	now func() time.Time
}

type cacheEntry struct {
	key       string
	value     *models.AggregationResponse
	expiresAt time.Time
}

func newResponseCache(ttl time.Duration, maxSize int) *responseCache {
	return &responseCache{
		ttl:     ttl,
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns the cached response for a key, or nil when absent or expired.
// Expired entries are removed on access.
func (c *responseCache) Get(key string) *models.AggregationResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.entries[key]
	if !ok {
		return nil
	}
	entry := element.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(element)
		delete(c.entries, key)
		return nil
	}
	c.order.MoveToFront(element)
	return entry.value
}

// Set stores a response, evicting the least recently used entry when full.
func (c *responseCache) Set(key string, value *models.AggregationResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if element, ok := c.entries[key]; ok {
		entry := element.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(element)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value, expiresAt: expiresAt})
}

// Len reports the number of live entries, expired ones included until their
// next access.
func (c *responseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
