package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LRUCache is a size-bounded cache backed by ristretto, keyed by endpoint
// path and holding serialized response bodies.
type LRUCache struct {
	cache      *ristretto.Cache
	defaultTTL time.Duration
}

// cacheItem wraps the data with its expiration time.
type cacheItem struct {
	data      []byte
	expiresAt time.Time
}

// NewLRU creates a cache bounded to maxBytes with the given default TTL.
func NewLRU(maxBytes int64, defaultTTL time.Duration) (*LRUCache, error) {
	// ristretto wants roughly 10x the expected item count for its
	// admission counters; assume ~1KB average entries
	numCounters := maxBytes / 1024 * 10
	if numCounters < 10000 {
		numCounters = 10000
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	return &LRUCache{
		cache:      c,
		defaultTTL: defaultTTL,
	}, nil
}

// Get retrieves a value from the cache by key.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}

	item, ok := val.(*cacheItem)
	if !ok {
		c.cache.Del(key)
		return nil, false
	}

	if time.Now().After(item.expiresAt) {
		c.cache.Del(key)
		return nil, false
	}

	return item.data, true
}

// Set stores a value with the given TTL; a TTL of 0 uses the default. The
// write is synchronous: once Set returns the value is visible to Get.
func (c *LRUCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	item := &cacheItem{
		data:      value,
		expiresAt: time.Now().Add(ttl),
	}

	// cost is the payload size; admission may still refuse the entry
	_ = c.cache.Set(key, item, int64(len(value)))
	c.cache.Wait()
}

// Delete removes a value from the cache.
func (c *LRUCache) Delete(key string) {
	c.cache.Del(key)
}

// Clear removes all values from the cache.
func (c *LRUCache) Clear() {
	c.cache.Clear()
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() Stats {
	m := c.cache.Metrics
	return Stats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		KeysAdded: m.KeysAdded(),
		Evictions: m.KeysEvicted(),
		Size:      int64(m.CostAdded() - m.CostEvicted()),
		Items:     int64(m.KeysAdded() - m.KeysEvicted()),
	}
}

// Close releases the cache's resources.
func (c *LRUCache) Close() {
	c.cache.Close()
}
