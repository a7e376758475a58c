package marketplace

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheCapacity bounds how many responses a broker keeps
const DefaultCacheCapacity = 512

// DefaultCacheTTL is used when a broker configures no cache_ttl
const DefaultCacheTTL = 300 * time.Second

// CacheEntry is one cached provider response
type CacheEntry struct {
	Payload   []byte
	ETag      string
	Timestamp time.Time
	TTL       time.Duration
}

// IsExpired reports whether the entry is older than its TTL. A non-positive
// TTL is always expired.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return true
	}
	return now.Sub(e.Timestamp) > e.TTL
}

// CacheStats counts lookups since the cache was created
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// ResponseCache holds provider responses with a TTL. Expired entries are
// evicted lazily by Get; Lookup still returns them so their ETag can be used
// for a conditional request.
type ResponseCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	items  *lru.Cache[string, *CacheEntry]
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

// NewResponseCache creates a cache with the given TTL and capacity. A
// non-positive capacity uses DefaultCacheCapacity.
func NewResponseCache(ttl time.Duration, capacity int) *ResponseCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	// lru.New only fails for a non-positive size
	items, _ := lru.New[string, *CacheEntry](capacity)
	return &ResponseCache{
		ttl:   ttl,
		items: items,
		now:   time.Now,
	}
}

// SetClock replaces the time source
func (c *ResponseCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// TTL returns the configured time to live
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// Get returns a fresh payload. An expired entry is evicted and reported as a
// miss.
func (c *ResponseCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if entry.IsExpired(c.now()) {
		c.items.Remove(key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return entry.Payload, true
}

// Lookup returns a copy of the entry for key whether or not it has expired
func (c *ResponseCache) Lookup(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items.Peek(key)
	if !ok {
		return nil, false
	}
	cp := *entry
	return &cp, true
}

// Set stores payload under key with the current time
func (c *ResponseCache) Set(key string, payload []byte, etag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Add(key, &CacheEntry{
		Payload:   payload,
		ETag:      etag,
		Timestamp: c.now(),
		TTL:       c.ttl,
	})
}

// Revalidate marks the entry fresh after the provider answered 304 and
// returns its payload.
func (c *ResponseCache) Revalidate(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	refreshed := *entry
	refreshed.Timestamp = c.now()
	c.items.Add(key, &refreshed)
	return refreshed.Payload, true
}

// Delete removes key
func (c *ResponseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Remove(key)
}

// Clear removes every entry
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Purge()
}

// Len returns the number of stored entries, expired ones included
func (c *ResponseCache) Len() int {
	return c.items.Len()
}

// Stats returns lookup counters
func (c *ResponseCache) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.items.Len(),
	}
}

// CacheKey builds a deterministic key from an operation, paging and filters.
// Filters are query-encoded so separators inside values cannot collide.
func CacheKey(operation string, page, pageSize int, filters map[string]string) string {
	key := fmt.Sprintf("%s:page=%d:size=%d", operation, page, pageSize)
	if len(filters) == 0 {
		return key
	}

	values := make(url.Values, len(filters))
	for k, v := range filters {
		values.Set(k, v)
	}
	return key + ":" + values.Encode()
}
