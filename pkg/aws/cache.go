package aws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/berkguzel/iamrisk/pkg/types"
)

const (
	cacheExpiration = 5 * time.Minute
	maxCacheSize    = 1000
)

type cacheEntry struct {
	document   types.PolicyDocument
	timestamp  time.Time
	lastAccess time.Time
}

// Cache holds decoded policy documents keyed by "<arn>@<version>", with TTL
// expiry and LRU eviction once full.
type Cache struct {
	sync.Mutex
	items   map[string]cacheEntry
	now     func() time.Time
	hits    int64
	misses  int64
	evicted int64
}

func NewCache() *Cache {
	return &Cache{
		items: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

func cacheKey(arn, version string) string {
	return arn + "@" + version
}

func (c *Cache) Get(key string) (types.PolicyDocument, bool) {
	c.Lock()
	defer c.Unlock()

	entry, exists := c.items[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return types.PolicyDocument{}, false
	}

	now := c.now()
	if now.Sub(entry.timestamp) > cacheExpiration {
		delete(c.items, key)
		atomic.AddInt64(&c.evicted, 1)
		atomic.AddInt64(&c.misses, 1)
		return types.PolicyDocument{}, false
	}

	entry.lastAccess = now
	c.items[key] = entry
	atomic.AddInt64(&c.hits, 1)
	return entry.document, true
}

func (c *Cache) Set(key string, doc types.PolicyDocument) {
	c.Lock()
	defer c.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= maxCacheSize {
		var lruKey string
		var lru time.Time
		for k, v := range c.items {
			if lruKey == "" || v.lastAccess.Before(lru) {
				lru = v.lastAccess
				lruKey = k
			}
		}
		delete(c.items, lruKey)
		atomic.AddInt64(&c.evicted, 1)
	}

	now := c.now()
	c.items[key] = cacheEntry{
		document:   doc,
		timestamp:  now,
		lastAccess: now,
	}
}

func (c *Cache) GetMetrics() map[string]int64 {
	c.Lock()
	size := int64(len(c.items))
	c.Unlock()

	return map[string]int64{
		"size":    size,
		"hits":    atomic.LoadInt64(&c.hits),
		"misses":  atomic.LoadInt64(&c.misses),
		"evicted": atomic.LoadInt64(&c.evicted),
	}
}
