package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL applies when Set is called without a TTL
const DefaultTTL = 5 * time.Minute

// MemoryCache implements Cache on top of go-cache
type MemoryCache struct {
	store   *gocache.Cache
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// NewMemoryCache creates a new in-memory cache. Expired entries are purged
// every cleanupInterval.
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &MemoryCache{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a value from the cache
func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := mc.store.Get(key)
	if !ok {
		mc.misses.Add(1)
		return nil, false
	}
	mc.hits.Add(1)
	return v.([]byte), true
}

// Set stores a value in the cache with a TTL
func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	mc.store.Set(key, value, ttl)
	mc.sets.Add(1)
	return nil
}

// Delete removes a value from the cache
func (mc *MemoryCache) Delete(_ context.Context, key string) error {
	mc.store.Delete(key)
	mc.deletes.Add(1)
	return nil
}

// Clear removes all values from the cache
func (mc *MemoryCache) Clear(_ context.Context) error {
	mc.store.Flush()
	return nil
}

// Has checks if a key exists in the cache
func (mc *MemoryCache) Has(_ context.Context, key string) bool {
	_, ok := mc.store.Get(key)
	return ok
}

// Stats returns cache statistics
func (mc *MemoryCache) Stats() CacheStats {
	return CacheStats{
		Hits:    mc.hits.Load(),
		Misses:  mc.misses.Load(),
		Sets:    mc.sets.Load(),
		Deletes: mc.deletes.Load(),
		Items:   int64(mc.store.ItemCount()),
	}
}
