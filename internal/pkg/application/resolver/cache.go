package resolver

import (
	"sync/atomic"
	"time"

	"github.com/diwise/iot-sensor-analytics/internal/pkg/infrastructure/storage"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// identityCache bounds the uuid pair to sensor id mapping by size and age.
// Eviction of the least recently used entry and expiry after the TTL are
// both handled by the underlying LRU.
type identityCache struct {
	lru    *expirable.LRU[storage.SensorKey, int64]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func newIdentityCache(size int, ttl time.Duration) *identityCache {
	return &identityCache{
		lru: expirable.NewLRU[storage.SensorKey, int64](size, nil, ttl),
	}
}

func (c *identityCache) get(key storage.SensorKey) (int64, bool) {
	id, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return id, ok
}

func (c *identityCache) add(key storage.SensorKey, id int64) {
	c.lru.Add(key, id)
}

func (c *identityCache) stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.lru.Len(),
	}
}
