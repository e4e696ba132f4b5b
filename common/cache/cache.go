package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/opsconsole/console/common/logger"
)

// Cache interface for key-value storage
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V)
	Delete(ctx context.Context, key string)
	Close() error
}

// MemoryCache is an in-process LRU cache with per-entry expiry
type MemoryCache[V any] struct {
	c    *ttlcache.Cache[string, V]
	log  *logger.Logger
	name string
}

// NewMemoryCache creates a cache holding at most capacity entries for ttl
// each, and starts its expiry loop
func NewMemoryCache[V any](name string, capacity int, ttl time.Duration, log *logger.Logger) *MemoryCache[V] {
	c := ttlcache.New(
		ttlcache.WithCapacity[string, V](uint64(capacity)),
		ttlcache.WithTTL[string, V](ttl),
	)

	c.OnEviction(func(ctx context.Context, er ttlcache.EvictionReason, i *ttlcache.Item[string, V]) {
		reason := "deleted"
		switch er {
		case ttlcache.EvictionReasonExpired:
			reason = "expired"
		case ttlcache.EvictionReasonCapacityReached:
			reason = "capacity"
		}
		log.Debug("cache eviction", "cache", name, "key", i.Key(), "reason", reason)
	})

	go c.Start()

	return &MemoryCache[V]{c: c, log: log, name: name}
}

// Get retrieves a value from cache
func (m *MemoryCache[V]) Get(ctx context.Context, key string) (V, bool) {
	item := m.c.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

// Set stores a value with the cache's default TTL
func (m *MemoryCache[V]) Set(ctx context.Context, key string, value V) {
	m.c.Set(key, value, ttlcache.DefaultTTL)
}

// Delete removes a value from cache
func (m *MemoryCache[V]) Delete(ctx context.Context, key string) {
	m.c.Delete(key)
}

// Close stops the expiry loop
func (m *MemoryCache[V]) Close() error {
	m.c.Stop()
	m.log.Info("memory cache closed", "cache", m.name)
	return nil
}

// Stats returns cache statistics
func (m *MemoryCache[V]) Stats() map[string]interface{} {
	metrics := m.c.Metrics()
	return map[string]interface{}{
		"entries":   m.c.Len(),
		"hits":      metrics.Hits,
		"misses":    metrics.Misses,
		"evictions": metrics.Evictions,
		"type":      "memory",
	}
}

// Noop is a Cache that never stores anything
type Noop[V any] struct{}

func (Noop[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	return zero, false
}

func (Noop[V]) Set(ctx context.Context, key string, value V) {}

func (Noop[V]) Delete(ctx context.Context, key string) {}

func (Noop[V]) Close() error { return nil }
