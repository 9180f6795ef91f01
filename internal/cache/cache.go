// Package cache stores computed rollups and growth curves so dashboards do
// not recompute them on every read.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Store is a byte-oriented key/value store with expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Ping(ctx context.Context) error
	Close() error
}

// Cache stores JSON values in a Store and tracks hit statistics. Store
// failures are logged and treated as misses.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
	// epoch counts invalidations; Remember does not store a value computed
	// across one.
	epoch atomic.Int64
}

// Stats holds cache statistics
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// New creates a cache whose entries expire after ttl
func New(store Store, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// Get decodes the value stored at key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	}
	if !ok || err != nil {
		c.misses.Add(1)
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

// Set stores value at key.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidatePrefix drops every key starting with prefix.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) {
	c.epoch.Add(1)
	if err := c.store.DeleteByPrefix(ctx, prefix); err != nil {
		c.logger.Warn("Cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
	}
}

// Ping checks the backing store.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Close releases the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Stats returns hit statistics
func (c *Cache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := Stats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// Remember returns the cached value at key, or computes and stores it. A
// value computed while this cache ran an invalidation is returned but not
// stored, since it may predate the change. Invalidations issued by another
// process sharing the store are not seen; such entries live at most one TTL.
func Remember[T any](ctx context.Context, c *Cache, key string, compute func() (T, error)) (T, error) {
	var value T
	if c.Get(ctx, key, &value) {
		return value, nil
	}

	epoch := c.epoch.Load()
	value, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}

	if c.epoch.Load() != epoch {
		c.logger.Debug("Skipping cache write after invalidation", zap.String("key", key))
		return value, nil
	}
	c.Set(ctx, key, value)
	return value, nil
}

// Drivers accepted by NewStore.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// NewStore builds the store named by driver.
func NewStore(driver, redisURL, namespace string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(time.Minute), nil
	case DriverRedis:
		return NewRedisStore(redisURL, namespace)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", driver)
	}
}
