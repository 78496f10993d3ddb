package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned by Cache.Get for absent or expired entries.
var ErrCacheMiss = errors.New("cache miss")

// Cache holds model definitions keyed by model id, so reads can skip the
// backing store.
type Cache interface {
	Get(ctx context.Context, id string) (*StoredModel, error)
	Set(ctx context.Context, m *StoredModel) error
	Invalidate(ctx context.Context, id string) error
}

// CacheConfig holds cache behavior settings.
type CacheConfig struct {
	// TTL of an entry. Zero means entries only leave on invalidation.
	TTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 5 * time.Minute}
}

type cacheEntry struct {
	model    *StoredModel
	cachedAt time.Time
}

// InMemoryCache is a process-local Cache.
type InMemoryCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	now     func() time.Time
	mu      sync.RWMutex
}

func NewInMemoryCache(config CacheConfig) *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

func (c *InMemoryCache) Get(_ context.Context, id string) (*StoredModel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, ErrCacheMiss
	}
	if c.config.TTL > 0 && c.now().Sub(e.cachedAt) > c.config.TTL {
		return nil, ErrCacheMiss
	}
	return e.model.Clone(), nil
}

func (c *InMemoryCache) Set(_ context.Context, m *StoredModel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[m.ID] = cacheEntry{model: m.Clone(), cachedAt: c.now()}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
	return nil
}

// Len returns the number of entries, including expired ones not yet
// overwritten.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
