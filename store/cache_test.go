package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(CacheConfig{})

	_, err := c.Get(ctx, "routing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, newModel("routing")))
	got, err := c.Get(ctx, "routing")
	require.NoError(t, err)
	assert.Equal(t, "routing", got.ID)

	require.NoError(t, c.Invalidate(ctx, "routing"))
	_, err = c.Get(ctx, "routing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestInMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(CacheConfig{TTL: time.Minute})

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, newModel("routing")))

	now = now.Add(30 * time.Second)
	_, err := c.Get(ctx, "routing")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "routing")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

// failingCache fails every operation.
type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) Get(context.Context, string) (*StoredModel, error) { return nil, errCacheDown }
func (failingCache) Set(context.Context, *StoredModel) error           { return errCacheDown }
func (failingCache) Invalidate(context.Context, string) error          { return errCacheDown }

func TestCachedStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := NewInMemoryModelStore()
	cache := NewInMemoryCache(CacheConfig{})
	s := NewCachedStore(backing, cache, nil)

	require.NoError(t, s.Add(ctx, newModel("routing")))
	assert.Equal(t, 0, cache.Len())

	_, err := s.Get(ctx, "routing")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	// Served from cache even though the backing copy is gone.
	require.NoError(t, backing.Delete(ctx, "routing"))
	got, err := s.Get(ctx, "routing")
	require.NoError(t, err)
	assert.Equal(t, "routing", got.ID)
}

func TestCachedStoreInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCache(CacheConfig{})
	s := NewCachedStore(NewInMemoryModelStore(), cache, nil)

	require.NoError(t, s.Add(ctx, newModel("routing")))
	_, err := s.Get(ctx, "routing")
	require.NoError(t, err)

	update := newModel("routing")
	update.Name = "renamed"
	require.NoError(t, s.Update(ctx, update))
	assert.Equal(t, 0, cache.Len())

	got, err := s.Get(ctx, "routing")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	require.NoError(t, s.Delete(ctx, "routing"))
	_, err = s.Get(ctx, "routing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStoreToleratesCacheFailures(t *testing.T) {
	ctx := context.Background()
	s := NewCachedStore(NewInMemoryModelStore(), failingCache{}, nil)

	require.NoError(t, s.Add(ctx, newModel("routing")))
	got, err := s.Get(ctx, "routing")
	require.NoError(t, err)
	assert.Equal(t, "routing", got.ID)
	require.NoError(t, s.Update(ctx, newModel("routing")))
	require.NoError(t, s.Delete(ctx, "routing"))
}
