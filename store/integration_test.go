//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/liamcoop/decisions/migrations"
	"github.com/liamcoop/decisions/store"
)

// setupTestDB starts PostgreSQL, applies the embedded migrations and
// returns a connection.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("decisions_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, migrations.Up(connStr))

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := store.NewRedisClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPostgresModelStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := store.NewPostgresModelStore(setupTestDB(t))

	m := &store.StoredModel{
		Name:       "routing",
		Definition: json.RawMessage(`{"decisions":[{"id":"d","inputs":["a"],"outputs":["o"],"rules":[["x","y"]]}]}`),
		Active:     true,
	}
	require.NoError(t, s.Add(ctx, m))
	require.NotEmpty(t, m.ID)
	assert.Equal(t, 1, m.Version)

	err := s.Add(ctx, &store.StoredModel{ID: m.ID, Name: "again", Definition: m.Definition})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "routing", got.Name)
	assert.JSONEq(t, string(m.Definition), string(got.Definition))

	m.Name = "routing-v2"
	m.Active = false
	require.NoError(t, s.Update(ctx, m))
	assert.Equal(t, 2, m.Version)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "routing-v2", all[0].Name)

	require.NoError(t, s.Delete(ctx, m.ID))
	_, err = s.Get(ctx, m.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, m.ID), store.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, m), store.ErrNotFound)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c := store.NewRedisCache(setupTestRedis(t), store.CacheConfig{TTL: time.Minute})

	_, err := c.Get(ctx, "routing")
	assert.ErrorIs(t, err, store.ErrCacheMiss)

	m := &store.StoredModel{ID: "routing", Name: "routing", Definition: json.RawMessage(`{"decisions":[]}`), Version: 3}
	require.NoError(t, c.Set(ctx, m))

	got, err := c.Get(ctx, "routing")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	assert.JSONEq(t, `{"decisions":[]}`, string(got.Definition))

	require.NoError(t, c.Invalidate(ctx, "routing"))
	_, err = c.Get(ctx, "routing")
	assert.ErrorIs(t, err, store.ErrCacheMiss)
}

func TestCachedStoreOverPostgresAndRedis(t *testing.T) {
	ctx := context.Background()
	s := store.NewCachedStore(
		store.NewPostgresModelStore(setupTestDB(t)),
		store.NewRedisCache(setupTestRedis(t), store.DefaultCacheConfig()),
		nil,
	)

	m := &store.StoredModel{ID: "routing", Name: "routing", Definition: json.RawMessage(`{"decisions":[]}`), Active: true}
	require.NoError(t, s.Add(ctx, m))

	first, err := s.Get(ctx, "routing")
	require.NoError(t, err)
	second, err := s.Get(ctx, "routing")
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)

	m.Name = "renamed"
	require.NoError(t, s.Update(ctx, m))
	got, err := s.Get(ctx, "routing")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 2, got.Version)
}
