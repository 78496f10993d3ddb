package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const modelKeyPrefix = "decisions:model:"

// RedisCache is a Cache shared between service instances.
type RedisCache struct {
	client *redis.Client
	config CacheConfig
}

func NewRedisCache(client *redis.Client, config CacheConfig) *RedisCache {
	return &RedisCache{client: client, config: config}
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, id string) (*StoredModel, error) {
	raw, err := c.client.Get(ctx, modelKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var m StoredModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode cached model %s: %w", id, err)
	}
	return &m, nil
}

func (c *RedisCache) Set(ctx context.Context, m *StoredModel) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model %s: %w", m.ID, err)
	}
	return c.client.Set(ctx, modelKeyPrefix+m.ID, raw, c.config.TTL).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, modelKeyPrefix+id).Err()
}
