package store

import (
	"context"
	"errors"
	"log/slog"
)

// CachedStore is a read-through cache in front of a ModelStore. Writes go
// to the store first and then invalidate the cached entry. Cache failures
// are logged and never fail the operation.
type CachedStore struct {
	store  ModelStore
	cache  Cache
	logger *slog.Logger
}

func NewCachedStore(store ModelStore, cache Cache, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{store: store, cache: cache, logger: logger.With("component", "model-cache")}
}

func (s *CachedStore) Add(ctx context.Context, m *StoredModel) error {
	return s.store.Add(ctx, m)
}

func (s *CachedStore) Get(ctx context.Context, id string) (*StoredModel, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.WarnContext(ctx, "cache read failed", "model_id", id, "error", err)
	}

	m, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "model_id", id, "error", err)
	}
	return m, nil
}

func (s *CachedStore) List(ctx context.Context) ([]*StoredModel, error) {
	return s.store.List(ctx)
}

func (s *CachedStore) ListActive(ctx context.Context) ([]*StoredModel, error) {
	return s.store.ListActive(ctx)
}

func (s *CachedStore) Update(ctx context.Context, m *StoredModel) error {
	if err := s.store.Update(ctx, m); err != nil {
		return err
	}
	s.invalidate(ctx, m.ID)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", "model_id", id, "error", err)
	}
}
