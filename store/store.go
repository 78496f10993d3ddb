// Package store persists decision model definitions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("model not found")
	ErrAlreadyExists = errors.New("model already exists")
)

// StoredModel is a persisted model definition. Definition holds the JSON
// model document as submitted.
type StoredModel struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
	Version    int             `json:"version"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy of m.
func (m *StoredModel) Clone() *StoredModel {
	c := *m
	c.Definition = append(json.RawMessage(nil), m.Definition...)
	return &c
}

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks ModelStore

// ModelStore manages model persistence.
type ModelStore interface {
	// Add stores a new model. An empty ID is assigned a UUID.
	Add(ctx context.Context, m *StoredModel) error

	Get(ctx context.Context, id string) (*StoredModel, error)

	// List returns all models ordered by creation time.
	List(ctx context.Context) ([]*StoredModel, error)

	// ListActive returns the active models ordered by creation time.
	ListActive(ctx context.Context) ([]*StoredModel, error)

	// Update replaces name, definition and active flag and bumps Version.
	Update(ctx context.Context, m *StoredModel) error

	Delete(ctx context.Context, id string) error
}

// InMemoryModelStore implements ModelStore using a map.
type InMemoryModelStore struct {
	models map[string]*StoredModel
	mu     sync.RWMutex
}

func NewInMemoryModelStore() *InMemoryModelStore {
	return &InMemoryModelStore{
		models: make(map[string]*StoredModel),
	}
}

func (s *InMemoryModelStore) Add(_ context.Context, m *StoredModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, exists := s.models[m.ID]; exists {
		return fmt.Errorf("model %s: %w", m.ID, ErrAlreadyExists)
	}

	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Version = 1
	s.models[m.ID] = m.Clone()
	return nil
}

func (s *InMemoryModelStore) Get(_ context.Context, id string) (*StoredModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.models[id]
	if !exists {
		return nil, fmt.Errorf("model %s: %w", id, ErrNotFound)
	}
	return m.Clone(), nil
}

func (s *InMemoryModelStore) List(_ context.Context) ([]*StoredModel, error) {
	return s.list(false), nil
}

func (s *InMemoryModelStore) ListActive(_ context.Context) ([]*StoredModel, error) {
	return s.list(true), nil
}

func (s *InMemoryModelStore) list(activeOnly bool) []*StoredModel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*StoredModel, 0, len(s.models))
	for _, m := range s.models {
		if activeOnly && !m.Active {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *InMemoryModelStore) Update(_ context.Context, m *StoredModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.models[m.ID]
	if !exists {
		return fmt.Errorf("model %s: %w", m.ID, ErrNotFound)
	}

	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	m.Version = existing.Version + 1
	s.models[m.ID] = m.Clone()
	return nil
}

func (s *InMemoryModelStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[id]; !exists {
		return fmt.Errorf("model %s: %w", id, ErrNotFound)
	}
	delete(s.models, id)
	return nil
}
