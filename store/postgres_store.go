package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresModelStore implements ModelStore backed by the decision_models
// table.
type PostgresModelStore struct {
	db *sql.DB
}

func NewPostgresModelStore(db *sql.DB) *PostgresModelStore {
	return &PostgresModelStore{db: db}
}

const modelColumns = `id, name, definition, version, active, created_at, updated_at`

func (s *PostgresModelStore) Add(ctx context.Context, m *StoredModel) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_models (id, name, definition, version, active, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5, $5)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.Name, []byte(m.Definition), m.Active, now)
	if err != nil {
		return fmt.Errorf("failed to insert model: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("model %s: %w", m.ID, ErrAlreadyExists)
	}

	m.Version = 1
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

func (s *PostgresModelStore) Get(ctx context.Context, id string) (*StoredModel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM decision_models WHERE id = $1`, id)

	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return m, nil
}

func (s *PostgresModelStore) List(ctx context.Context) ([]*StoredModel, error) {
	return s.query(ctx, `SELECT `+modelColumns+` FROM decision_models ORDER BY created_at ASC, id ASC`)
}

func (s *PostgresModelStore) ListActive(ctx context.Context) ([]*StoredModel, error) {
	return s.query(ctx, `SELECT `+modelColumns+` FROM decision_models WHERE active = true ORDER BY created_at ASC, id ASC`)
}

func (s *PostgresModelStore) query(ctx context.Context, q string) ([]*StoredModel, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []*StoredModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating models: %w", err)
	}
	return models, nil
}

func (s *PostgresModelStore) Update(ctx context.Context, m *StoredModel) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE decision_models
		SET name = $1, definition = $2, active = $3, version = version + 1, updated_at = $4
		WHERE id = $5
		RETURNING version, created_at, updated_at
	`, m.Name, []byte(m.Definition), m.Active, time.Now().UTC(), m.ID).Scan(&m.Version, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("model %s: %w", m.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update model: %w", err)
	}
	return nil
}

func (s *PostgresModelStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM decision_models WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("model %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(row scanner) (*StoredModel, error) {
	var m StoredModel
	var definition []byte
	if err := row.Scan(&m.ID, &m.Name, &definition, &m.Version, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Definition = definition
	return &m, nil
}
