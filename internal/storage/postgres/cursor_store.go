package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"whale-watch/internal/storage"
)

// CursorStore implements storage.CursorStore using PostgreSQL. A single row
// keyed by name holds the last fully-processed height.
type CursorStore struct {
	pool *Pool
	name string
}

// NewCursorStore creates a cursor store for the named cursor.
func NewCursorStore(pool *Pool, name string) *CursorStore {
	if name == "" {
		name = "scan"
	}
	return &CursorStore{pool: pool, name: name}
}

// Compile-time interface check.
var _ storage.CursorStore = (*CursorStore)(nil)

// GetHeight returns the last processed height. Returns ErrNotFound if no
// height has been saved yet (cold start).
func (s *CursorStore) GetHeight(ctx context.Context) (int64, error) {
	var height int64
	err := s.pool.QueryRow(ctx, `SELECT height FROM scan_cursor WHERE name = $1`, s.name).Scan(&height)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get cursor height: %w", err)
	}
	return height, nil
}

// SetHeight persists the last processed height.
func (s *CursorStore) SetHeight(ctx context.Context, height int64) error {
	query := `
		INSERT INTO scan_cursor (name, height) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET height = EXCLUDED.height
	`
	if _, err := s.pool.Exec(ctx, query, s.name, height); err != nil {
		return fmt.Errorf("set cursor height: %w", err)
	}
	return nil
}
