package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"whale-watch/internal/domain"
	"whale-watch/internal/storage"
)

// MovementStore implements storage.MovementStore using PostgreSQL.
type MovementStore struct {
	pool *Pool
}

// NewMovementStore creates a new MovementStore.
func NewMovementStore(pool *Pool) *MovementStore {
	return &MovementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MovementStore = (*MovementStore)(nil)

const movementColumns = `
	id, asset_kind, tx_hash, log_index, from_address, to_address,
	amount, observed_at, source_height,
	cls_address, cls_category, cls_confidence, cls_known_entity
`

// Insert adds a movement. Returns ErrDuplicateKey if the ID exists.
func (s *MovementStore) Insert(ctx context.Context, m *domain.ClassifiedMovement) error {
	if m == nil || m.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO movements (
			id, asset_kind, tx_hash, log_index, from_address, to_address,
			amount, observed_at, source_height,
			cls_address, cls_category, cls_confidence, cls_known_entity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		m.ID,
		string(m.AssetKind),
		m.TxHash,
		m.LogIndex,
		m.FromAddress,
		m.ToAddress,
		m.Amount,
		m.ObservedAt,
		m.SourceHeight,
		m.Classification.Address,
		string(m.Classification.Category),
		m.Classification.Confidence,
		m.Classification.KnownEntity,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// GetByID retrieves a movement by ID. Returns ErrNotFound if not exists.
func (s *MovementStore) GetByID(ctx context.Context, id string) (*domain.ClassifiedMovement, error) {
	query := `SELECT ` + movementColumns + ` FROM movements WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get movement by id: %w", err)
	}
	return m, nil
}

// Query retrieves movements matching the query, newest first.
func (s *MovementStore) Query(ctx context.Context, q storage.MovementQuery) ([]*domain.ClassifiedMovement, error) {
	var conditions []string
	var args []any

	if q.Asset != "" {
		args = append(args, string(q.Asset))
		conditions = append(conditions, fmt.Sprintf("asset_kind = $%d", len(args)))
	}
	if q.MinAmount > 0 {
		args = append(args, q.MinAmount)
		conditions = append(conditions, fmt.Sprintf("amount >= $%d", len(args)))
	}
	if q.Category != "" {
		args = append(args, string(q.Category))
		conditions = append(conditions, fmt.Sprintf("cls_category = $%d", len(args)))
	}
	if q.Since > 0 {
		args = append(args, q.Since)
		conditions = append(conditions, fmt.Sprintf("observed_at >= $%d", len(args)))
	}

	query := `SELECT ` + movementColumns + ` FROM movements`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY source_height DESC, log_index DESC, id DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	return scanMovements(rows)
}

// GetByAddress retrieves movements touching an address observed at or after
// since, ordered by observed_at ASC.
func (s *MovementStore) GetByAddress(ctx context.Context, address string, since int64) ([]*domain.ClassifiedMovement, error) {
	query := `
		SELECT ` + movementColumns + `
		FROM movements
		WHERE (from_address = $1 OR to_address = $1) AND observed_at >= $2
		ORDER BY observed_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, address, since)
	if err != nil {
		return nil, fmt.Errorf("get movements by address: %w", err)
	}
	defer rows.Close()

	return scanMovements(rows)
}

// Count returns the number of retained movements.
func (s *MovementStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM movements`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count movements: %w", err)
	}
	return count, nil
}

// Prune drops movements observed before minObservedAt and, when the store
// still exceeds maxEntries, the oldest surplus.
func (s *MovementStore) Prune(ctx context.Context, minObservedAt int64, maxEntries int) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM movements WHERE observed_at < $1`, minObservedAt)
	if err != nil {
		return 0, fmt.Errorf("prune movements by age: %w", err)
	}
	removed := int(tag.RowsAffected())

	if maxEntries > 0 {
		query := `
			DELETE FROM movements
			WHERE id IN (
				SELECT id FROM movements
				ORDER BY observed_at DESC, id DESC
				OFFSET $1
			)
		`
		tag, err := s.pool.Exec(ctx, query, maxEntries)
		if err != nil {
			return removed, fmt.Errorf("prune movements by capacity: %w", err)
		}
		removed += int(tag.RowsAffected())
	}

	return removed, nil
}

// scanMovement scans a single row into a ClassifiedMovement.
func scanMovement(row pgx.Row) (*domain.ClassifiedMovement, error) {
	var m domain.ClassifiedMovement
	var kind, category string

	err := row.Scan(
		&m.ID,
		&kind,
		&m.TxHash,
		&m.LogIndex,
		&m.FromAddress,
		&m.ToAddress,
		&m.Amount,
		&m.ObservedAt,
		&m.SourceHeight,
		&m.Classification.Address,
		&category,
		&m.Classification.Confidence,
		&m.Classification.KnownEntity,
	)
	if err != nil {
		return nil, err
	}

	m.AssetKind = domain.AssetKind(kind)
	m.Classification.Category = domain.Category(category)
	return &m, nil
}

// scanMovements scans multiple rows into a slice of ClassifiedMovement.
func scanMovements(rows pgx.Rows) ([]*domain.ClassifiedMovement, error) {
	var movements []*domain.ClassifiedMovement

	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return movements, nil
}
