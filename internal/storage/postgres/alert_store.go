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

// AlertStore implements storage.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

const alertColumns = `
	id, severity, recommended_action, created_at,
	asset_kind, tx_hash, log_index, from_address, to_address,
	amount, observed_at, source_height,
	cls_address, cls_category, cls_confidence, cls_known_entity
`

// Insert adds an alert. Returns ErrDuplicateKey if the ID exists.
func (s *AlertStore) Insert(ctx context.Context, a *domain.Alert) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO alerts (
			id, severity, recommended_action, created_at,
			asset_kind, tx_hash, log_index, from_address, to_address,
			amount, observed_at, source_height,
			cls_address, cls_category, cls_confidence, cls_known_entity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.pool.Exec(ctx, query,
		a.ID,
		string(a.Severity),
		a.RecommendedAction,
		a.CreatedAt,
		string(a.Movement.AssetKind),
		a.Movement.TxHash,
		a.Movement.LogIndex,
		a.Movement.FromAddress,
		a.Movement.ToAddress,
		a.Movement.Amount,
		a.Movement.ObservedAt,
		a.Movement.SourceHeight,
		a.Classification.Address,
		string(a.Classification.Category),
		a.Classification.Confidence,
		a.Classification.KnownEntity,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by ID. Returns ErrNotFound if not exists.
func (s *AlertStore) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get alert by id: %w", err)
	}
	return a, nil
}

// Query retrieves alerts matching the query, newest first.
func (s *AlertStore) Query(ctx context.Context, q storage.AlertQuery) ([]*domain.Alert, error) {
	var conditions []string
	var args []any

	if q.Severity != "" {
		args = append(args, string(q.Severity))
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	if q.Category != "" {
		args = append(args, string(q.Category))
		conditions = append(conditions, fmt.Sprintf("cls_category = $%d", len(args)))
	}
	if q.Since > 0 {
		args = append(args, q.Since)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// Count returns the number of retained alerts.
func (s *AlertStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return count, nil
}

// Prune drops alerts created before minCreatedAt and, when the store still
// exceeds maxEntries, the oldest surplus.
func (s *AlertStore) Prune(ctx context.Context, minCreatedAt int64, maxEntries int) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE created_at < $1`, minCreatedAt)
	if err != nil {
		return 0, fmt.Errorf("prune alerts by age: %w", err)
	}
	removed := int(tag.RowsAffected())

	if maxEntries > 0 {
		query := `
			DELETE FROM alerts
			WHERE id IN (
				SELECT id FROM alerts
				ORDER BY created_at DESC, id DESC
				OFFSET $1
			)
		`
		tag, err := s.pool.Exec(ctx, query, maxEntries)
		if err != nil {
			return removed, fmt.Errorf("prune alerts by capacity: %w", err)
		}
		removed += int(tag.RowsAffected())
	}

	return removed, nil
}

// scanAlert scans a single row into an Alert.
func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var a domain.Alert
	var severity, kind, category string

	err := row.Scan(
		&a.ID,
		&severity,
		&a.RecommendedAction,
		&a.CreatedAt,
		&kind,
		&a.Movement.TxHash,
		&a.Movement.LogIndex,
		&a.Movement.FromAddress,
		&a.Movement.ToAddress,
		&a.Movement.Amount,
		&a.Movement.ObservedAt,
		&a.Movement.SourceHeight,
		&a.Classification.Address,
		&category,
		&a.Classification.Confidence,
		&a.Classification.KnownEntity,
	)
	if err != nil {
		return nil, err
	}

	a.Severity = domain.Severity(severity)
	a.Movement.ID = a.ID
	a.Movement.AssetKind = domain.AssetKind(kind)
	a.Classification.Category = domain.Category(category)
	return &a, nil
}
