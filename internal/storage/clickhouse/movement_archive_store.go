package clickhouse

import (
	"context"
	"fmt"

	"whale-watch/internal/domain"
)

// MovementArchiveStore keeps every classified movement beyond the retention
// window for analytics. Append-only; the queryable window lives in the
// primary store.
type MovementArchiveStore struct {
	conn *Conn
}

// NewMovementArchiveStore creates a new MovementArchiveStore.
func NewMovementArchiveStore(conn *Conn) *MovementArchiveStore {
	return &MovementArchiveStore{conn: conn}
}

// ArchiveMovements appends a batch of classified movements.
func (s *MovementArchiveStore) ArchiveMovements(ctx context.Context, movements []*domain.ClassifiedMovement) error {
	if len(movements) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO movement_archive (
			id, asset_kind, tx_hash, log_index, from_address, to_address,
			amount, observed_at, source_height, category, confidence, known_entity
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare archive batch: %w", err)
	}

	for _, m := range movements {
		err := batch.Append(
			m.ID,
			string(m.AssetKind),
			m.TxHash,
			int32(m.LogIndex),
			m.FromAddress,
			m.ToAddress,
			m.Amount,
			m.ObservedAt,
			m.SourceHeight,
			string(m.Classification.Category),
			m.Classification.Confidence,
			m.Classification.KnownEntity,
		)
		if err != nil {
			return fmt.Errorf("append movement %s: %w", m.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send archive batch: %w", err)
	}
	return nil
}

// CountByAsset returns the all-time archived movement count per asset kind.
func (s *MovementArchiveStore) CountByAsset(ctx context.Context) (map[string]uint64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT asset_kind, count() AS total
		FROM movement_archive
		GROUP BY asset_kind
	`)
	if err != nil {
		return nil, fmt.Errorf("count archive by asset: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var kind string
		var total uint64
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, fmt.Errorf("scan archive count: %w", err)
		}
		counts[kind] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive counts: %w", err)
	}
	return counts, nil
}
