package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"whale-watch/internal/storage"
)

// DefaultBlockSpan is the default scan window size in heights.
const DefaultBlockSpan = 5

// Cursor tracks the last fully-processed ledger height. It advances
// monotonically and only on explicit commit, so a failed scan cycle retries
// the same window. Persisted through a CursorStore for restart resumption.
type Cursor struct {
	store storage.CursorStore
	span  int64

	mu     sync.Mutex
	height int64 // last fully processed height
}

// NewCursor loads the cursor from the store, falling back to coldStart when
// no height has been persisted yet (typically "current tip minus N").
func NewCursor(ctx context.Context, store storage.CursorStore, span, coldStart int64) (*Cursor, error) {
	if span <= 0 {
		span = DefaultBlockSpan
	}

	height, err := store.GetHeight(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load cursor: %w", err)
		}
		height = coldStart
		if err := store.SetHeight(ctx, height); err != nil {
			return nil, fmt.Errorf("persist cold-start height: %w", err)
		}
	}

	return &Cursor{store: store, span: span, height: height}, nil
}

// Height returns the last fully-processed height.
func (c *Cursor) Height() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// NextWindow returns the next unprocessed window [from, to] clamped to the
// tip. ok is false when there is nothing to scan yet. The cursor itself is
// not advanced; call Commit after the window processed successfully.
func (c *Cursor) NextWindow(tip int64) (from, to int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from = c.height + 1
	if from > tip {
		return 0, 0, false
	}
	to = from + c.span - 1
	if to > tip {
		to = tip
	}
	return from, to, true
}

// Commit persists and advances the cursor to the given height. Commits below
// the current height are rejected; heights never move backwards.
func (c *Cursor) Commit(ctx context.Context, to int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if to < c.height {
		return fmt.Errorf("commit %d below cursor height %d", to, c.height)
	}
	if err := c.store.SetHeight(ctx, to); err != nil {
		return fmt.Errorf("persist cursor height: %w", err)
	}
	c.height = to
	return nil
}
