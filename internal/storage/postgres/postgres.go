// Package postgres implements the durable stores on PostgreSQL.
//
// All stores share one Pool. Driver errors are translated to the storage
// sentinels at the store boundary, so callers only ever match against
// storage.Err* values.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the shared connection pool the stores are constructed against.
// The embedded pgxpool.Pool carries Close.
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a pool for the DSN and verifies the connection with a ping.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// isUniqueViolation reports whether err is a unique-constraint violation
// (SQLSTATE 23505). The stores surface it as storage.ErrDuplicateKey.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
