package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/welth/internal/store"
)

// Store is the Postgres-backed implementation of store.Store. A single
// connection pool is shared by all operations; WithTx hands out a Queries
// bound to one transaction.
type Store struct {
	pool *pgxpool.Pool
	queries
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query code
// runs standalone and inside a unit of work.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects to Postgres and verifies the connection. The database may
// still be starting (compose, CI), so the ping is retried briefly.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: create pool: %w", err)
	}

	const maxRetries = 10
	for i := 0; i < maxRetries; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		if i == maxRetries-1 {
			pool.Close()
			return nil, fmt.Errorf("postgres.New: ping after %d attempts: %w", maxRetries, err)
		}
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		}
	}

	return &Store{pool: pool, queries: queries{db: pool}}, nil
}

// WithTx implements store.Store. fn's operations commit or roll back as one
// atomic unit; the rollback after a successful commit is a no-op.
func (s *Store) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("WithTx: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("WithTx: commit: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ store.Store = (*Store)(nil)
