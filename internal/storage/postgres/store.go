// Package postgres provides a pgx-backed implementation of storage.Store.
//
// A unit of work is one database transaction. Rows that a unit of work
// mutates are locked explicitly: transactions with FOR UPDATE, recurring rules
// with FOR UPDATE SKIP LOCKED so concurrent scheduler passes skip each other,
// and wallets in ascending id order before their balance changes. The schema
// lives in the embedded migrations directory.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/walletledger/internal/errs"
	"github.com/tinoosan/walletledger/internal/storage"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// WithinTx implements storage.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Tx) error) error {
	ptx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = ptx.Rollback(ctx) }()
	if err := fn(&tx{q: ptx}); err != nil {
		return err
	}
	if err := ptx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

// mapErr turns constraint violations into the shared sentinels.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeForeignKeyViolation:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, errs.ErrIntegrity)
	case codeUniqueViolation:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, errs.ErrConflict)
	}
	return err
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, errs.ErrNotFound)
}

// one scans a single row, translating pgx.ErrNoRows into errs.ErrNotFound.
func one[T any](row pgx.Row, scan func(pgx.Row) (T, error), what string, id int64) (T, error) {
	v, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var zero T
		return zero, notFound(what, id)
	}
	if err != nil {
		var zero T
		return zero, mapErr(err)
	}
	return v, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	return collect(rows, func(r pgx.Row) (int64, error) {
		var id int64
		err := r.Scan(&id)
		return id, err
	})
}
