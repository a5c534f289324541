package repositories

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"subkeeper/internal/common"
)

// DBTX is the part of *pgxpool.Pool the repositories use. pgxmock pools satisfy it too.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres error codes the repositories translate.
const (
	pgUniqueViolation  = "23505"
	pgCheckViolation   = "23514"
	pgLockNotAvailable = "55P03"
	pgQueryCanceled    = "57014"
)

// translateError maps driver errors onto the service's error kinds.
func translateError(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return common.NewError(common.KindNotFound, notFound)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.WrapError(common.KindConcurrencyTimeout, "timed out waiting for the subscriber lock", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgQueryCanceled:
			return common.WrapError(common.KindConcurrencyTimeout, "timed out waiting for the subscriber lock", err)
		case pgUniqueViolation, pgCheckViolation:
			return common.WrapError(common.KindInvariantViolation, "subscription constraint violated", err)
		}
	}

	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return common.WrapError(common.KindInternal, "database error", err)
}

// lockKey turns a subscriber id into a pg advisory lock key using FNV-1a.
func lockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
