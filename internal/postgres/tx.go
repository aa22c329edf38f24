package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-lot-orders/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes that mean "try again" rather than "broken".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
)

// mapErr turns driver errors into the apperr taxonomy. Lock contention
// becomes ErrConflict so the engine retries it; a violated lot CHECK means a
// counter would have gone out of bounds.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%s: %s: %w", op, pgErr.Message, apperr.ErrConflict)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, apperr.ErrConflict)
		case codeCheckViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, apperr.ErrCounterUnderflow)
		}
	}
	return apperr.Storage(op, err)
}

// withTx runs fn inside a read-committed transaction. Row locks are taken
// explicitly with FOR UPDATE; lock_timeout bounds how long a caller queues
// behind a hot lot.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return mapErr("lock_timeout", err)
	}
	if err = fn(tx); err != nil {
		return err
	}
	return mapErr("commit", tx.Commit(ctx))
}
