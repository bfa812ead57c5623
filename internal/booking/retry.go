package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const txAttempts = 3

// retryBackoff is the base delay between attempts; attempt n waits n times
// this long. Overridden in tests.
var retryBackoff = 100 * time.Millisecond

// withTxRetry runs fn inside a transaction and commits it, retrying the whole
// transaction on transient conflicts (serialization failures and deadlocks).
// Every other error rolls back and propagates as-is, so business rejections
// like ErrNoVacancy never burn retry attempts. Exhaustion surfaces as
// ErrStorageUnavailable.
func withTxRetry(ctx context.Context, pool DBPool, fn func(ctx context.Context, tx pgx.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= txAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(retryBackoff * time.Duration(attempt-1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := runTx(ctx, pool, fn)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: transaction conflict persisted after %d attempts: %v", ErrStorageUnavailable, txAttempts, lastErr)
}

func runTx(ctx context.Context, pool DBPool, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isTransient reports whether err is a storage conflict expected to clear on
// retry. Only the lock/deadlock class qualifies; constraint violations and
// connectivity errors do not.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001": // serialization_failure
		return true
	case "40P01": // deadlock_detected
		return true
	}
	return false
}
