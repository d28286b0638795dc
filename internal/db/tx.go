package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mattn/go-sqlite3"
)

// Retryable storage failures. Callers may repeat the same idempotent request.
var (
	ErrStorageTimeout  = errors.New("storage timeout")
	ErrStorageConflict = errors.New("storage conflict")
)

// maxTxAttempts bounds retries of a transaction that keeps hitting a lock.
const maxTxAttempts = 5

// IsBusy reports whether err is SQLite refusing a lock.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// InTx runs fn inside a write transaction and commits it. The transaction is
// retried with exponential backoff while the database is locked. A context
// deadline surfaces as ErrStorageTimeout and exhausted retries as
// ErrStorageConflict. A failed or cancelled transaction is rolled back, so
// callers see either all of fn's writes or none.
func InTx(ctx context.Context, d *sql.DB, fn func(tx *sql.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := runTx(ctx, d, fn)
		switch {
		case err == nil:
			return struct{}{}, nil
		case IsBusy(err):
			slog.Debug("database busy, retrying", "attempt", attempt, "error", err)
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTxAttempts))

	return Classify(ctx, err)
}

func runTx(ctx context.Context, d *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (also failed to roll back: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Classify maps driver and context failures onto the retryable sentinels.
func Classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStorageTimeout, err)
	case IsBusy(err):
		return fmt.Errorf("%w: %v", ErrStorageConflict, err)
	default:
		return err
	}
}
