package dbretry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	maxElapsedTime  = 10 * time.Second
	initialInterval = 100 * time.Millisecond
	maxInterval     = 2 * time.Second
	maxRetries      = uint64(4)
)

// IsRetryableError checks if the given error is transient.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// PostgreSQL connection, serialization and resource errors
	var pgerr pgdriver.Error
	if errors.As(err, &pgerr) {
		switch pgerr.Field('C') {
		case "08000", // connection_exception
			"08003", // connection_does_not_exist
			"08006", // connection_failure
			"08001", // sqlclient_unable_to_establish_sqlconnection
			"40001", // serialization_failure
			"40P01", // deadlock_detected
			"53300", // too_many_connections
			"57P01", // admin_shutdown
			"57P03", // cannot_connect_now
			"55P03": // lock_not_available
			return true
		}
		return false
	}

	// SQLite lock contention
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	// Check for common network error strings
	errMsg := err.Error()
	return strings.Contains(errMsg, "connection reset by peer") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "i/o timeout")
}

func newBackOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(maxElapsedTime),
		backoff.WithInitialInterval(initialInterval),
		backoff.WithMaxInterval(maxInterval),
	), maxRetries), ctx)
}

// Operation wraps a database operation with retry logic.
func Operation[T any](ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	var result T

	err := NoResult(ctx, func(ctx context.Context) error {
		var err error
		result, err = operation(ctx)
		return err
	})

	return result, err
}

// NoResult wraps a database operation that doesn't return a result.
func NoResult(ctx context.Context, operation func(context.Context) error) error {
	var lastErr error

	err := backoff.Retry(func() error {
		err := operation(ctx)
		if err != nil {
			if !IsRetryableError(err) {
				return backoff.Permanent(err)
			}
			lastErr = err
			return err
		}
		return nil
	}, newBackOff(ctx))
	if err != nil {
		if lastErr != nil && !errors.Is(err, lastErr) {
			// Return the last actual database error instead of the context error
			return fmt.Errorf("database operation failed after retries: %w", lastErr)
		}
		return err
	}

	return nil
}

// Transaction wraps a database transaction with retry logic.
func Transaction(ctx context.Context, db *bun.DB, fn func(context.Context, bun.Tx) error) error {
	return NoResult(ctx, func(ctx context.Context) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	})
}
