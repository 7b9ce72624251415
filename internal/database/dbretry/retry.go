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
)

var (
	maxElapsedTime  = 30 * time.Second
	initialInterval = 250 * time.Millisecond
	maxInterval     = 5 * time.Second
	maxRetries      = uint64(5)
)

// PostgreSQL error codes inspected outside of retry classification.
const (
	CodeUniqueViolation = "23505"
	CodeRaiseException  = "P0001"
)

// retryableCodes lists the SQLSTATE codes that indicate a transient failure.
var retryableCodes = map[string]struct{}{
	"08000": {}, // connection_exception
	"08003": {}, // connection_does_not_exist
	"08006": {}, // connection_failure
	"08001": {}, // sqlclient_unable_to_establish_sqlconnection
	"08004": {}, // sqlserver_rejected_establishment_of_sqlconnection
	"08007": {}, // transaction_resolution_unknown
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53000": {}, // insufficient_resources
	"53100": {}, // disk_full
	"53200": {}, // out_of_memory
	"53300": {}, // too_many_connections
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
	"55P03": {}, // lock_not_available
}

// networkErrors are substrings of driver errors caused by a broken connection.
var networkErrors = []string{
	"connection reset by peer",
	"broken pipe",
	"connection refused",
	"no connection",
	"i/o timeout",
}

// IsRetryableError checks if the given error is retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation comes from the caller and must not be retried
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if code, ok := Code(err); ok {
		_, retryable := retryableCodes[code]
		return retryable
	}

	errMsg := err.Error()
	for _, s := range networkErrors {
		if strings.Contains(errMsg, s) {
			return true
		}
	}

	return false
}

// Code extracts the SQLSTATE code from a PostgreSQL error.
func Code(err error) (string, bool) {
	var pgerr pgdriver.Error
	if errors.As(err, &pgerr) {
		return pgerr.Field('C'), true
	}

	return "", false
}

// IsUniqueViolation reports whether err was caused by a unique constraint.
// If constraint is not empty, the violated constraint name must match.
func IsUniqueViolation(err error, constraint string) bool {
	var pgerr pgdriver.Error
	if !errors.As(err, &pgerr) || pgerr.Field('C') != CodeUniqueViolation {
		return false
	}

	return constraint == "" || pgerr.Field('n') == constraint
}

// Operation wraps a database operation with retry logic.
func Operation[T any](ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	var result T

	err := retry(ctx, func() error {
		var err error
		result, err = operation(ctx)
		return err
	})

	return result, err
}

// NoResult wraps a database operation that doesn't return a result.
func NoResult(ctx context.Context, operation func(context.Context) error) error {
	return retry(ctx, func() error {
		return operation(ctx)
	})
}

// Transaction wraps a database transaction with retry logic.
// The whole transaction is replayed on a transient failure.
func Transaction(ctx context.Context, db bun.IDB, fn func(context.Context, bun.Tx) error) error {
	return NoResult(ctx, func(ctx context.Context) error {
		return db.RunInTx(ctx, nil, fn)
	})
}

// retry runs fn until it succeeds, fails permanently or the policy is exhausted.
// Errors returned by fn are preserved so callers can match sentinels with errors.Is.
func retry(ctx context.Context, fn func() error) error {
	var lastErr error

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(maxElapsedTime),
		backoff.WithInitialInterval(initialInterval),
		backoff.WithMaxInterval(maxInterval),
	), maxRetries)

	err := backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}

	if lastErr != nil {
		if IsRetryableError(lastErr) {
			return fmt.Errorf("database operation failed after retries: %w", lastErr)
		}
		return lastErr
	}

	return fmt.Errorf("database operation failed: %w", err)
}
