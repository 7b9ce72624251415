package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/robalyx/legalgate/internal/database/dbretry"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// slowQueryThreshold is the duration above which successful queries are logged as warnings.
const slowQueryThreshold = 500 * time.Millisecond

// Hook implements bun.QueryHook interface for logging queries with zap.
type Hook struct {
	logger *zap.Logger
}

// NewHook creates a new Hook with zap logger.
func NewHook(logger *zap.Logger) *Hook {
	return &Hook{logger: logger.Named("query")}
}

// BeforeQuery is a no-op; timing comes from the query event.
func (h *Hook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery logs the query and its execution time.
func (h *Hook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)

	switch {
	case event.Err == nil || errors.Is(event.Err, sql.ErrNoRows):
		if duration > slowQueryThreshold {
			h.logger.Warn("Slow query",
				zap.String("query", event.Query),
				zap.Duration("duration", duration))
			return
		}
		h.logger.Debug("Query executed",
			zap.String("query", event.Query),
			zap.Duration("duration", duration))
	case isAppendOnlyViolation(event.Err):
		h.logger.Warn("Rejected mutation of append-only table",
			zap.String("query", event.Query),
			zap.Error(event.Err))
	default:
		h.logger.Error("Query failed",
			zap.String("query", event.Query),
			zap.Duration("duration", duration),
			zap.Error(event.Err))
	}
}

// isAppendOnlyViolation reports whether err was raised by an append-only trigger.
func isAppendOnlyViolation(err error) bool {
	code, ok := dbretry.Code(err)
	return ok && code == dbretry.CodeRaiseException
}
