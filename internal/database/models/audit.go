package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/legalgate/internal/database/dbretry"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AuditModel handles database operations for the append-only audit log.
type AuditModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAudit creates a repository with database access for
// storing and retrieving legal audit events.
func NewAudit(db *bun.DB, logger *zap.Logger) *AuditModel {
	return &AuditModel{
		db:     db,
		logger: logger.Named("db_audit"),
	}
}

// LockUserWithTx serializes audit writes of a single user with its consent writes.
func (r *AuditModel) LockUserWithTx(ctx context.Context, tx bun.Tx, userID string) error {
	return advisoryLockWithTx(ctx, tx, lockNamespaceUser, userID)
}

// AppendWithTx stores audit events using the provided transaction.
// An error here must abort the surrounding write.
func (r *AuditModel) AppendWithTx(ctx context.Context, tx bun.IDB, events ...*types.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	_, err := tx.NewInsert().Model(&events).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to append audit events: %w", err)
	}

	for _, event := range events {
		r.logger.Debug("Appended audit event",
			zap.String("eventType", event.EventType.String()),
			zap.String("userID", event.UserID),
			zap.Int64("sequence", event.Sequence))
	}

	return nil
}

// Append stores audit events outside of any other write.
func (r *AuditModel) Append(ctx context.Context, events ...*types.AuditEvent) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		return r.AppendWithTx(ctx, r.db, events...)
	})
}

// ExistsWithTx checks whether the user already has an event of the given type
// whose data contains all of the given keys and values.
func (r *AuditModel) ExistsWithTx(
	ctx context.Context, tx bun.IDB, userID string, eventType enum.AuditEventType, data map[string]any,
) (bool, error) {
	query := tx.NewSelect().
		Model((*types.AuditEvent)(nil)).
		Where("user_id = ?", userID).
		Where("event_type = ?", eventType)

	if len(data) > 0 {
		encoded, err := sonic.MarshalString(data)
		if err != nil {
			return false, fmt.Errorf("failed to encode event data filter: %w", err)
		}
		query = query.Where("event_data @> ?::jsonb", encoded)
	}

	exists, err := query.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check audit event: %w", err)
	}

	return exists, nil
}

// LatestOfTypeWithTx returns the most recent event of a type for a user using the
// provided transaction, or nil if there is none.
func (r *AuditModel) LatestOfTypeWithTx(
	ctx context.Context, tx bun.IDB, userID string, eventType enum.AuditEventType,
) (*types.AuditEvent, error) {
	var event types.AuditEvent
	err := tx.NewSelect().
		Model(&event).
		Where("user_id = ?", userID).
		Where("event_type = ?", eventType).
		Order("event_timestamp DESC", "sequence DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // absence is a valid state
		}
		return nil, fmt.Errorf("failed to get latest audit event: %w", err)
	}

	return &event, nil
}

// LatestOfType returns the most recent event of a type for a user, or nil if there is none.
func (r *AuditModel) LatestOfType(
	ctx context.Context, userID string, eventType enum.AuditEventType,
) (*types.AuditEvent, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.AuditEvent, error) {
		return r.LatestOfTypeWithTx(ctx, r.db, userID, eventType)
	})
}

// Query retrieves audit events based on filter criteria.
func (r *AuditModel) Query(
	ctx context.Context, filter types.AuditFilter, cursor *types.AuditCursor, limit int,
) ([]*types.AuditEvent, *types.AuditCursor, error) {
	var events []*types.AuditEvent
	var nextCursor *types.AuditCursor

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		events = nil
		nextCursor = nil

		query := r.db.NewSelect().Model(&events)

		if filter.UserID != "" {
			query = query.Where("user_id = ?", filter.UserID)
		}
		if filter.EventType != enum.AuditEventAll {
			query = query.Where("event_type = ?", filter.EventType)
		}
		if !filter.StartDate.IsZero() {
			query = query.Where("event_timestamp >= ?", filter.StartDate)
		}
		if !filter.EndDate.IsZero() {
			query = query.Where("event_timestamp <= ?", filter.EndDate)
		}

		// Apply cursor conditions if cursor exists
		if cursor != nil {
			query = query.Where("(event_timestamp, sequence) <= (?, ?)", cursor.Timestamp, cursor.Sequence)
		}

		// Get one extra to determine if there are more results
		err := query.Order("event_timestamp DESC", "sequence DESC").
			Limit(limit + 1).
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("failed to query audit events: %w", err)
		}

		if len(events) > limit {
			extra := events[limit]
			nextCursor = &types.AuditCursor{
				Timestamp: extra.Timestamp,
				Sequence:  extra.Sequence,
			}
			events = events[:limit]
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return events, nextCursor, nil
}

// Stream calls fn for every audit event in the given range, in append order.
func (r *AuditModel) Stream(
	ctx context.Context, start, end time.Time, fn func(*types.AuditEvent) error,
) error {
	rows, err := r.db.NewSelect().
		Model((*types.AuditEvent)(nil)).
		Where("event_timestamp >= ?", start).
		Where("event_timestamp < ?", end).
		Order("sequence ASC").
		Rows(ctx)
	if err != nil {
		return fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var event types.AuditEvent
		if err := r.db.ScanRow(ctx, rows, &event); err != nil {
			return fmt.Errorf("failed to scan audit event: %w", err)
		}
		if err := fn(&event); err != nil {
			return err
		}
	}

	return rows.Err()
}
