package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/legalgate/internal/database/dbretry"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AgeModel handles database operations for age verification records.
type AgeModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAge creates a new age verification model.
func NewAge(db *bun.DB, logger *zap.Logger) *AgeModel {
	return &AgeModel{
		db:     db,
		logger: logger.Named("db_age"),
	}
}

// LockUserWithTx serializes verification writes of a single user until the transaction ends.
func (m *AgeModel) LockUserWithTx(ctx context.Context, tx bun.Tx, userID string) error {
	return advisoryLockWithTx(ctx, tx, lockNamespaceUser, userID)
}

// InsertWithTx stores a verification record.
func (m *AgeModel) InsertWithTx(ctx context.Context, tx bun.Tx, record *types.AgeVerification) error {
	_, err := tx.NewInsert().
		Model(record).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert age verification: %w", err)
	}

	return nil
}

// GetCurrentWithTx returns the latest verification record of a user, or nil if there is none.
func (m *AgeModel) GetCurrentWithTx(ctx context.Context, tx bun.IDB, userID string) (*types.AgeVerification, error) {
	var record types.AgeVerification
	err := tx.NewSelect().
		Model(&record).
		Where("user_id = ?", userID).
		Order("verified_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // absence is a valid state
		}
		return nil, fmt.Errorf("failed to get current age verification: %w", err)
	}

	return &record, nil
}

// GetCurrent returns the latest verification record of a user, or nil if there is none.
func (m *AgeModel) GetCurrent(ctx context.Context, userID string) (*types.AgeVerification, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.AgeVerification, error) {
		return m.GetCurrentWithTx(ctx, m.db, userID)
	})
}

// MarkForReverificationWithTx flags the current record of a user as needing re-verification.
// Returns false when the user has no record.
func (m *AgeModel) MarkForReverificationWithTx(
	ctx context.Context, tx bun.Tx, userID string, nextVerificationDate time.Time,
) (bool, error) {
	current, err := m.GetCurrentWithTx(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}

	query := tx.NewUpdate().
		Model((*types.AgeVerification)(nil)).
		Set("needs_reverification = true").
		Where("id = ?", current.ID)
	if !nextVerificationDate.IsZero() {
		query = query.Set("next_verification_date = ?", nextVerificationDate)
	}

	if _, err := query.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to mark age verification: %w", err)
	}

	return true, nil
}

// ListDue returns current records whose next verification date has passed
// and that are not yet flagged, oldest due date first.
func (m *AgeModel) ListDue(ctx context.Context, now time.Time, limit int) ([]*types.AgeVerification, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.AgeVerification, error) {
		current := m.db.NewSelect().
			Model((*types.AgeVerification)(nil)).
			DistinctOn("user_id").
			Order("user_id", "verified_at DESC")

		var records []*types.AgeVerification
		err := m.db.NewSelect().
			With("current_verifications", current).
			Model(&records).
			ModelTableExpr("current_verifications AS age_verification").
			Where("next_verification_date <= ?", now).
			Where("NOT needs_reverification").
			Order("next_verification_date ASC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list due verifications: %w", err)
		}

		return records, nil
	})
}
