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

// ConsentModel handles database operations for user consent records.
type ConsentModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewConsent creates a new consent model.
func NewConsent(db *bun.DB, logger *zap.Logger) *ConsentModel {
	return &ConsentModel{
		db:     db,
		logger: logger.Named("db_consent"),
	}
}

// LockUserWithTx serializes consent writes of a single user until the transaction ends.
func (m *ConsentModel) LockUserWithTx(ctx context.Context, tx bun.Tx, userID string) error {
	return advisoryLockWithTx(ctx, tx, lockNamespaceUser, userID)
}

// InsertWithTx stores a consent record. Records are never updated afterwards.
func (m *ConsentModel) InsertWithTx(ctx context.Context, tx bun.Tx, record *types.ConsentRecord) error {
	_, err := tx.NewInsert().
		Model(record).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save consent: %w", err)
	}

	return nil
}

// GetCurrentWithTx returns the most recent consent record of a user, or nil if there is none.
func (m *ConsentModel) GetCurrentWithTx(ctx context.Context, tx bun.IDB, userID string) (*types.ConsentRecord, error) {
	var record types.ConsentRecord
	err := tx.NewSelect().
		Model(&record).
		Where("user_id = ?", userID).
		Order("accepted_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // absence is a valid state
		}
		return nil, fmt.Errorf("failed to get current consent: %w", err)
	}

	return &record, nil
}

// GetCurrent returns the most recent consent record of a user, or nil if there is none.
func (m *ConsentModel) GetCurrent(ctx context.Context, userID string) (*types.ConsentRecord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.ConsentRecord, error) {
		return m.GetCurrentWithTx(ctx, m.db, userID)
	})
}

// FindRecentWithTx returns a record for the same user, version pair and session
// accepted at or after since, or nil if there is none.
func (m *ConsentModel) FindRecentWithTx(
	ctx context.Context, tx bun.Tx, userID, termsVersion, privacyVersion, sessionID string, since time.Time,
) (*types.ConsentRecord, error) {
	var record types.ConsentRecord

	query := tx.NewSelect().
		Model(&record).
		Where("user_id = ?", userID).
		Where("terms_version = ?", termsVersion).
		Where("privacy_policy_version = ?", privacyVersion).
		Where("accepted_at >= ?", since)
	if sessionID == "" {
		query = query.Where("session_id IS NULL")
	} else {
		query = query.Where("session_id = ?", sessionID)
	}

	err := query.Order("accepted_at DESC").Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // absence is a valid state
		}
		return nil, fmt.Errorf("failed to find recent consent: %w", err)
	}

	return &record, nil
}

// History returns every consent record of a user, newest first.
func (m *ConsentModel) History(ctx context.Context, userID string) ([]*types.ConsentRecord, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ConsentRecord, error) {
		var records []*types.ConsentRecord
		err := m.db.NewSelect().
			Model(&records).
			Where("user_id = ?", userID).
			Order("accepted_at DESC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get consent history: %w", err)
		}

		return records, nil
	})
}

// Stream calls fn for every consent record accepted in the given range, oldest first.
func (m *ConsentModel) Stream(
	ctx context.Context, start, end time.Time, fn func(*types.ConsentRecord) error,
) error {
	rows, err := m.db.NewSelect().
		Model((*types.ConsentRecord)(nil)).
		Where("accepted_at >= ?", start).
		Where("accepted_at < ?", end).
		Order("accepted_at ASC").
		Rows(ctx)
	if err != nil {
		return fmt.Errorf("failed to query consent records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var record types.ConsentRecord
		if err := m.db.ScanRow(ctx, rows, &record); err != nil {
			return fmt.Errorf("failed to scan consent record: %w", err)
		}
		if err := fn(&record); err != nil {
			return err
		}
	}

	return rows.Err()
}
