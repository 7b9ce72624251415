package service

import (
	"context"
	"time"

	"github.com/robalyx/legalgate/internal/database/dbretry"
	"github.com/robalyx/legalgate/internal/database/models"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

const (
	// DefaultAuditPageSize is used when a query does not specify a limit.
	DefaultAuditPageSize = 50
	// MaxAuditPageSize caps a single audit query page.
	MaxAuditPageSize = 500
)

// StoragePrecision is the resolution PostgreSQL keeps for timestamptz values.
const StoragePrecision = time.Microsecond

// storageNow returns the current time as it will read back from the database.
func storageNow() time.Time {
	return time.Now().UTC().Truncate(StoragePrecision)
}

// AuditService handles audit log business logic.
type AuditService struct {
	db     *bun.DB
	model  *models.AuditModel
	logger *zap.Logger
	now    func() time.Time
}

// NewAudit creates a new audit service.
func NewAudit(db *bun.DB, model *models.AuditModel, logger *zap.Logger) *AuditService {
	return &AuditService{
		db:     db,
		model:  model,
		logger: logger.Named("audit_service"),
		now:    storageNow,
	}
}

// Append stores an audit event. Events are never modified or deleted afterwards.
func (s *AuditService) Append(ctx context.Context, event *types.AuditEvent) error {
	return s.model.Append(ctx, event)
}

// Query returns one page of audit events matching the filter, newest first.
func (s *AuditService) Query(
	ctx context.Context, filter types.AuditFilter, cursor *types.AuditCursor, limit int,
) ([]*types.AuditEvent, *types.AuditCursor, error) {
	return s.model.Query(ctx, filter, cursor, ClampPageSize(limit))
}

// LatestOfType returns the most recent event of a type for a user, or nil if there is none.
func (s *AuditService) LatestOfType(
	ctx context.Context, userID string, eventType enum.AuditEventType,
) (*types.AuditEvent, error) {
	return s.model.LatestOfType(ctx, userID, eventType)
}

// RecordReacceptanceRequired appends a re_acceptance_required event the first
// time a user is gated by a given active version pair. Returns whether an event was written.
func (s *AuditService) RecordReacceptanceRequired(
	ctx context.Context, userID string, status *types.ConsentStatus, rc types.RequestContext,
) (bool, error) {
	if userID == "" || !status.NeedsReacceptance {
		return false, nil
	}

	match := map[string]any{
		"termsVersion":         status.ActiveTermsVersion,
		"privacyPolicyVersion": status.ActivePrivacyVersion,
	}

	written := false
	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		written = false

		if err := s.model.LockUserWithTx(ctx, tx, userID); err != nil {
			return err
		}

		exists, err := s.model.ExistsWithTx(ctx, tx, userID, enum.AuditEventReacceptanceRequired, match)
		if err != nil || exists {
			return err
		}

		pending := make([]string, 0, len(status.PendingDocuments))
		for _, docType := range status.PendingDocuments {
			pending = append(pending, docType.String())
		}

		event := types.NewAuditEvent(enum.AuditEventReacceptanceRequired, userID, s.now(), rc)
		event.DocumentVersion = status.ActiveTermsVersion
		event.ActionTaken = "gated"
		event.EventData["termsVersion"] = status.ActiveTermsVersion
		event.EventData["privacyPolicyVersion"] = status.ActivePrivacyVersion
		event.EventData["pendingDocuments"] = pending

		if err := s.model.AppendWithTx(ctx, tx, event); err != nil {
			return err
		}

		written = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if written {
		s.logger.Info("Recorded re-acceptance requirement",
			zap.String("userID", userID),
			zap.String("termsVersion", status.ActiveTermsVersion),
			zap.String("privacyVersion", status.ActivePrivacyVersion))
	}

	return written, nil
}

// StreamEvents calls fn for every audit event in the range, in append order.
func (s *AuditService) StreamEvents(
	ctx context.Context, start, end time.Time, fn func(*types.AuditEvent) error,
) error {
	return s.model.Stream(ctx, start, end, fn)
}

// ClampPageSize bounds a requested page size to a sane range.
func ClampPageSize(limit int) int {
	switch {
	case limit <= 0:
		return DefaultAuditPageSize
	case limit > MaxAuditPageSize:
		return MaxAuditPageSize
	default:
		return limit
	}
}
