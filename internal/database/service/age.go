package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database/dbretry"
	"github.com/robalyx/legalgate/internal/database/models"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AgeService handles age verification business logic.
type AgeService struct {
	db     *bun.DB
	model  *models.AgeModel
	audit  *models.AuditModel
	policy config.Policy
	logger *zap.Logger
	now    func() time.Time
}

// NewAge creates a new age verification service.
func NewAge(
	db *bun.DB, model *models.AgeModel, audit *models.AuditModel, policy config.Policy, logger *zap.Logger,
) *AgeService {
	return &AgeService{
		db:     db,
		model:  model,
		audit:  audit,
		policy: policy,
		logger: logger.Named("age_service"),
		now:    storageNow,
	}
}

// BuildVerification validates a verification request and builds the record to store.
// Users below the minimum age fail with ErrAgeRestriction and no record is built.
func BuildVerification(
	req *types.VerificationRequest, policy config.Policy, now time.Time,
) (*types.AgeVerification, error) {
	if req.UserID == "" {
		return nil, types.ErrInvalidUserID
	}

	verificationType := req.VerificationType
	if verificationType == "" {
		verificationType = enum.VerificationTypeSelfReported
	}
	if !verificationType.IsValid() {
		return nil, types.NewValidationError("verificationType", "is not a supported verification type")
	}

	if err := ValidateBirthDate(req.BirthDate, now); err != nil {
		return nil, err
	}

	guardianEmail, err := NormalizeGuardianEmail(req.GuardianEmail)
	if err != nil {
		return nil, err
	}

	birth := req.BirthDate.Time()
	decision, err := ClassifyAge(ComputeAge(birth, now), policy)
	if err != nil {
		return nil, err
	}

	record := &types.AgeVerification{
		ID:                      uuid.New(),
		UserID:                  req.UserID,
		DateOfBirth:             req.BirthDate.String(),
		AgeAtVerification:       decision.Age,
		VerifiedAt:              now,
		VerificationType:        verificationType,
		IsMinor:                 decision.IsMinor,
		RequiresParentalConsent: decision.RequiresParentalConsent,
		NextVerificationDate:    NextVerificationDate(birth, now, decision, policy),
	}

	if decision.IsMinor {
		record.GuardianEmail = guardianEmail
	}

	if decision.RequiresParentalConsent {
		recorded := verificationType == enum.VerificationTypeParentVerified
		record.ParentalConsentRecorded = &recorded
		if recorded {
			record.GuardianConsentDate = now
			record.GuardianIPAddress = req.IPAddress
		}
	}

	return record, nil
}

// RecordVerification stores a new age verification for a user together with its audit event.
// Re-verification inserts a new record; the latest record is the current one.
func (s *AgeService) RecordVerification(
	ctx context.Context, req *types.VerificationRequest,
) (*types.AgeVerification, error) {
	now := s.now()

	record, err := BuildVerification(req, s.policy, now)
	if err != nil {
		if errors.Is(err, types.ErrAgeRestriction) {
			s.logger.Info("Blocked user below minimum age",
				zap.String("userID", req.UserID),
				zap.Int("minimumAge", s.policy.MinimumAge))
		}
		return nil, err
	}

	err = dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		if err := s.model.LockUserWithTx(ctx, tx, record.UserID); err != nil {
			return err
		}

		previous, err := s.model.GetCurrentWithTx(ctx, tx, record.UserID)
		if err != nil {
			return err
		}

		if err := s.model.InsertWithTx(ctx, tx, record); err != nil {
			return err
		}

		event := types.NewAuditEvent(enum.AuditEventAgeVerified, record.UserID, now, types.RequestContext{
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			SessionID: req.SessionID,
		})
		event.ActionTaken = "verified"
		if previous != nil {
			event.ActionTaken = "reverified"
		}
		event.EventData["verificationId"] = record.ID.String()
		event.EventData["verificationType"] = record.VerificationType.String()
		event.EventData["ageAtVerification"] = record.AgeAtVerification
		event.EventData["isMinor"] = record.IsMinor
		event.EventData["requiresParentalConsent"] = record.RequiresParentalConsent
		event.EventData["guardianEmailProvided"] = record.GuardianEmail != ""

		return s.audit.AppendWithTx(ctx, tx, event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record age verification: %w", err)
	}

	s.logger.Info("Recorded age verification",
		zap.String("userID", record.UserID),
		zap.Bool("isMinor", record.IsMinor),
		zap.Bool("requiresParentalConsent", record.RequiresParentalConsent))

	return record, nil
}

// MarkForReverification flags the current verification of a user so the gate
// requires a new verification. A zero nextVerificationDate keeps the stored one.
func (s *AgeService) MarkForReverification(
	ctx context.Context, userID string, nextVerificationDate time.Time,
) error {
	if userID == "" {
		return types.ErrInvalidUserID
	}

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		if err := s.model.LockUserWithTx(ctx, tx, userID); err != nil {
			return err
		}

		found, err := s.model.MarkForReverificationWithTx(ctx, tx, userID, nextVerificationDate)
		if err != nil {
			return err
		}
		if !found {
			return types.ErrNoAgeVerification
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Marked user for re-verification", zap.String("userID", userID))

	return nil
}

// GetCurrent returns the latest verification of a user, or nil if the user never verified.
func (s *AgeService) GetCurrent(ctx context.Context, userID string) (*types.AgeVerification, error) {
	if userID == "" {
		return nil, types.ErrInvalidUserID
	}
	return s.model.GetCurrent(ctx, userID)
}

// ListDueForReverification returns current verifications whose next verification date has passed.
func (s *AgeService) ListDueForReverification(
	ctx context.Context, now time.Time, limit int,
) ([]*types.AgeVerification, error) {
	return s.model.ListDue(ctx, now, limit)
}
