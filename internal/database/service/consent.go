package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database/dbretry"
	"github.com/robalyx/legalgate/internal/database/models"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// ChecksumPrefix marks the hash algorithm used for acceptance checksums.
const ChecksumPrefix = "sha256:"

// ConsentService handles consent ledger business logic.
type ConsentService struct {
	db          *bun.DB
	model       *models.ConsentModel
	age         *models.AgeModel
	document    *models.DocumentModel
	audit       *models.AuditModel
	policy      config.Policy
	dedupWindow time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewConsent creates a new consent service.
func NewConsent(
	db *bun.DB,
	model *models.ConsentModel,
	age *models.AgeModel,
	document *models.DocumentModel,
	audit *models.AuditModel,
	policy config.Policy,
	dedupWindow time.Duration,
	logger *zap.Logger,
) *ConsentService {
	return &ConsentService{
		db:          db,
		model:       model,
		age:         age,
		document:    document,
		audit:       audit,
		policy:      policy,
		dedupWindow: dedupWindow,
		logger:      logger.Named("consent_service"),
		now:         storageNow,
	}
}

// ValidateConsent checks a consent submission for user-correctable problems.
func ValidateConsent(req *types.ConsentRequest, policy config.Policy) error {
	if req.UserID == "" {
		return types.ErrInvalidUserID
	}

	meta := &req.Metadata
	verr := &types.ValidationError{}

	if req.TermsVersion == "" {
		verr.Add("termsVersion", "is required")
	}
	if req.PrivacyVersion == "" {
		verr.Add("privacyVersion", "is required")
	}
	if !meta.TermsAccepted {
		verr.Add("termsAccepted", "the Terms of Service must be accepted")
	}
	if !meta.PrivacyAccepted {
		verr.Add("privacyAccepted", "the Privacy Policy must be accepted")
	}
	if meta.DataProcessingConsent == nil || !*meta.DataProcessingConsent {
		verr.Add("dataProcessingConsent", "must be explicitly given")
		verr.Err = types.ErrConsentNotExplicit
	}
	if meta.IPAddress == "" {
		verr.Add("ipAddress", "is required")
	}
	if meta.UserAgent == "" {
		verr.Add("userAgent", "is required")
	}

	method := meta.ConsentMethod
	if method == "" {
		method = enum.ConsentMethodClickwrap
	}
	if !method.IsValid() {
		verr.Add("consentMethod", "must be clickwrap, browsewrap or api")
	}

	if meta.ScrollDepthPercent != nil && (*meta.ScrollDepthPercent < 0 || *meta.ScrollDepthPercent > 100) {
		verr.Add("scrollDepthPercent", "must be between 0 and 100")
	}
	if meta.TimeSpentSeconds != nil && *meta.TimeSpentSeconds < 0 {
		verr.Add("timeSpentSeconds", "cannot be negative")
	}

	if method.RequiresExposure() {
		if meta.ScrollDepthPercent == nil || *meta.ScrollDepthPercent < policy.MinScrollDepthPercent {
			verr.Add("scrollDepthPercent",
				fmt.Sprintf("the documents must be scrolled to at least %d%%", policy.MinScrollDepthPercent))
		}
		if meta.TimeSpentSeconds == nil || *meta.TimeSpentSeconds < policy.MinSecondsOnDocument {
			verr.Add("timeSpentSeconds",
				fmt.Sprintf("the documents must be open for at least %d seconds", policy.MinSecondsOnDocument))
		}
	}

	return verr.OrNil()
}

// checksumEvidence is the canonical, ordered form of the evidence covered by a checksum.
type checksumEvidence struct {
	UserID                string `json:"userId"`
	TermsVersion          string `json:"termsVersion"`
	PrivacyPolicyVersion  string `json:"privacyPolicyVersion"`
	AcceptedAt            string `json:"acceptedAt"`
	IPAddress             string `json:"ipAddress"`
	UserAgent             string `json:"userAgent"`
	ConsentMethod         string `json:"consentMethod"`
	AgeVerified           bool   `json:"ageVerified"`
	IsMinor               bool   `json:"isMinor"`
	DataProcessingConsent bool   `json:"dataProcessingConsent"`
	MarketingConsent      *bool  `json:"marketingConsent"`
	DataSaleOptOut        *bool  `json:"dataSaleOptOut"`
	ScrollDepthPercent    *int   `json:"scrollDepthPercent"`
	TimeSpentSeconds      *int   `json:"timeSpentSeconds"`
	SessionID             string `json:"sessionId"`
}

// AcceptanceChecksum returns a tamper-evidence hash over the evidence fields of a record.
func AcceptanceChecksum(record *types.ConsentRecord) (string, error) {
	data, err := sonic.ConfigStd.Marshal(checksumEvidence{
		UserID:                record.UserID,
		TermsVersion:          record.TermsVersion,
		PrivacyPolicyVersion:  record.PrivacyPolicyVersion,
		AcceptedAt:            record.AcceptedAt.UTC().Truncate(StoragePrecision).Format(time.RFC3339Nano),
		IPAddress:             record.IPAddress,
		UserAgent:             record.UserAgent,
		ConsentMethod:         record.ConsentMethod.String(),
		AgeVerified:           record.AgeVerified,
		IsMinor:               record.IsMinor,
		DataProcessingConsent: record.DataProcessingConsent,
		MarketingConsent:      record.MarketingConsent,
		DataSaleOptOut:        record.DataSaleOptOut,
		ScrollDepthPercent:    record.ScrollDepthPercent,
		TimeSpentSeconds:      record.TimeSpentSeconds,
		SessionID:             record.SessionID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode checksum evidence: %w", err)
	}

	sum := sha256.Sum256(data)
	return ChecksumPrefix + hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum reports whether a stored record still matches its checksum.
func VerifyChecksum(record *types.ConsentRecord) bool {
	if record.AcceptanceChecksum == "" {
		return false
	}

	sum, err := AcceptanceChecksum(record)
	return err == nil && sum == record.AcceptanceChecksum
}

// RecordConsent appends a consent record for the currently active versions.
// A resubmission of the same version pair within the dedup window of the same
// session returns the existing record instead of writing a new one.
func (s *ConsentService) RecordConsent(
	ctx context.Context, req *types.ConsentRequest,
) (*types.ConsentResult, error) {
	if err := ValidateConsent(req, s.policy); err != nil {
		return nil, err
	}

	var result *types.ConsentResult
	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		result, err = s.recordConsentWithTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.logger.Info("Recorded consent",
			zap.String("userID", req.UserID),
			zap.String("termsVersion", req.TermsVersion),
			zap.String("privacyVersion", req.PrivacyVersion),
			zap.Bool("reacceptance", result.Reacceptance))
	} else {
		s.logger.Debug("Absorbed duplicate consent submission",
			zap.String("userID", req.UserID),
			zap.String("sessionID", req.Metadata.SessionID))
	}

	return result, nil
}

func (s *ConsentService) recordConsentWithTx(
	ctx context.Context, tx bun.Tx, req *types.ConsentRequest,
) (*types.ConsentResult, error) {
	if err := s.model.LockUserWithTx(ctx, tx, req.UserID); err != nil {
		return nil, err
	}

	now := s.now()
	meta := req.Metadata

	// Deduplicate retries from the same session before anything else
	if s.dedupWindow > 0 {
		existing, err := s.model.FindRecentWithTx(
			ctx, tx, req.UserID, req.TermsVersion, req.PrivacyVersion, meta.SessionID, now.Add(-s.dedupWindow),
		)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			revoked, err := s.audit.LatestOfTypeWithTx(ctx, tx, req.UserID, enum.AuditEventConsentRevoked)
			if err != nil {
				return nil, err
			}
			if revoked == nil || !revoked.Timestamp.After(existing.AcceptedAt) {
				return &types.ConsentResult{Record: existing}, nil
			}
		}
	}

	// Only the active versions may be accepted
	terms, err := s.document.GetActiveWithTx(ctx, tx, enum.DocumentTypeTerms, false)
	if err != nil {
		return nil, err
	}
	privacy, err := s.document.GetActiveWithTx(ctx, tx, enum.DocumentTypePrivacy, false)
	if err != nil {
		return nil, err
	}
	if terms.Version != req.TermsVersion || privacy.Version != req.PrivacyVersion {
		return nil, fmt.Errorf("%w: active versions are terms %s and privacy %s",
			types.ErrVersionMismatch, terms.Version, privacy.Version)
	}

	age, err := s.age.GetCurrentWithTx(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}
	if age == nil || age.NeedsReverification {
		return nil, types.ErrNoAgeVerification
	}

	previous, err := s.model.GetCurrentWithTx(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	method := meta.ConsentMethod
	if method == "" {
		method = enum.ConsentMethodClickwrap
	}

	record := &types.ConsentRecord{
		ID:                      uuid.New(),
		UserID:                  req.UserID,
		TermsVersion:            req.TermsVersion,
		PrivacyPolicyVersion:    req.PrivacyVersion,
		AcceptedAt:              now,
		IPAddress:               meta.IPAddress,
		UserAgent:               norm.NFKC.String(strings.TrimSpace(meta.UserAgent)),
		Country:                 meta.Country,
		Region:                  meta.Region,
		AgeVerified:             true,
		IsMinor:                 age.IsMinor,
		RequiresParentalConsent: age.RequiresParentalConsent,
		ConsentMethod:           method,
		ScrollDepthPercent:      meta.ScrollDepthPercent,
		TimeSpentSeconds:        meta.TimeSpentSeconds,
		MarketingConsent:        meta.MarketingConsent,
		DataProcessingConsent:   true,
		DataSaleOptOut:          meta.DataSaleOptOut,
		SessionID:               meta.SessionID,
	}

	record.AcceptanceChecksum, err = AcceptanceChecksum(record)
	if err != nil {
		return nil, err
	}

	if err := s.model.InsertWithTx(ctx, tx, record); err != nil {
		return nil, err
	}

	rc := types.RequestContext{IPAddress: meta.IPAddress, UserAgent: record.UserAgent, SessionID: meta.SessionID}
	reacceptance := previous != nil && !previous.SameVersions(record.TermsVersion, record.PrivacyPolicyVersion)

	accepted := types.NewAuditEvent(enum.AuditEventTermsAccepted, req.UserID, now, rc)
	accepted.DocumentVersion = record.TermsVersion
	accepted.ActionTaken = "accepted"
	accepted.EventData["consentId"] = record.ID.String()
	accepted.EventData["termsVersion"] = record.TermsVersion
	accepted.EventData["privacyPolicyVersion"] = record.PrivacyPolicyVersion
	accepted.EventData["consentMethod"] = record.ConsentMethod.String()
	accepted.EventData["acceptanceChecksum"] = record.AcceptanceChecksum
	if record.MarketingConsent != nil {
		accepted.EventData["marketingConsent"] = *record.MarketingConsent
	}
	if record.DataSaleOptOut != nil {
		accepted.EventData["dataSaleOptOut"] = *record.DataSaleOptOut
	}
	if previous != nil {
		accepted.PreviousVersion = previous.TermsVersion
	}

	events := []*types.AuditEvent{accepted}
	if reacceptance {
		completed := types.NewAuditEvent(enum.AuditEventReacceptanceCompleted, req.UserID, now, rc)
		completed.DocumentVersion = record.TermsVersion
		completed.PreviousVersion = previous.TermsVersion
		completed.ActionTaken = "reaccepted"
		completed.EventData["consentId"] = record.ID.String()
		completed.EventData["previousConsentId"] = previous.ID.String()
		completed.EventData["termsVersion"] = record.TermsVersion
		completed.EventData["privacyPolicyVersion"] = record.PrivacyPolicyVersion
		completed.EventData["previousTermsVersion"] = previous.TermsVersion
		completed.EventData["previousPrivacyPolicyVersion"] = previous.PrivacyPolicyVersion
		events = append(events, completed)
	}

	if err := s.audit.AppendWithTx(ctx, tx, events...); err != nil {
		return nil, err
	}

	return &types.ConsentResult{Record: record, Created: true, Reacceptance: reacceptance}, nil
}

// GetCurrent returns the most recent consent record of a user, or nil if the user never consented.
func (s *ConsentService) GetCurrent(ctx context.Context, userID string) (*types.ConsentRecord, error) {
	if userID == "" {
		return nil, types.ErrInvalidUserID
	}
	return s.model.GetCurrent(ctx, userID)
}

// History returns every consent record of a user, newest first.
func (s *ConsentService) History(ctx context.Context, userID string) ([]*types.ConsentRecord, error) {
	if userID == "" {
		return nil, types.ErrInvalidUserID
	}
	return s.model.History(ctx, userID)
}

// StreamRecords calls fn for every consent record accepted in [start, end), oldest first.
func (s *ConsentService) StreamRecords(
	ctx context.Context, start, end time.Time, fn func(*types.ConsentRecord) error,
) error {
	return s.model.Stream(ctx, start, end, fn)
}

// Revoke records that a user withdrew consent. The ledger is untouched; the gate
// treats a revocation newer than the current record as no consent.
func (s *ConsentService) Revoke(
	ctx context.Context, userID, reason string, rc types.RequestContext,
) (*types.AuditEvent, error) {
	current, err := s.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, types.ErrNoConsent
	}

	event := types.NewAuditEvent(enum.AuditEventConsentRevoked, userID, s.now(), rc)
	event.DocumentVersion = current.TermsVersion
	event.ActionTaken = "revoked"
	event.EventData["consentId"] = current.ID.String()
	event.EventData["termsVersion"] = current.TermsVersion
	event.EventData["privacyPolicyVersion"] = current.PrivacyPolicyVersion
	if reason != "" {
		event.EventData["reason"] = reason
	}

	return s.appendUserEvent(ctx, event)
}

// Reject records that a user declined a document version.
func (s *ConsentService) Reject(
	ctx context.Context, userID string, docType enum.DocumentType, version, reason string, rc types.RequestContext,
) (*types.AuditEvent, error) {
	if userID == "" {
		return nil, types.ErrInvalidUserID
	}
	if !docType.IsValid() {
		return nil, types.ErrUnknownDocumentType
	}

	event := types.NewAuditEvent(enum.AuditEventTermsRejected, userID, s.now(), rc)
	event.DocumentVersion = version
	event.ActionTaken = "rejected"
	event.EventData["documentType"] = docType.String()
	if reason != "" {
		event.EventData["reason"] = reason
	}

	return s.appendUserEvent(ctx, event)
}

// RecordOptOut records a marketing or data sale opt-out.
func (s *ConsentService) RecordOptOut(
	ctx context.Context, userID string, kind enum.OptOutKind, rc types.RequestContext,
) (*types.AuditEvent, error) {
	if userID == "" {
		return nil, types.ErrInvalidUserID
	}
	if !kind.IsValid() {
		return nil, types.NewValidationError("kind", "must be marketing or data_sale")
	}

	event := types.NewAuditEvent(enum.AuditEventOptOutRecorded, userID, s.now(), rc)
	event.ActionTaken = "opted_out"
	event.EventData["kind"] = string(kind)

	return s.appendUserEvent(ctx, event)
}

// RequestDataDeletion records a user's request to delete their data.
func (s *ConsentService) RequestDataDeletion(
	ctx context.Context, userID, reason string, rc types.RequestContext,
) (*types.AuditEvent, error) {
	if userID == "" {
		return nil, types.ErrInvalidUserID
	}

	event := types.NewAuditEvent(enum.AuditEventDataDeletionRequested, userID, s.now(), rc)
	event.ActionTaken = "deletion_requested"
	if reason != "" {
		event.EventData["reason"] = reason
	}

	return s.appendUserEvent(ctx, event)
}

// LatestRevocation returns the most recent revocation of a user, or nil if there is none.
func (s *ConsentService) LatestRevocation(ctx context.Context, userID string) (*types.AuditEvent, error) {
	return s.audit.LatestOfType(ctx, userID, enum.AuditEventConsentRevoked)
}

// appendUserEvent stores a user event under the user's write lock so it orders
// consistently with consent records of the same user.
func (s *ConsentService) appendUserEvent(ctx context.Context, event *types.AuditEvent) (*types.AuditEvent, error) {
	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		if err := s.model.LockUserWithTx(ctx, tx, event.UserID); err != nil {
			return err
		}
		return s.audit.AppendWithTx(ctx, tx, event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", event.EventType, err)
	}

	s.logger.Info("Recorded user event",
		zap.String("userID", event.UserID),
		zap.String("eventType", event.EventType.String()))

	return event, nil
}
