package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database/dbretry"
	"github.com/robalyx/legalgate/internal/database/models"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// SeedVersion is the version published by Seed for document types without an active document.
const SeedVersion = "1.0.0"

// DocumentService handles publishing and reading legal documents.
type DocumentService struct {
	db     *bun.DB
	model  *models.DocumentModel
	audit  *models.AuditModel
	logger *zap.Logger
	now    func() time.Time
}

// NewDocument creates a new document service.
func NewDocument(
	db *bun.DB, model *models.DocumentModel, audit *models.AuditModel, logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		db:     db,
		model:  model,
		audit:  audit,
		logger: logger.Named("document_service"),
		now:    storageNow,
	}
}

// ValidatePublish checks a publish request for user-correctable problems.
func ValidatePublish(req *types.PublishRequest) error {
	verr := &types.ValidationError{}

	if !req.DocumentType.IsValid() {
		verr.Add("documentType", "must be terms or privacy")
		verr.Err = types.ErrUnknownDocumentType
	}
	if !types.IsValidVersion(req.Version) {
		verr.Add("version", "must be a semantic version such as 2.0.0")
		verr.Err = types.ErrInvalidVersion
	}
	if strings.TrimSpace(req.Content) == "" {
		verr.Add("content", "is required")
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		verr.Add("createdBy", "is required")
	}
	if req.EffectiveDate.IsZero() {
		verr.Add("effectiveDate", "is required")
	}

	return verr.OrNil()
}

// Publish activates a new document version and deactivates its predecessor in one transaction.
// Concurrent publishes of the same type serialize on an advisory lock; the loser
// sees the winner's document as active and fails version ordering.
func (s *DocumentService) Publish(ctx context.Context, req *types.PublishRequest) (*types.PublishResult, error) {
	if err := ValidatePublish(req); err != nil {
		return nil, err
	}

	var result *types.PublishResult
	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		result, err = s.publishWithTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Published document",
		zap.String("documentType", req.DocumentType.String()),
		zap.String("version", req.Version),
		zap.Bool("materialChange", req.MaterialChange),
		zap.String("createdBy", req.CreatedBy))

	return result, nil
}

// publishWithTx runs the locked deactivate-then-insert sequence.
func (s *DocumentService) publishWithTx(
	ctx context.Context, tx bun.Tx, req *types.PublishRequest,
) (*types.PublishResult, error) {
	if err := s.model.LockTypeWithTx(ctx, tx, req.DocumentType); err != nil {
		return nil, err
	}

	exists, err := s.model.ExistsWithTx(ctx, tx, req.DocumentType, req.Version)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s %s", types.ErrDuplicateVersion, req.DocumentType, req.Version)
	}

	previous, err := s.model.GetActiveWithTx(ctx, tx, req.DocumentType, true)
	if err != nil && !errors.Is(err, types.ErrNoActiveDocument) {
		return nil, err
	}

	previousVersion := ""
	if previous != nil {
		if types.CompareVersions(req.Version, previous.Version) <= 0 {
			return nil, fmt.Errorf("%w: %s is not after %s", types.ErrVersionNotNewer, req.Version, previous.Version)
		}

		if err := s.model.DeactivateWithTx(ctx, tx, previous.ID); err != nil {
			return nil, err
		}
		previous.IsActive = false
		previousVersion = previous.Version
	}

	now := s.now()
	doc := &types.LegalDocument{
		ID:             uuid.New(),
		DocumentType:   req.DocumentType,
		Version:        req.Version,
		Content:        req.Content,
		EffectiveDate:  req.EffectiveDate.UTC(),
		MaterialChange: req.MaterialChange,
		ChangesSummary: req.ChangesSummary,
		CreatedAt:      now,
		CreatedBy:      req.CreatedBy,
		IsActive:       true,
	}
	if err := s.model.InsertWithTx(ctx, tx, doc); err != nil {
		return nil, err
	}

	event := types.NewAuditEvent(enum.AuditEventVersionUpdated, "", now, types.RequestContext{})
	event.DocumentVersion = doc.Version
	event.PreviousVersion = previousVersion
	event.ActionTaken = "published"
	event.EventData["documentType"] = doc.DocumentType.String()
	event.EventData["documentId"] = doc.ID.String()
	event.EventData["materialChange"] = doc.MaterialChange
	event.EventData["changesSummary"] = doc.ChangesSummary
	event.EventData["createdBy"] = doc.CreatedBy
	if err := s.audit.AppendWithTx(ctx, tx, event); err != nil {
		return nil, err
	}

	return &types.PublishResult{Document: doc, Previous: previous}, nil
}

// GetActive returns the active document of a type.
// ErrNoActiveDocument means the deployment was never seeded.
func (s *DocumentService) GetActive(ctx context.Context, docType enum.DocumentType) (*types.LegalDocument, error) {
	if !docType.IsValid() {
		return nil, types.ErrUnknownDocumentType
	}

	doc, err := s.model.GetActive(ctx, docType)
	if errors.Is(err, types.ErrNoActiveDocument) {
		s.logger.Error("No active document, deployment is not seeded",
			zap.String("documentType", docType.String()))
	}

	return doc, err
}

// GetActiveVersions returns the active document of every type.
// Fails with ErrNoActiveDocument if any type has none.
func (s *DocumentService) GetActiveVersions(ctx context.Context) (*types.ActiveVersions, error) {
	active, err := s.model.GetActiveVersions(ctx)
	if err != nil {
		return nil, err
	}

	for _, docType := range enum.DocumentTypes {
		if active.Of(docType) == nil {
			s.logger.Error("No active document, deployment is not seeded",
				zap.String("documentType", docType.String()))
			return nil, fmt.Errorf("%w: %s", types.ErrNoActiveDocument, docType)
		}
	}

	return active, nil
}

// GetByVersion returns a specific version of a document.
func (s *DocumentService) GetByVersion(
	ctx context.Context, docType enum.DocumentType, version string,
) (*types.LegalDocument, error) {
	if !docType.IsValid() {
		return nil, types.ErrUnknownDocumentType
	}
	return s.model.GetByVersion(ctx, docType, version)
}

// List returns the publish history of a document type, newest first.
func (s *DocumentService) List(ctx context.Context, docType enum.DocumentType) ([]*types.LegalDocument, error) {
	if !docType.IsValid() {
		return nil, types.ErrUnknownDocumentType
	}
	return s.model.List(ctx, docType)
}

// MaterialChangeSince reports whether a material change was published after the accepted version.
func (s *DocumentService) MaterialChangeSince(
	ctx context.Context, docType enum.DocumentType, acceptedVersion string,
) (bool, error) {
	history, err := s.List(ctx, docType)
	if err != nil {
		return false, err
	}

	var active *types.LegalDocument
	for _, doc := range history {
		if doc.IsActive {
			active = doc
			break
		}
	}

	return types.MaterialChangeSince(history, acceptedVersion, active), nil
}

// Seed publishes the initial version of every document type that has no active document.
// Types that are already active are left untouched, so Seed can run on every deploy.
func (s *DocumentService) Seed(
	ctx context.Context, contents map[enum.DocumentType]string, createdBy string,
) ([]*types.LegalDocument, error) {
	var seeded []*types.LegalDocument

	for _, docType := range enum.DocumentTypes {
		_, err := s.model.GetActive(ctx, docType)
		if err == nil {
			continue
		}
		if !errors.Is(err, types.ErrNoActiveDocument) {
			return nil, err
		}

		result, err := s.Publish(ctx, &types.PublishRequest{
			DocumentType:   docType,
			Version:        SeedVersion,
			Content:        contents[docType],
			EffectiveDate:  s.now(),
			MaterialChange: true,
			ChangesSummary: "Initial version",
			CreatedBy:      createdBy,
		})
		if err != nil {
			// Another process seeded the same type first
			if errors.Is(err, types.ErrDuplicateVersion) || errors.Is(err, types.ErrVersionNotNewer) {
				continue
			}
			return nil, fmt.Errorf("failed to seed %s: %w", docType, err)
		}

		seeded = append(seeded, result.Document)
	}

	return seeded, nil
}

// RecordView appends a document view event. userID may be empty for anonymous visitors.
func (s *DocumentService) RecordView(
	ctx context.Context, userID string, docType enum.DocumentType, version string, rc types.RequestContext,
) (*types.AuditEvent, error) {
	if !docType.IsValid() {
		return nil, types.ErrUnknownDocumentType
	}

	if _, err := s.model.GetByVersion(ctx, docType, version); err != nil {
		return nil, err
	}

	event := types.NewAuditEvent(docType.ViewedEvent(), userID, s.now(), rc)
	event.DocumentVersion = version
	event.ActionTaken = "viewed"
	event.EventData["documentType"] = docType.String()

	if err := s.audit.Append(ctx, event); err != nil {
		return nil, err
	}

	return event, nil
}
