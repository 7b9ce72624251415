package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database/dbretry"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// DocumentModel handles database operations for versioned legal documents.
type DocumentModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewDocument creates a new document model.
func NewDocument(db *bun.DB, logger *zap.Logger) *DocumentModel {
	return &DocumentModel{
		db:     db,
		logger: logger.Named("db_document"),
	}
}

// LockTypeWithTx serializes writers of a single document type until the transaction ends.
func (m *DocumentModel) LockTypeWithTx(ctx context.Context, tx bun.Tx, docType enum.DocumentType) error {
	return advisoryLockWithTx(ctx, tx, lockNamespaceDocument, docType.String())
}

// GetActiveWithTx returns the active document of a type using the provided transaction.
// When forUpdate is set the row stays locked until the transaction ends.
func (m *DocumentModel) GetActiveWithTx(
	ctx context.Context, tx bun.IDB, docType enum.DocumentType, forUpdate bool,
) (*types.LegalDocument, error) {
	var doc types.LegalDocument

	query := tx.NewSelect().
		Model(&doc).
		Where("document_type = ?", docType).
		Where("is_active")
	if forUpdate {
		query = query.For("UPDATE")
	}

	err := query.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", types.ErrNoActiveDocument, docType)
		}
		return nil, fmt.Errorf("failed to get active document: %w", err)
	}

	return &doc, nil
}

// GetActive returns the active document of a type.
func (m *DocumentModel) GetActive(ctx context.Context, docType enum.DocumentType) (*types.LegalDocument, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.LegalDocument, error) {
		return m.GetActiveWithTx(ctx, m.db, docType, false)
	})
}

// GetActiveVersions returns the active document of every type in a single read.
func (m *DocumentModel) GetActiveVersions(ctx context.Context) (*types.ActiveVersions, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.ActiveVersions, error) {
		var docs []*types.LegalDocument
		err := m.db.NewSelect().
			Model(&docs).
			Where("is_active").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get active documents: %w", err)
		}

		active := &types.ActiveVersions{}
		for _, doc := range docs {
			switch doc.DocumentType {
			case enum.DocumentTypeTerms:
				active.Terms = doc
			case enum.DocumentTypePrivacy:
				active.Privacy = doc
			}
		}

		return active, nil
	})
}

// GetByVersion returns a specific version of a document.
func (m *DocumentModel) GetByVersion(
	ctx context.Context, docType enum.DocumentType, version string,
) (*types.LegalDocument, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.LegalDocument, error) {
		var doc types.LegalDocument
		err := m.db.NewSelect().
			Model(&doc).
			Where("document_type = ?", docType).
			Where("version = ?", version).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s %s", types.ErrDocumentNotFound, docType, version)
			}
			return nil, fmt.Errorf("failed to get document version: %w", err)
		}

		return &doc, nil
	})
}

// ExistsWithTx checks whether a version of a document type was already published.
func (m *DocumentModel) ExistsWithTx(
	ctx context.Context, tx bun.IDB, docType enum.DocumentType, version string,
) (bool, error) {
	exists, err := tx.NewSelect().
		Model((*types.LegalDocument)(nil)).
		Where("document_type = ?", docType).
		Where("version = ?", version).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check document version: %w", err)
	}

	return exists, nil
}

// DeactivateWithTx clears the active flag of a document.
func (m *DocumentModel) DeactivateWithTx(ctx context.Context, tx bun.Tx, id uuid.UUID) error {
	_, err := tx.NewUpdate().
		Model((*types.LegalDocument)(nil)).
		Set("is_active = false").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to deactivate document: %w", err)
	}

	return nil
}

// InsertWithTx stores a new document version.
func (m *DocumentModel) InsertWithTx(ctx context.Context, tx bun.Tx, doc *types.LegalDocument) error {
	_, err := tx.NewInsert().
		Model(doc).
		Exec(ctx)
	if err != nil {
		if dbretry.IsUniqueViolation(err, "legal_documents_type_version_key") {
			return fmt.Errorf("%w: %s %s", types.ErrDuplicateVersion, doc.DocumentType, doc.Version)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	m.logger.Debug("Inserted document",
		zap.String("documentType", doc.DocumentType.String()),
		zap.String("version", doc.Version),
		zap.Bool("active", doc.IsActive))

	return nil
}

// List returns every version of a document type, newest first.
func (m *DocumentModel) List(ctx context.Context, docType enum.DocumentType) ([]*types.LegalDocument, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.LegalDocument, error) {
		var docs []*types.LegalDocument
		err := m.db.NewSelect().
			Model(&docs).
			Where("document_type = ?", docType).
			Order("created_at DESC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		return docs, nil
	})
}
