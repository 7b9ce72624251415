package database

import (
	"github.com/robalyx/legalgate/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	document *models.DocumentModel
	age      *models.AgeModel
	consent  *models.ConsentModel
	audit    *models.AuditModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		document: models.NewDocument(db, logger),
		age:      models.NewAge(db, logger),
		consent:  models.NewConsent(db, logger),
		audit:    models.NewAudit(db, logger),
	}
}

// Document returns the legal document model repository.
func (r *Repository) Document() *models.DocumentModel {
	return r.document
}

// Age returns the age verification model repository.
func (r *Repository) Age() *models.AgeModel {
	return r.age
}

// Consent returns the consent model repository.
func (r *Repository) Consent() *models.ConsentModel {
	return r.consent
}

// Audit returns the audit model repository.
func (r *Repository) Audit() *models.AuditModel {
	return r.audit
}
