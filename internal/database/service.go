package database

import (
	"github.com/robalyx/legalgate/internal/database/service"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	document *service.DocumentService
	age      *service.AgeService
	consent  *service.ConsentService
	audit    *service.AuditService
}

// NewService creates a new service instance with all services.
func NewService(db *bun.DB, repository *Repository, cfg *config.CommonConfig, logger *zap.Logger) *Service {
	documentModel := repository.Document()
	ageModel := repository.Age()
	consentModel := repository.Consent()
	auditModel := repository.Audit()

	return &Service{
		document: service.NewDocument(db, documentModel, auditModel, logger),
		age:      service.NewAge(db, ageModel, auditModel, cfg.Policy, logger),
		consent: service.NewConsent(
			db, consentModel, ageModel, documentModel, auditModel,
			cfg.Policy, cfg.Consent.DedupWindowDuration(), logger,
		),
		audit: service.NewAudit(db, auditModel, logger),
	}
}

// Document returns the document registry service.
func (s *Service) Document() *service.DocumentService {
	return s.document
}

// Age returns the age verification service.
func (s *Service) Age() *service.AgeService {
	return s.age
}

// Consent returns the consent ledger service.
func (s *Service) Consent() *service.ConsentService {
	return s.consent
}

// Audit returns the audit log service.
func (s *Service) Audit() *service.AuditService {
	return s.audit
}
