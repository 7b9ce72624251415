// Package handler implements the REST endpoints of the legal gate.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/robalyx/legalgate/internal/rest/middleware/requestinfo"
	"github.com/robalyx/legalgate/internal/rest/respond"
	"github.com/uptrace/bunrouter"
)

// Documents is the document registry as seen by the handlers.
type Documents interface {
	Publish(ctx context.Context, req *types.PublishRequest) (*types.PublishResult, error)
	GetActive(ctx context.Context, docType enum.DocumentType) (*types.LegalDocument, error)
	GetByVersion(ctx context.Context, docType enum.DocumentType, version string) (*types.LegalDocument, error)
	List(ctx context.Context, docType enum.DocumentType) ([]*types.LegalDocument, error)
	RecordView(
		ctx context.Context, userID string, docType enum.DocumentType, version string, rc types.RequestContext,
	) (*types.AuditEvent, error)
}

// Ages is the age verification registry as seen by the handlers.
type Ages interface {
	RecordVerification(ctx context.Context, req *types.VerificationRequest) (*types.AgeVerification, error)
	MarkForReverification(ctx context.Context, userID string, nextVerificationDate time.Time) error
	GetCurrent(ctx context.Context, userID string) (*types.AgeVerification, error)
}

// Consents is the consent ledger as seen by the handlers.
type Consents interface {
	RecordConsent(ctx context.Context, req *types.ConsentRequest) (*types.ConsentResult, error)
	History(ctx context.Context, userID string) ([]*types.ConsentRecord, error)
	Revoke(ctx context.Context, userID, reason string, rc types.RequestContext) (*types.AuditEvent, error)
	Reject(
		ctx context.Context, userID string, docType enum.DocumentType, version, reason string, rc types.RequestContext,
	) (*types.AuditEvent, error)
	RecordOptOut(ctx context.Context, userID string, kind enum.OptOutKind, rc types.RequestContext) (*types.AuditEvent, error)
	RequestDataDeletion(ctx context.Context, userID, reason string, rc types.RequestContext) (*types.AuditEvent, error)
}

// Audit is the audit log as seen by the handlers.
type Audit interface {
	Query(
		ctx context.Context, filter types.AuditFilter, cursor *types.AuditCursor, limit int,
	) ([]*types.AuditEvent, *types.AuditCursor, error)
	RecordReacceptanceRequired(
		ctx context.Context, userID string, status *types.ConsentStatus, rc types.RequestContext,
	) (bool, error)
}

// Evaluator computes the gate decision for a user.
type Evaluator interface {
	Evaluate(ctx context.Context, userID string) (*types.ConsentStatus, error)
}

// AdminCheck reports whether a request carries operator credentials.
type AdminCheck func(r *http.Request) bool

// targetUser returns the :id route parameter if the caller is that user or an operator.
func targetUser(req bunrouter.Request, isAdmin AdminCheck) (string, error) {
	userID := req.Param("id")
	if userID == "" {
		return "", types.ErrInvalidUserID
	}

	if requestinfo.PrincipalFromContext(req.Context()) == userID {
		return userID, nil
	}
	if isAdmin != nil && isAdmin(req.Request) {
		return userID, nil
	}

	return "", respond.ErrForbidden
}

// documentType parses the :type route parameter.
func documentType(req bunrouter.Request) (enum.DocumentType, error) {
	docType, err := enum.ParseDocumentType(req.Param("type"))
	if err != nil {
		return "", types.ErrUnknownDocumentType
	}
	return docType, nil
}
