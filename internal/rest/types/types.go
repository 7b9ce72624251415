package types

import (
	"time"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error          string             `json:"error"`
	Message        string             `json:"message"`
	Fields         []types.FieldError `json:"fields,omitempty"`
	SupportContact string             `json:"supportContact,omitempty"`
	Dismissable    *bool              `json:"dismissable,omitempty"`
}

// GateResponse is returned by protected routes when the user must complete a legal step first.
type GateResponse struct {
	Error            string              `json:"error"`
	Redirect         string              `json:"redirect"`
	Reacceptance     bool                `json:"reacceptance"`
	PendingDocuments []enum.DocumentType `json:"pendingDocuments,omitempty"`
}

// PublishDocumentRequest publishes a new legal document version.
type PublishDocumentRequest struct {
	DocumentType   string     `json:"documentType"   validate:"required,oneof=terms privacy"`
	Version        string     `json:"version"        validate:"required,max=64"`
	Content        string     `json:"content"        validate:"required"`
	EffectiveDate  *time.Time `json:"effectiveDate"`
	MaterialChange bool       `json:"materialChange"`
	ChangesSummary string     `json:"changesSummary" validate:"max=4000"`
	CreatedBy      string     `json:"createdBy"      validate:"required,max=255"`
}

// PublishDocumentResponse describes a completed publish.
type PublishDocumentResponse struct {
	Document        *types.LegalDocument `json:"document"`
	PreviousVersion string               `json:"previousVersion,omitempty"`
}

// DocumentHistoryResponse lists every version of a document type.
type DocumentHistoryResponse struct {
	DocumentType enum.DocumentType      `json:"documentType"`
	Documents    []*types.LegalDocument `json:"documents"`
}

// BirthDateRequest is a date of birth entered as discrete fields.
type BirthDateRequest struct {
	Year  int `json:"year"  validate:"required"`
	Month int `json:"month" validate:"required"`
	Day   int `json:"day"   validate:"required"`
}

// AgeVerificationRequest records an age verification.
type AgeVerificationRequest struct {
	BirthDate        BirthDateRequest `json:"birthDate"        validate:"required"`
	VerificationType string           `json:"verificationType" validate:"omitempty,oneof=self_reported parent_verified id_verified credit_card_verified"`
	GuardianEmail    string           `json:"guardianEmail"    validate:"omitempty,max=254"`
}

// ReverificationRequest flags a user for re-verification.
type ReverificationRequest struct {
	NextVerificationDate *time.Time `json:"nextVerificationDate"`
}

// ConsentRequest submits acceptance of the active document versions.
type ConsentRequest struct {
	TermsVersion          string `json:"termsVersion"          validate:"required,max=64"`
	PrivacyVersion        string `json:"privacyVersion"        validate:"required,max=64"`
	TermsAccepted         bool   `json:"termsAccepted"`
	PrivacyAccepted       bool   `json:"privacyAccepted"`
	DataProcessingConsent *bool  `json:"dataProcessingConsent"`
	MarketingConsent      *bool  `json:"marketingConsent"`
	DataSaleOptOut        *bool  `json:"dataSaleOptOut"`
	ConsentMethod         string `json:"consentMethod"         validate:"omitempty,oneof=clickwrap browsewrap api"`
	ScrollDepthPercent    *int   `json:"scrollDepthPercent"    validate:"omitempty,min=0,max=100"`
	TimeSpentSeconds      *int   `json:"timeSpentSeconds"      validate:"omitempty,min=0"`
	Country               string `json:"country"               validate:"omitempty,len=2,alpha"`
	Region                string `json:"region"                validate:"omitempty,max=64"`
}

// ConsentResponse describes a recorded or absorbed consent submission.
type ConsentResponse struct {
	Record       *types.ConsentRecord `json:"record"`
	Created      bool                 `json:"created"`
	Reacceptance bool                 `json:"reacceptance"`
}

// ConsentHistoryResponse lists every consent record of a user.
type ConsentHistoryResponse struct {
	UserID  string                 `json:"userId"`
	Records []*types.ConsentRecord `json:"records"`
}

// RevocationRequest withdraws consent.
type RevocationRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// RejectionRequest declines a document version.
type RejectionRequest struct {
	DocumentType string `json:"documentType" validate:"required,oneof=terms privacy"`
	Version      string `json:"version"      validate:"required,max=64"`
	Reason       string `json:"reason"       validate:"max=1000"`
}

// OptOutRequest records a marketing or data sale opt-out.
type OptOutRequest struct {
	Kind string `json:"kind" validate:"required,oneof=marketing data_sale"`
}

// DeletionRequest asks for the user's data to be deleted.
type DeletionRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// ViewRequest records that a document version was shown to the user.
type ViewRequest struct {
	DocumentType string `json:"documentType" validate:"required,oneof=terms privacy"`
	Version      string `json:"version"      validate:"required,max=64"`
}

// EventResponse returns the audit event a user action produced.
type EventResponse struct {
	Event *types.AuditEvent `json:"event"`
}

// StatusResponse is the gate decision plus the advisory grace flag.
type StatusResponse struct {
	types.ConsentStatus

	// GraceActive means a consent was just submitted in this session. The
	// acceptance view may hold off re-prompting; it is never used to admit.
	GraceActive bool   `json:"graceActive"`
	Redirect    string `json:"redirect,omitempty"`
}

// AuditPageResponse is one page of audit events.
type AuditPageResponse struct {
	Events     []*types.AuditEvent `json:"events"`
	NextCursor string              `json:"nextCursor,omitempty"`
}
