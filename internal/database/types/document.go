package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database/types/enum"
)

// LegalDocument is one published version of a Terms of Service or Privacy Policy.
// At most one version per document type is active; documents are never deleted.
type LegalDocument struct {
	ID             uuid.UUID         `bun:",pk,type:uuid"   json:"id"`
	DocumentType   enum.DocumentType `bun:",notnull"        json:"documentType"`
	Version        string            `bun:",notnull"        json:"version"`
	Content        string            `bun:",notnull"        json:"content"`
	EffectiveDate  time.Time         `bun:",notnull"        json:"effectiveDate"`
	MaterialChange bool              `bun:",notnull"        json:"materialChange"`
	ChangesSummary string            `bun:",nullzero"       json:"changesSummary,omitempty"`
	CreatedAt      time.Time         `bun:",notnull"        json:"createdAt"`
	CreatedBy      string            `bun:",notnull"        json:"createdBy"`
	IsActive       bool              `bun:",notnull"        json:"isActive"`
}

// PublishRequest holds the fields supplied when publishing a new document version.
type PublishRequest struct {
	DocumentType   enum.DocumentType
	Version        string
	Content        string
	EffectiveDate  time.Time
	MaterialChange bool
	ChangesSummary string
	CreatedBy      string
}

// PublishResult describes the outcome of a publish.
type PublishResult struct {
	Document *LegalDocument // Newly active document
	Previous *LegalDocument // Document that was deactivated, nil for the first version
}

// ActiveVersions holds the currently active version of every document type.
type ActiveVersions struct {
	Terms   *LegalDocument
	Privacy *LegalDocument
}

// Of returns the active document for the given type.
func (a ActiveVersions) Of(docType enum.DocumentType) *LegalDocument {
	if docType == enum.DocumentTypePrivacy {
		return a.Privacy
	}

	return a.Terms
}
