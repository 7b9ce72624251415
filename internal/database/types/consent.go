package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database/types/enum"
)

// ConsentRecord is the immutable evidence of a user accepting a terms/privacy version pair.
// Records are never updated or deleted; the latest by AcceptedAt is the current consent.
type ConsentRecord struct {
	ID                      uuid.UUID          `bun:",pk,type:uuid" json:"id"`
	UserID                  string             `bun:",notnull"      json:"userId"`
	TermsVersion            string             `bun:",notnull"      json:"termsVersion"`
	PrivacyPolicyVersion    string             `bun:",notnull"      json:"privacyPolicyVersion"`
	AcceptedAt              time.Time          `bun:",notnull"      json:"acceptedAt"`
	IPAddress               string             `bun:",notnull"      json:"ipAddress"`
	UserAgent               string             `bun:",notnull"      json:"userAgent"`
	Country                 string             `bun:",nullzero"     json:"country,omitempty"`
	Region                  string             `bun:",nullzero"     json:"region,omitempty"`
	AgeVerified             bool               `bun:",notnull"      json:"ageVerified"`
	IsMinor                 bool               `bun:",notnull"      json:"isMinor"`
	RequiresParentalConsent bool               `bun:",notnull"      json:"requiresParentalConsent"`
	ConsentMethod           enum.ConsentMethod `bun:",notnull"      json:"consentMethod"`
	ScrollDepthPercent      *int               `bun:""              json:"scrollDepthPercent,omitempty"`
	TimeSpentSeconds        *int               `bun:""              json:"timeSpentSeconds,omitempty"`
	MarketingConsent        *bool              `bun:""              json:"marketingConsent,omitempty"`
	DataProcessingConsent   bool               `bun:",notnull"      json:"dataProcessingConsent"`
	DataSaleOptOut          *bool              `bun:""              json:"dataSaleOptOut,omitempty"`
	AcceptanceChecksum      string             `bun:",nullzero"     json:"acceptanceChecksum,omitempty"`
	SessionID               string             `bun:",nullzero"     json:"sessionId,omitempty"`
}

// SameVersions reports whether the record covers the given version pair.
func (c *ConsentRecord) SameVersions(termsVersion, privacyVersion string) bool {
	return c.TermsVersion == termsVersion && c.PrivacyPolicyVersion == privacyVersion
}

// VersionOf returns the accepted version for a document type.
func (c *ConsentRecord) VersionOf(docType enum.DocumentType) string {
	if docType == enum.DocumentTypePrivacy {
		return c.PrivacyPolicyVersion
	}

	return c.TermsVersion
}

// ConsentMetadata is the acceptance context captured by the acceptance view.
type ConsentMetadata struct {
	IPAddress          string
	UserAgent          string
	Country            string
	Region             string
	SessionID          string
	ConsentMethod      enum.ConsentMethod
	ScrollDepthPercent *int
	TimeSpentSeconds   *int
	MarketingConsent   *bool
	DataSaleOptOut     *bool
	// DataProcessingConsent must be explicitly provided; nil is treated as not given.
	DataProcessingConsent *bool
	TermsAccepted         bool
	PrivacyAccepted       bool
}

// ConsentRequest is a consent submission for a specific version pair.
type ConsentRequest struct {
	UserID         string
	TermsVersion   string
	PrivacyVersion string
	Metadata       ConsentMetadata
}

// ConsentResult describes the outcome of a consent submission.
type ConsentResult struct {
	Record       *ConsentRecord
	Created      bool // False when the submission collapsed into a recent identical record
	Reacceptance bool // True when this record supersedes a different version pair
}
