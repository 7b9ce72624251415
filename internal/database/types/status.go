package types

import "github.com/robalyx/legalgate/internal/database/types/enum"

// ConsentStatus is the derived gating decision for a user. It is never persisted.
type ConsentStatus struct {
	NeedsAgeVerification    bool                `json:"needsAgeVerification"`
	NeedsTermsAcceptance    bool                `json:"needsTermsAcceptance"`
	NeedsReacceptance       bool                `json:"needsReacceptance"`
	IsMinor                 bool                `json:"isMinor"`
	RequiresParentalConsent bool                `json:"requiresParentalConsent"`
	PendingDocuments        []enum.DocumentType `json:"pendingDocuments,omitempty"`
	ActiveTermsVersion      string              `json:"activeTermsVersion,omitempty"`
	ActivePrivacyVersion    string              `json:"activePrivacyVersion,omitempty"`
}

// Admitted reports whether the user may proceed past the legal gate.
func (s *ConsentStatus) Admitted() bool {
	return !s.NeedsAgeVerification && !s.NeedsTermsAcceptance && !s.NeedsReacceptance
}

// FailClosedStatus is returned when the principal cannot be resolved.
func FailClosedStatus() *ConsentStatus {
	return &ConsentStatus{NeedsAgeVerification: true}
}
