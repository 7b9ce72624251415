package enum

import "fmt"

// AuditEventType represents a legally relevant action recorded in the audit log.
type AuditEventType string

const (
	// AuditEventAll matches any event type in queries.
	AuditEventAll AuditEventType = ""

	// AuditEventTermsViewed tracks when a user is shown the Terms of Service.
	AuditEventTermsViewed AuditEventType = "terms_viewed"
	// AuditEventTermsAccepted tracks a consent record being written.
	AuditEventTermsAccepted AuditEventType = "terms_accepted"
	// AuditEventTermsRejected tracks a user declining a document.
	AuditEventTermsRejected AuditEventType = "terms_rejected"
	// AuditEventPrivacyViewed tracks when a user is shown the Privacy Policy.
	AuditEventPrivacyViewed AuditEventType = "privacy_viewed"
	// AuditEventAgeVerified tracks an age verification attempt.
	AuditEventAgeVerified AuditEventType = "age_verified"
	// AuditEventConsentRevoked tracks a user withdrawing consent.
	AuditEventConsentRevoked AuditEventType = "consent_revoked"
	// AuditEventDataDeletionRequested tracks a data deletion request.
	AuditEventDataDeletionRequested AuditEventType = "data_deletion_requested"
	// AuditEventOptOutRecorded tracks marketing or data sale opt-outs.
	AuditEventOptOutRecorded AuditEventType = "opt_out_recorded"
	// AuditEventVersionUpdated tracks a new document version being published.
	AuditEventVersionUpdated AuditEventType = "version_updated"
	// AuditEventReacceptanceRequired tracks a user being gated by a material change.
	AuditEventReacceptanceRequired AuditEventType = "re_acceptance_required"
	// AuditEventReacceptanceCompleted tracks a user accepting a superseding version pair.
	AuditEventReacceptanceCompleted AuditEventType = "re_acceptance_completed"
)

func (t AuditEventType) String() string {
	return string(t)
}

// IsValid reports whether t is a concrete, known event type.
func (t AuditEventType) IsValid() bool {
	switch t {
	case AuditEventTermsViewed, AuditEventTermsAccepted, AuditEventTermsRejected,
		AuditEventPrivacyViewed, AuditEventAgeVerified, AuditEventConsentRevoked,
		AuditEventDataDeletionRequested, AuditEventOptOutRecorded, AuditEventVersionUpdated,
		AuditEventReacceptanceRequired, AuditEventReacceptanceCompleted:
		return true
	case AuditEventAll:
	}

	return false
}

// ParseAuditEventType converts a string to an AuditEventType. Empty matches all types.
func ParseAuditEventType(s string) (AuditEventType, error) {
	t := AuditEventType(s)
	if t != AuditEventAll && !t.IsValid() {
		return "", fmt.Errorf("%w: audit event type %q", ErrInvalidValue, s)
	}

	return t, nil
}
