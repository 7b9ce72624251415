// Package gate computes the legal gating decision for a user.
package gate

import (
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
)

// Inputs is everything the gate needs to decide for one user.
type Inputs struct {
	UserID     string
	Active     *types.ActiveVersions
	Age        *types.AgeVerification
	Consent    *types.ConsentRecord
	Revocation *types.AuditEvent
	// History holds the publish history of each document type whose accepted
	// version differs from the active one.
	History map[enum.DocumentType][]*types.LegalDocument
}

// Revoked reports whether the current consent was withdrawn after it was given.
func (in *Inputs) Revoked() bool {
	return in.Consent != nil && in.Revocation != nil && in.Revocation.Timestamp.After(in.Consent.AcceptedAt)
}

// StaleTypes returns the document types whose accepted version is not the active one.
func (in *Inputs) StaleTypes() []enum.DocumentType {
	if in.Consent == nil || in.Active == nil {
		return nil
	}

	var stale []enum.DocumentType
	for _, docType := range enum.DocumentTypes {
		active := in.Active.Of(docType)
		if active == nil || in.Consent.VersionOf(docType) != active.Version {
			stale = append(stale, docType)
		}
	}

	return stale
}

// Decide computes the consent status from gathered inputs. It never performs I/O.
//
// Age verification is checked first and terms are only evaluated once it is
// satisfied. A user with no consent, or whose consent was revoked, needs first
// time acceptance. A user whose accepted version of a document type was
// superseded by a material change needs re-acceptance of that type.
func Decide(in Inputs) *types.ConsentStatus {
	if in.UserID == "" {
		return types.FailClosedStatus()
	}

	status := &types.ConsentStatus{}
	if in.Active != nil {
		if in.Active.Terms != nil {
			status.ActiveTermsVersion = in.Active.Terms.Version
		}
		if in.Active.Privacy != nil {
			status.ActivePrivacyVersion = in.Active.Privacy.Version
		}
	}

	if in.Age != nil {
		status.IsMinor = in.Age.IsMinor
		status.RequiresParentalConsent = in.Age.RequiresParentalConsent
	}

	if in.Age == nil || in.Age.NeedsReverification {
		status.NeedsAgeVerification = true
		return status
	}

	if in.Consent == nil || in.Revoked() {
		status.NeedsTermsAcceptance = true
		status.PendingDocuments = append([]enum.DocumentType(nil), enum.DocumentTypes...)
		return status
	}

	for _, docType := range in.StaleTypes() {
		var active *types.LegalDocument
		if in.Active != nil {
			active = in.Active.Of(docType)
		}

		if types.MaterialChangeSince(in.History[docType], in.Consent.VersionOf(docType), active) {
			status.PendingDocuments = append(status.PendingDocuments, docType)
		}
	}
	status.NeedsReacceptance = len(status.PendingDocuments) > 0

	return status
}
