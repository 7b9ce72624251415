package gate_test

import (
	"testing"
	"time"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/robalyx/legalgate/internal/gate"
	"github.com/stretchr/testify/assert"
)

func doc(docType enum.DocumentType, version string, material bool) *types.LegalDocument {
	return &types.LegalDocument{DocumentType: docType, Version: version, MaterialChange: material, IsActive: true}
}

func TestDecide(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	terms1 := doc(enum.DocumentTypeTerms, "1.0.0", true)
	terms11 := doc(enum.DocumentTypeTerms, "1.1.0", false)
	terms2 := doc(enum.DocumentTypeTerms, "2.0.0", true)
	privacy1 := doc(enum.DocumentTypePrivacy, "1.0.0", true)
	privacy2 := doc(enum.DocumentTypePrivacy, "2.0.0", true)

	adult := &types.AgeVerification{AgeAtVerification: 25}
	minor := &types.AgeVerification{AgeAtVerification: 14, IsMinor: true, RequiresParentalConsent: true}
	consent := &types.ConsentRecord{TermsVersion: "1.0.0", PrivacyPolicyVersion: "1.0.0", AcceptedAt: now}

	tests := []struct {
		name string
		in   gate.Inputs
		want types.ConsentStatus
	}{
		{
			name: "unresolved principal fails closed",
			in:   gate.Inputs{},
			want: types.ConsentStatus{NeedsAgeVerification: true},
		},
		{
			name: "never verified",
			in: gate.Inputs{
				UserID: "u",
				Active: &types.ActiveVersions{Terms: terms1, Privacy: privacy1},
			},
			want: types.ConsentStatus{
				NeedsAgeVerification: true,
				ActiveTermsVersion:   "1.0.0",
				ActivePrivacyVersion: "1.0.0",
			},
		},
		{
			name: "pending reverification hides terms flags",
			in: gate.Inputs{
				UserID: "u",
				Active: &types.ActiveVersions{Terms: terms1, Privacy: privacy1},
				Age:    &types.AgeVerification{IsMinor: true, NeedsReverification: true},
			},
			want: types.ConsentStatus{
				NeedsAgeVerification: true,
				IsMinor:              true,
				ActiveTermsVersion:   "1.0.0",
				ActivePrivacyVersion: "1.0.0",
			},
		},
		{
			name: "verified without consent",
			in: gate.Inputs{
				UserID: "u",
				Active: &types.ActiveVersions{Terms: terms1, Privacy: privacy1},
				Age:    adult,
			},
			want: types.ConsentStatus{
				NeedsTermsAcceptance: true,
				PendingDocuments:     []enum.DocumentType{enum.DocumentTypeTerms, enum.DocumentTypePrivacy},
				ActiveTermsVersion:   "1.0.0",
				ActivePrivacyVersion: "1.0.0",
			},
		},
		{
			name: "consented minor",
			in: gate.Inputs{
				UserID:  "u",
				Active:  &types.ActiveVersions{Terms: terms1, Privacy: privacy1},
				Age:     minor,
				Consent: consent,
			},
			want: types.ConsentStatus{
				IsMinor:                 true,
				RequiresParentalConsent: true,
				ActiveTermsVersion:      "1.0.0",
				ActivePrivacyVersion:    "1.0.0",
			},
		},
		{
			name: "non material bump does not re-gate",
			in: gate.Inputs{
				UserID:  "u",
				Active:  &types.ActiveVersions{Terms: terms11, Privacy: privacy1},
				Age:     adult,
				Consent: consent,
				History: map[enum.DocumentType][]*types.LegalDocument{
					enum.DocumentTypeTerms: {terms11, terms1},
				},
			},
			want: types.ConsentStatus{ActiveTermsVersion: "1.1.0", ActivePrivacyVersion: "1.0.0"},
		},
		{
			name: "material bump needs reacceptance",
			in: gate.Inputs{
				UserID:  "u",
				Active:  &types.ActiveVersions{Terms: terms2, Privacy: privacy1},
				Age:     adult,
				Consent: consent,
				History: map[enum.DocumentType][]*types.LegalDocument{
					enum.DocumentTypeTerms: {terms2, terms1},
				},
			},
			want: types.ConsentStatus{
				NeedsReacceptance:    true,
				PendingDocuments:     []enum.DocumentType{enum.DocumentTypeTerms},
				ActiveTermsVersion:   "2.0.0",
				ActivePrivacyVersion: "1.0.0",
			},
		},
		{
			name: "both types pending independently",
			in: gate.Inputs{
				UserID:  "u",
				Active:  &types.ActiveVersions{Terms: terms2, Privacy: privacy2},
				Age:     adult,
				Consent: consent,
				History: map[enum.DocumentType][]*types.LegalDocument{
					enum.DocumentTypeTerms:   {terms2, terms1},
					enum.DocumentTypePrivacy: {privacy2, privacy1},
				},
			},
			want: types.ConsentStatus{
				NeedsReacceptance:    true,
				PendingDocuments:     []enum.DocumentType{enum.DocumentTypeTerms, enum.DocumentTypePrivacy},
				ActiveTermsVersion:   "2.0.0",
				ActivePrivacyVersion: "2.0.0",
			},
		},
		{
			name: "revocation after consent needs acceptance",
			in: gate.Inputs{
				UserID:     "u",
				Active:     &types.ActiveVersions{Terms: terms1, Privacy: privacy1},
				Age:        adult,
				Consent:    consent,
				Revocation: &types.AuditEvent{Timestamp: now.Add(time.Minute)},
			},
			want: types.ConsentStatus{
				NeedsTermsAcceptance: true,
				PendingDocuments:     []enum.DocumentType{enum.DocumentTypeTerms, enum.DocumentTypePrivacy},
				ActiveTermsVersion:   "1.0.0",
				ActivePrivacyVersion: "1.0.0",
			},
		},
		{
			name: "revocation before consent is ignored",
			in: gate.Inputs{
				UserID:     "u",
				Active:     &types.ActiveVersions{Terms: terms1, Privacy: privacy1},
				Age:        adult,
				Consent:    consent,
				Revocation: &types.AuditEvent{Timestamp: now.Add(-time.Minute)},
			},
			want: types.ConsentStatus{ActiveTermsVersion: "1.0.0", ActivePrivacyVersion: "1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := gate.Decide(tt.in)
			assert.Equal(t, tt.want, *got)
			assert.False(t, got.NeedsTermsAcceptance && got.NeedsReacceptance)
		})
	}
}
