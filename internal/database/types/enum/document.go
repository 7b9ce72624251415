package enum

import (
	"errors"
	"fmt"
)

// ErrInvalidValue is returned when parsing an unknown enum value.
var ErrInvalidValue = errors.New("invalid enum value")

// DocumentType identifies a kind of legal document.
type DocumentType string

const (
	// DocumentTypeTerms is the Terms of Service.
	DocumentTypeTerms DocumentType = "terms"
	// DocumentTypePrivacy is the Privacy Policy.
	DocumentTypePrivacy DocumentType = "privacy"
)

// DocumentTypes lists every document type a user has to accept.
var DocumentTypes = []DocumentType{DocumentTypeTerms, DocumentTypePrivacy} //nolint:gochecknoglobals // -

func (t DocumentType) String() string {
	return string(t)
}

// IsValid reports whether t is a known document type.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeTerms, DocumentTypePrivacy:
		return true
	}

	return false
}

// ViewedEvent returns the audit event type recorded when this document is displayed.
func (t DocumentType) ViewedEvent() AuditEventType {
	if t == DocumentTypePrivacy {
		return AuditEventPrivacyViewed
	}

	return AuditEventTermsViewed
}

// ParseDocumentType converts a string to a DocumentType.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: document type %q", ErrInvalidValue, s)
	}

	return t, nil
}
