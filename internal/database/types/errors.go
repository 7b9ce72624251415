package types

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrDuplicateVersion is returned when publishing a (type, version) pair that already exists.
	ErrDuplicateVersion = errors.New("document version already exists")
	// ErrVersionNotNewer is returned when a published version does not sort after the active one.
	ErrVersionNotNewer = errors.New("document version is not newer than the active version")
	// ErrInvalidVersion is returned for versions that are not semantic versions.
	ErrInvalidVersion = errors.New("document version is not a semantic version")
	// ErrNoActiveDocument means a document type has no active version. This is a deployment error.
	ErrNoActiveDocument = errors.New("no active document for type")
	// ErrDocumentNotFound is returned when a specific document version does not exist.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrUnknownDocumentType is returned for document types outside of terms and privacy.
	ErrUnknownDocumentType = errors.New("unknown document type")

	// ErrAgeRestriction is returned when a user is below the minimum age. No record is written.
	ErrAgeRestriction = errors.New("user is below the minimum age")
	// ErrInvalidBirthDate is returned for impossible, future or implausible birth dates.
	ErrInvalidBirthDate = errors.New("invalid date of birth")
	// ErrNoAgeVerification is returned when an operation needs a current age verification.
	ErrNoAgeVerification = errors.New("user has no current age verification")

	// ErrConsentNotExplicit is returned when data processing consent was not explicitly given.
	ErrConsentNotExplicit = errors.New("data processing consent must be explicit")
	// ErrVersionMismatch is returned when a submission references versions that are no longer active.
	ErrVersionMismatch = errors.New("submitted versions do not match active documents")
	// ErrNoConsent is returned when a user has no consent record.
	ErrNoConsent = errors.New("user has no consent record")
	// ErrInvalidUserID is returned for empty principals.
	ErrInvalidUserID = errors.New("user id is required")
)

// FieldError describes one user-correctable input problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level problems. The operation was not attempted.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
	Err    error        `json:"-"` // Optional sentinel matched by errors.Is
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Unwrap returns the sentinel the validation failure was caused by, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// HasErrors reports whether any field error was recorded.
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// OrNil returns the error when it has field errors, nil otherwise.
func (e *ValidationError) OrNil() error {
	if !e.HasErrors() {
		return nil
	}

	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}

	sort.Strings(parts)

	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
