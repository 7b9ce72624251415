package enum

import "fmt"

// VerificationType describes how a user's age was established.
type VerificationType string

const (
	VerificationTypeSelfReported       VerificationType = "self_reported"
	VerificationTypeParentVerified     VerificationType = "parent_verified"
	VerificationTypeIDVerified         VerificationType = "id_verified"
	VerificationTypeCreditCardVerified VerificationType = "credit_card_verified"
)

func (t VerificationType) String() string {
	return string(t)
}

// IsValid reports whether t is a known verification type.
func (t VerificationType) IsValid() bool {
	switch t {
	case VerificationTypeSelfReported, VerificationTypeParentVerified,
		VerificationTypeIDVerified, VerificationTypeCreditCardVerified:
		return true
	}

	return false
}

// ParseVerificationType converts a string to a VerificationType.
// An empty string maps to self-reported.
func ParseVerificationType(s string) (VerificationType, error) {
	if s == "" {
		return VerificationTypeSelfReported, nil
	}

	t := VerificationType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: verification type %q", ErrInvalidValue, s)
	}

	return t, nil
}
