package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database/types/enum"
)

// BirthDateLayout is the storage layout of the opaque date of birth field.
const BirthDateLayout = "2006-01-02"

// AgeVerification is a user's age verification record. The latest record by VerifiedAt is current.
// DateOfBirth is sensitive and never serialized to API responses.
type AgeVerification struct {
	ID                      uuid.UUID             `bun:",pk,type:uuid" json:"id"`
	UserID                  string                `bun:",notnull"      json:"userId"`
	DateOfBirth             string                `bun:",notnull"      json:"-"`
	AgeAtVerification       int                   `bun:",notnull"      json:"ageAtVerification"`
	VerifiedAt              time.Time             `bun:",notnull"      json:"verifiedAt"`
	VerificationType        enum.VerificationType `bun:",notnull"      json:"verificationType"`
	IsMinor                 bool                  `bun:",notnull"      json:"isMinor"`
	RequiresParentalConsent bool                  `bun:",notnull"      json:"requiresParentalConsent"`
	ParentalConsentRecorded *bool                 `bun:""              json:"parentalConsentRecorded,omitempty"`
	GuardianEmail           string                `bun:",nullzero"     json:"guardianEmail,omitempty"`
	GuardianConsentDate     time.Time             `bun:",nullzero"     json:"guardianConsentDate,omitzero"`
	GuardianIPAddress       string                `bun:",nullzero"     json:"-"`
	NeedsReverification     bool                  `bun:",notnull"      json:"needsReverification"`
	NextVerificationDate    time.Time             `bun:",nullzero"     json:"nextVerificationDate,omitzero"`
}

// AgeDecision is the policy outcome for a computed age.
type AgeDecision struct {
	Age                     int
	IsMinor                 bool
	RequiresParentalConsent bool
}

// BirthDate is a date of birth collected from discrete year, month and day inputs.
type BirthDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Time returns the birth date at midnight UTC.
func (b BirthDate) Time() time.Time {
	return time.Date(b.Year, time.Month(b.Month), b.Day, 0, 0, 0, 0, time.UTC)
}

// String returns the storage form of the birth date.
func (b BirthDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", b.Year, b.Month, b.Day)
}

// VerificationRequest holds the inputs of an age verification.
type VerificationRequest struct {
	UserID           string
	BirthDate        BirthDate
	VerificationType enum.VerificationType
	GuardianEmail    string
	IPAddress        string
	UserAgent        string
	SessionID        string
}
