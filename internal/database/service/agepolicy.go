package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/setup/config"
	"golang.org/x/text/unicode/norm"
)

// maxPlausibleAge bounds birth dates that are accepted as real input.
const maxPlausibleAge = 120

var emailValidator = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals // -

// ValidateBirthDate checks that a birth date is a real calendar date in a plausible range.
func ValidateBirthDate(b types.BirthDate, now time.Time) error {
	verr := &types.ValidationError{Err: types.ErrInvalidBirthDate}

	switch {
	case b.Month < 1 || b.Month > 12:
		verr.Add("birthDate.month", "must be between 1 and 12")
	case b.Day < 1 || b.Day > 31:
		verr.Add("birthDate.day", "must be between 1 and 31")
	default:
		t := b.Time()
		if t.Year() != b.Year || int(t.Month()) != b.Month || t.Day() != b.Day {
			verr.Add("birthDate.day", "is not a valid day for the given month")
		} else if t.After(now) {
			verr.Add("birthDate", "cannot be in the future")
		}
	}

	if b.Year < now.Year()-maxPlausibleAge || b.Year > now.Year() {
		verr.Add("birthDate.year", fmt.Sprintf("must be between %d and %d", now.Year()-maxPlausibleAge, now.Year()))
	}

	return verr.OrNil()
}

// ComputeAge returns the whole years elapsed between birth and at.
// A Feb 29 birthday advances on Mar 1 in non-leap years.
func ComputeAge(birth, at time.Time) int {
	birth = birth.UTC()
	at = at.UTC()

	age := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		age--
	}

	return age
}

// ClassifyAge applies the platform age policy to a computed age.
// Ages below the minimum fail with ErrAgeRestriction.
func ClassifyAge(age int, policy config.Policy) (types.AgeDecision, error) {
	if age < policy.MinimumAge {
		return types.AgeDecision{Age: age}, types.ErrAgeRestriction
	}

	return types.AgeDecision{
		Age:                     age,
		IsMinor:                 age < policy.AdultAge,
		RequiresParentalConsent: age < policy.ParentalConsentAge,
	}, nil
}

// NextVerificationDate returns when a verification should be refreshed.
// Minors are refreshed on the birthday that makes them adults. Adults are
// refreshed after the configured interval, or never when it is zero.
func NextVerificationDate(
	birth, verifiedAt time.Time, decision types.AgeDecision, policy config.Policy,
) time.Time {
	if decision.IsMinor {
		return birth.AddDate(policy.AdultAge, 0, 0)
	}

	if policy.ReverificationIntervalDays > 0 {
		return verifiedAt.AddDate(0, 0, policy.ReverificationIntervalDays)
	}

	return time.Time{}
}

// NormalizeGuardianEmail returns the canonical form of a guardian email or a validation error.
func NormalizeGuardianEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(norm.NFKC.String(email)))
	if normalized == "" {
		return "", nil
	}

	if err := emailValidator.Var(normalized, "email"); err != nil {
		return "", types.NewValidationError("guardianEmail", "must be a valid email address")
	}

	return normalized, nil
}
