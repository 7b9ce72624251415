package enum

import "fmt"

// ConsentMethod describes how a consent was captured.
type ConsentMethod string

const (
	// ConsentMethodClickwrap is an explicit checkbox/button acceptance.
	ConsentMethodClickwrap ConsentMethod = "clickwrap"
	// ConsentMethodBrowsewrap is acceptance by continued use.
	ConsentMethodBrowsewrap ConsentMethod = "browsewrap"
	// ConsentMethodAPI is acceptance submitted by a trusted integration.
	ConsentMethodAPI ConsentMethod = "api"
)

func (m ConsentMethod) String() string {
	return string(m)
}

// IsValid reports whether m is a known consent method.
func (m ConsentMethod) IsValid() bool {
	switch m {
	case ConsentMethodClickwrap, ConsentMethodBrowsewrap, ConsentMethodAPI:
		return true
	}

	return false
}

// RequiresExposure reports whether the minimum reading exposure applies to this method.
func (m ConsentMethod) RequiresExposure() bool {
	return m == ConsentMethodClickwrap
}

// ParseConsentMethod converts a string to a ConsentMethod. Empty defaults to clickwrap.
func ParseConsentMethod(s string) (ConsentMethod, error) {
	if s == "" {
		return ConsentMethodClickwrap, nil
	}

	m := ConsentMethod(s)
	if !m.IsValid() {
		return "", fmt.Errorf("%w: consent method %q", ErrInvalidValue, s)
	}

	return m, nil
}

// OptOutKind names the preference a user opted out of.
type OptOutKind string

const (
	OptOutKindMarketing OptOutKind = "marketing"
	OptOutKindDataSale  OptOutKind = "data_sale"
)

// IsValid reports whether k is a known opt-out kind.
func (k OptOutKind) IsValid() bool {
	return k == OptOutKindMarketing || k == OptOutKindDataSale
}
