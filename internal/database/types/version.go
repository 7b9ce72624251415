package types

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonicalVersion returns the version in the "vMAJOR.MINOR.PATCH" form semver expects.
func canonicalVersion(version string) string {
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return version
}

// IsValidVersion reports whether version is a semantic version, with or without a leading "v".
func IsValidVersion(version string) bool {
	return version != "" && semver.IsValid(canonicalVersion(version))
}

// CompareVersions compares two document versions by semantic version ordering.
// Invalid versions sort before all valid ones.
func CompareVersions(a, b string) int {
	return semver.Compare(canonicalVersion(a), canonicalVersion(b))
}

// MaterialChangeSince reports whether any version in history newer than accepted
// and no newer than the active version is marked as a material change.
// A version missing from history counts as material.
func MaterialChangeSince(history []*LegalDocument, accepted string, active *LegalDocument) bool {
	if active == nil {
		return true
	}

	found := false
	for _, doc := range history {
		if doc.Version == accepted {
			found = true
			break
		}
	}
	if !found {
		return true
	}

	for _, doc := range history {
		if CompareVersions(doc.Version, accepted) > 0 &&
			CompareVersions(doc.Version, active.Version) <= 0 &&
			doc.MaterialChange {
			return true
		}
	}

	return false
}
