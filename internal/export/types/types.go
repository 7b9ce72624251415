// Package types defines the pseudonymized rows written by evidence exports.
package types

// EventRecord is an audit event with the user id replaced by a hash.
// Client IP addresses and user agents are not exported.
type EventRecord struct {
	Sequence        int64
	EventID         string
	UserHash        string
	EventType       string
	Timestamp       string
	DocumentVersion string
	PreviousVersion string
	ActionTaken     string
	EventData       string
}

// ConsentRecord is a consent ledger entry with the user id replaced by a hash.
type ConsentRecord struct {
	ID                      string
	UserHash                string
	TermsVersion            string
	PrivacyPolicyVersion    string
	AcceptedAt              string
	ConsentMethod           string
	Country                 string
	Region                  string
	AgeVerified             bool
	IsMinor                 bool
	RequiresParentalConsent bool
	DataProcessingConsent   bool
	MarketingConsent        *bool
	DataSaleOptOut          *bool
	AcceptanceChecksum      string
	ChecksumValid           bool
}

// Batch is everything written by one export run.
type Batch struct {
	Events   []*EventRecord
	Consents []*ConsentRecord
	Metadata map[string]string
}
