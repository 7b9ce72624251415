package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/robalyx/legalgate/internal/export/types"
)

const (
	// EventsFile holds the exported audit events.
	EventsFile = "audit_events.csv"
	// ConsentsFile holds the exported consent records.
	ConsentsFile = "consent_records.csv"
)

var (
	eventHeader = []string{
		"sequence", "event_id", "user_hash", "event_type", "event_timestamp",
		"document_version", "previous_version", "action_taken", "event_data",
	}
	consentHeader = []string{
		"id", "user_hash", "terms_version", "privacy_policy_version", "accepted_at",
		"consent_method", "country", "region", "age_verified", "is_minor",
		"requires_parental_consent", "data_processing_consent", "marketing_consent",
		"data_sale_opt_out", "acceptance_checksum", "checksum_valid",
	}
)

// Exporter writes an evidence batch as csv files.
type Exporter struct {
	outDir string
}

// New creates a new csv exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export writes audit events and consent records to separate csv files.
func (e *Exporter) Export(batch *types.Batch) error {
	events := make([][]string, 0, len(batch.Events))
	for _, event := range batch.Events {
		events = append(events, []string{
			strconv.FormatInt(event.Sequence, 10),
			event.EventID,
			event.UserHash,
			event.EventType,
			event.Timestamp,
			event.DocumentVersion,
			event.PreviousVersion,
			event.ActionTaken,
			event.EventData,
		})
	}

	if err := e.writeFile(EventsFile, eventHeader, events); err != nil {
		return fmt.Errorf("failed to export audit events: %w", err)
	}

	consents := make([][]string, 0, len(batch.Consents))
	for _, record := range batch.Consents {
		consents = append(consents, []string{
			record.ID,
			record.UserHash,
			record.TermsVersion,
			record.PrivacyPolicyVersion,
			record.AcceptedAt,
			record.ConsentMethod,
			record.Country,
			record.Region,
			strconv.FormatBool(record.AgeVerified),
			strconv.FormatBool(record.IsMinor),
			strconv.FormatBool(record.RequiresParentalConsent),
			strconv.FormatBool(record.DataProcessingConsent),
			optionalBool(record.MarketingConsent),
			optionalBool(record.DataSaleOptOut),
			record.AcceptanceChecksum,
			strconv.FormatBool(record.ChecksumValid),
		})
	}

	if err := e.writeFile(ConsentsFile, consentHeader, consents); err != nil {
		return fmt.Errorf("failed to export consent records: %w", err)
	}

	return nil
}

// writeFile replaces filename with header followed by rows.
func (e *Exporter) writeFile(filename string, header []string, rows [][]string) (err error) {
	path := filepath.Join(e.outDir, filename)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove existing file %s: %w", filename, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	writer := csv.NewWriter(file)

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}

	return nil
}

// optionalBool renders an unset preference as an empty cell.
func optionalBool(v *bool) string {
	if v == nil {
		return ""
	}

	return strconv.FormatBool(*v)
}
