package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/robalyx/legalgate/internal/export/types"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// FileName is the name of the evidence database inside the output directory.
const FileName = "evidence.db"

const batchSize = 1000

const schema = `
CREATE TABLE export_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE audit_events (
	sequence INTEGER PRIMARY KEY,
	event_id TEXT NOT NULL,
	user_hash TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_timestamp TEXT NOT NULL,
	document_version TEXT NOT NULL,
	previous_version TEXT NOT NULL,
	action_taken TEXT NOT NULL,
	event_data TEXT NOT NULL
);
CREATE INDEX audit_events_user_hash ON audit_events (user_hash);
CREATE TABLE consent_records (
	id TEXT PRIMARY KEY,
	user_hash TEXT NOT NULL,
	terms_version TEXT NOT NULL,
	privacy_policy_version TEXT NOT NULL,
	accepted_at TEXT NOT NULL,
	consent_method TEXT NOT NULL,
	country TEXT NOT NULL,
	region TEXT NOT NULL,
	age_verified INTEGER NOT NULL,
	is_minor INTEGER NOT NULL,
	requires_parental_consent INTEGER NOT NULL,
	data_processing_consent INTEGER NOT NULL,
	marketing_consent INTEGER,
	data_sale_opt_out INTEGER,
	acceptance_checksum TEXT NOT NULL,
	checksum_valid INTEGER NOT NULL
);
CREATE INDEX consent_records_user_hash ON consent_records (user_hash);
`

// Exporter writes an evidence batch to a single SQLite database.
type Exporter struct {
	outDir string
}

// New creates a new SQLite exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export replaces the evidence database with the contents of batch.
func (e *Exporter) Export(batch *types.Batch) (err error) {
	path := filepath.Join(e.outDir, FileName)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove existing file %s: %w", FileName, err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close SQLite database: %w", closeErr)
		}
	}()

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if err := e.writeMetadata(conn, batch.Metadata); err != nil {
		return err
	}

	if err := insertBatched(conn, batch.Events, insertEvent); err != nil {
		return fmt.Errorf("failed to export audit events: %w", err)
	}

	if err := insertBatched(conn, batch.Consents, insertConsent); err != nil {
		return fmt.Errorf("failed to export consent records: %w", err)
	}

	return nil
}

func (e *Exporter) writeMetadata(conn *sqlite.Conn, metadata map[string]string) (err error) {
	defer sqlitex.Save(conn)(&err)

	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		err := sqlitex.Execute(conn, "INSERT INTO export_metadata (key, value) VALUES (?, ?)",
			&sqlitex.ExecOptions{Args: []any{key, metadata[key]}})
		if err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", key, err)
		}
	}

	return nil
}

// insertBatched inserts records in transactions of batchSize rows.
func insertBatched[T any](conn *sqlite.Conn, records []T, insert func(*sqlite.Conn, T) error) error {
	for chunk := range slices.Chunk(records, batchSize) {
		if err := insertChunk(conn, chunk, insert); err != nil {
			return err
		}
	}

	return nil
}

func insertChunk[T any](conn *sqlite.Conn, chunk []T, insert func(*sqlite.Conn, T) error) (err error) {
	defer sqlitex.Save(conn)(&err)

	for _, record := range chunk {
		if err := insert(conn, record); err != nil {
			return err
		}
	}

	return nil
}

func insertEvent(conn *sqlite.Conn, event *types.EventRecord) error {
	return sqlitex.Execute(conn, `
		INSERT INTO audit_events (
			sequence, event_id, user_hash, event_type, event_timestamp,
			document_version, previous_version, action_taken, event_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			event.Sequence, event.EventID, event.UserHash, event.EventType, event.Timestamp,
			event.DocumentVersion, event.PreviousVersion, event.ActionTaken, event.EventData,
		}})
}

func insertConsent(conn *sqlite.Conn, record *types.ConsentRecord) error {
	return sqlitex.Execute(conn, `
		INSERT INTO consent_records (
			id, user_hash, terms_version, privacy_policy_version, accepted_at,
			consent_method, country, region, age_verified, is_minor,
			requires_parental_consent, data_processing_consent, marketing_consent,
			data_sale_opt_out, acceptance_checksum, checksum_valid
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			record.ID, record.UserHash, record.TermsVersion, record.PrivacyPolicyVersion, record.AcceptedAt,
			record.ConsentMethod, record.Country, record.Region, record.AgeVerified, record.IsMinor,
			record.RequiresParentalConsent, record.DataProcessingConsent, optionalBool(record.MarketingConsent),
			optionalBool(record.DataSaleOptOut), record.AcceptanceChecksum, record.ChecksumValid,
		}})
}

// optionalBool maps an unset preference to NULL.
func optionalBool(v *bool) any {
	if v == nil {
		return nil
	}

	return *v
}
