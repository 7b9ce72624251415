package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/robalyx/legalgate/internal/export/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func testBatch() *types.Batch {
	marketing := false

	return &types.Batch{
		Events: []*types.EventRecord{
			{Sequence: 1, EventID: "e1", UserHash: "aa", EventType: "terms_accepted", Timestamp: "2026-03-01T12:00:00Z"},
			{Sequence: 2, EventID: "e2", EventType: "version_updated", Timestamp: "2026-03-01T12:01:00Z", EventData: `{"v":1}`},
		},
		Consents: []*types.ConsentRecord{
			{
				ID: "c1", UserHash: "aa", TermsVersion: "1.0", PrivacyPolicyVersion: "1.0",
				AcceptedAt: "2026-03-01T12:00:00Z", ConsentMethod: "clickwrap", AgeVerified: true,
				DataProcessingConsent: true, MarketingConsent: &marketing, ChecksumValid: true,
			},
		},
		Metadata: map[string]string{"engine_version": "1.0.0"},
	}
}

func TestExporter_Export(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	e := New(dir)

	require.NoError(t, e.Export(testBatch()))
	// A second export replaces the file rather than failing on existing tables.
	require.NoError(t, e.Export(testBatch()))

	conn, err := sqlite.OpenConn(filepath.Join(dir, FileName), sqlite.OpenReadOnly)
	require.NoError(t, err)
	defer conn.Close()

	var hashes []string
	err = sqlitex.ExecuteTransient(conn, "SELECT user_hash FROM audit_events ORDER BY sequence", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			hashes = append(hashes, stmt.ColumnText(0))
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", ""}, hashes)

	var (
		marketingNull bool
		saleNull      bool
		valid         int64
	)
	err = sqlitex.ExecuteTransient(conn,
		"SELECT marketing_consent IS NULL, data_sale_opt_out IS NULL, checksum_valid FROM consent_records",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				marketingNull = stmt.ColumnInt64(0) == 1
				saleNull = stmt.ColumnInt64(1) == 1
				valid = stmt.ColumnInt64(2)
				return nil
			},
		})
	require.NoError(t, err)
	assert.False(t, marketingNull)
	assert.True(t, saleNull)
	assert.Equal(t, int64(1), valid)

	var version string
	err = sqlitex.ExecuteTransient(conn, "SELECT value FROM export_metadata WHERE key = 'engine_version'",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				version = stmt.ColumnText(0)
				return nil
			},
		})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)
}

func TestExporter_ExportMissingDir(t *testing.T) {
	t.Parallel()

	e := New(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, e.Export(testBatch()))
}
