package csv

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/robalyx/legalgate/internal/export/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	return rows
}

func TestExporter_Export(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	optOut := true

	batch := &types.Batch{
		Events: []*types.EventRecord{
			{Sequence: 7, EventID: "e7", UserHash: "ff", EventType: "consent_revoked", EventData: `{"reason":"a, b"}`},
		},
		Consents: []*types.ConsentRecord{
			{ID: "c1", UserHash: "ff", TermsVersion: "2.0", DataSaleOptOut: &optOut},
		},
	}

	require.NoError(t, New(dir).Export(batch))

	events := readCSV(t, filepath.Join(dir, EventsFile))
	require.Len(t, events, 2)
	assert.Equal(t, eventHeader, events[0])
	assert.Equal(t, "7", events[1][0])
	assert.Equal(t, `{"reason":"a, b"}`, events[1][8])

	consents := readCSV(t, filepath.Join(dir, ConsentsFile))
	require.Len(t, consents, 2)
	assert.Equal(t, consentHeader, consents[0])
	assert.Empty(t, consents[1][12], "unset marketing consent")
	assert.Equal(t, "true", consents[1][13])
}

func TestExporter_ExportEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, New(dir).Export(&types.Batch{}))

	assert.Len(t, readCSV(t, filepath.Join(dir, EventsFile)), 1)
	assert.Len(t, readCSV(t, filepath.Join(dir, ConsentsFile)), 1)
}
