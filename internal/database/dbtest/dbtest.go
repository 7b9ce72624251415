// Package dbtest provides PostgreSQL-backed clients for integration tests.
// Tests using it are skipped unless LEGALGATE_TEST_POSTGRES_DSN is set.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// DSNEnv names the environment variable holding the test database DSN.
const DSNEnv = "LEGALGATE_TEST_POSTGRES_DSN"

// Config returns the configuration used by integration test clients.
func Config() *config.CommonConfig {
	return &config.CommonConfig{
		Policy: config.Policy{
			MinimumAge:                 13,
			ParentalConsentAge:         18,
			AdultAge:                   18,
			ReverificationIntervalDays: 365,
			MinScrollDepthPercent:      90,
			MinSecondsOnDocument:       10,
		},
		Consent: config.Consent{
			DedupWindow: 30,
			GraceWindow: 5,
		},
	}
}

// Open migrates a fresh schema and returns a client bound to it.
// The schema is dropped when the test finishes.
func Open(t *testing.T) database.Client {
	t.Helper()

	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}

	ctx := t.Context()
	schema := "legalgate_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn))), pgdialect.New())
	t.Cleanup(func() { _ = admin.Close() })

	_, err := admin.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
	})

	db := bun.NewDB(sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithConnParams(map[string]any{"search_path": schema}),
	)), pgdialect.New())

	logger := zap.NewNop()
	require.NoError(t, database.Migrate(ctx, db, logger))

	client := database.NewClient(db, Config(), logger)
	t.Cleanup(func() { _ = client.Close() })

	return client
}
