package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "server", ServiceServer.String())
	assert.Equal(t, "worker", ServiceWorker.String())
	assert.Equal(t, "unknown", ServiceType(42).String())
}

func TestGetLoggersWritesSessionFiles(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	manager := NewManager(ServiceServer, logDir,
		&config.Debug{LogLevel: "info", MaxLogsToKeep: 3, MaxLogLines: 100},
		&config.Telemetry{}, "test")
	t.Cleanup(func() { manager.Stop(t.Context()) })

	mainLogger, dbLogger, err := manager.GetLoggers()
	require.NoError(t, err)

	mainLogger.Info("hello")
	dbLogger.Warn("slow query")
	require.NoError(t, mainLogger.Sync())

	sessions, err := filepath.Glob(filepath.Join(logDir, "*"))
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	data, err := os.ReadFile(filepath.Join(sessions[0], "main.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	data, err = os.ReadFile(filepath.Join(sessions[0], "database.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "slow query")
}

func TestRotateLogSessions(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	for _, name := range []string{"2026-01-01_00-00-00", "2026-01-02_00-00-00", "2026-01-03_00-00-00"} {
		require.NoError(t, os.Mkdir(filepath.Join(logDir, name), 0o755))
	}

	manager := &Manager{logDir: logDir, maxLogsToKeep: 2}
	require.NoError(t, manager.rotateLogSessions())

	sessions, err := filepath.Glob(filepath.Join(logDir, "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(logDir, "2026-01-03_00-00-00")}, sessions)
}

func TestInvalidLevel(t *testing.T) {
	t.Parallel()

	manager := NewManager(ServiceWorker, "", &config.Debug{LogLevel: "loud"}, &config.Telemetry{}, "test")
	_, _, err := manager.GetLoggers()
	require.Error(t, err)
}
