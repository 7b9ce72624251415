package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/robalyx/legalgate/internal/setup/telemetry/logger"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceType represents the type of service being initialized.
type ServiceType int

const (
	ServiceServer ServiceType = iota
	ServiceWorker
	ServiceDB
	ServiceExport
)

// String returns the component name of the service.
func (s ServiceType) String() string {
	switch s {
	case ServiceServer:
		return "server"
	case ServiceWorker:
		return "worker"
	case ServiceDB:
		return "db"
	case ServiceExport:
		return "export"
	default:
		return "unknown"
	}
}

const sessionDirLayout = "2006-01-02_15-04-05"

// Manager creates loggers that write to a per-run session directory and, when
// tracing is configured, forwards warnings and errors to Uptrace.
type Manager struct {
	instanceID    string
	componentName string
	logDir        string
	sessionDir    string
	level         string
	maxLogsToKeep int
	maxLogLines   int
	tracing       bool

	mu       sync.Mutex
	rotators []*logger.Rotator
}

// NewManager creates a new Manager instance. An empty logDir writes to stderr only.
func NewManager(
	serviceType ServiceType, logDir string, debugCfg *config.Debug, telemetryCfg *config.Telemetry, version string,
) *Manager {
	instanceID := uuid.New().String()

	manager := &Manager{
		instanceID:    instanceID,
		componentName: serviceType.String(),
		logDir:        logDir,
		level:         debugCfg.LogLevel,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
		maxLogLines:   debugCfg.MaxLogLines,
	}

	if telemetryCfg.UptraceDSN != "" {
		uptrace.ConfigureOpentelemetry(
			uptrace.WithDSN(telemetryCfg.UptraceDSN),
			uptrace.WithServiceName(telemetryCfg.ServiceName+"-"+manager.componentName),
			uptrace.WithServiceVersion(version),
			uptrace.WithDeploymentEnvironment(telemetryCfg.Environment),
		)
		manager.tracing = true
	}

	return manager
}

// Stop flushes pending spans and closes log files.
func (lm *Manager) Stop(ctx context.Context) {
	if lm.tracing {
		_ = uptrace.Shutdown(ctx)
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	for _, r := range lm.rotators {
		_ = r.Close()
	}
	lm.rotators = nil
}

// InstanceID returns the unique identifier of this run.
func (lm *Manager) InstanceID() string {
	return lm.instanceID
}

// GetLoggers initializes the main and database loggers.
func (lm *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	if err := lm.setupLogDirectories(); err != nil {
		return nil, nil, err
	}

	mainLogger, err := lm.newLogger("main.log", zapcore.WarnLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}

	dbLogger, err := lm.newLogger("database.log", zapcore.WarnLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}

	return mainLogger.With(zap.String("instanceID", lm.instanceID)), dbLogger.Named("database"), nil
}

// setupLogDirectories rotates old sessions and creates the directory of this run.
func (lm *Manager) setupLogDirectories() error {
	if lm.logDir == "" {
		return nil
	}

	if err := os.MkdirAll(lm.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := lm.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	lm.sessionDir = filepath.Join(lm.logDir, time.Now().Format(sessionDirLayout))
	if err := os.MkdirAll(lm.sessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	return nil
}

// newLogger builds a logger writing to stderr, the session file and optionally Uptrace.
func (lm *Manager) newLogger(fileName string, traceLevel zapcore.Level) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lm.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level),
	}

	if lm.sessionDir != "" {
		rotator, err := logger.NewRotator(filepath.Join(lm.sessionDir, fileName), lm.maxLogLines)
		if err != nil {
			return nil, err
		}

		lm.mu.Lock()
		lm.rotators = append(lm.rotators, rotator)
		lm.mu.Unlock()

		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), rotator, level))
	}

	if lm.tracing {
		cores = append(cores, NewCore(zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= traceLevel && lvl >= level
		})))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).Named(lm.componentName), nil
}

// rotateLogSessions removes the oldest session directories beyond maxLogsToKeep.
func (lm *Manager) rotateLogSessions() error {
	sessions, err := filepath.Glob(filepath.Join(lm.logDir, "*"))
	if err != nil {
		return err
	}

	if lm.maxLogsToKeep <= 0 || len(sessions) < lm.maxLogsToKeep {
		return nil
	}

	// Session names sort chronologically.
	slices.Sort(sessions)

	// Leave room for the session about to be created.
	for _, session := range sessions[:len(sessions)-lm.maxLogsToKeep+1] {
		if err := os.RemoveAll(session); err != nil {
			return err
		}
	}

	return nil
}
