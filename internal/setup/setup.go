// Package setup bootstraps the shared dependencies of every legalgate command.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/legalgate/internal/database"
	"github.com/robalyx/legalgate/internal/database/migrations"
	"github.com/robalyx/legalgate/internal/grace"
	"github.com/robalyx/legalgate/internal/redis"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/robalyx/legalgate/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the schema is behind the binary.
var ErrPendingMigrations = errors.New("database migrations are pending; run `db migrate` first")

// App bundles all core dependencies and services needed by the application.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	DB           database.Client    // Database connection pool
	RedisManager *redis.Manager     // Redis connection manager
	StatusClient rueidis.Client     // Redis client for worker status reporting, nil without Redis
	Grace        grace.Store        // Post-consent grace flags
	LogManager   *telemetry.Manager // Log management system
	pprofServer  *http.Server       // Debug HTTP server for pprof
}

// InitializeApp bootstraps all application dependencies in the correct order.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug, &cfg.Common.Telemetry, config.RepositoryVersion)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		logManager.Stop(ctx)
		return nil, err
	}

	db, err := openMigrated(ctx, &cfg.Common, dbLogger)
	if err != nil {
		logManager.Stop(ctx)
		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	graceStore, statusClient, err := redisBackedStores(redisManager, &cfg.Common, logger)
	if err != nil {
		_ = db.Close()
		logManager.Stop(ctx)
		return nil, err
	}

	var pprofSrv *http.Server
	if cfg.Common.Debug.EnablePprof {
		srv, err := startPprof(cfg.Common.Debug.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		} else {
			pprofSrv = srv
			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger,
		DB:           db,
		RedisManager: redisManager,
		StatusClient: statusClient,
		Grace:        graceStore,
		LogManager:   logManager,
		pprofServer:  pprofSrv,
	}, nil
}

// Cleanup shuts components down in reverse initialization order.
// Errors are logged so every component gets a cleanup attempt.
func (s *App) Cleanup(ctx context.Context) {
	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown pprof server", zap.Error(err))
		}
	}

	s.Grace.Close()

	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Redis closes after the database as grace writes may still be in flight.
	s.RedisManager.Close()

	_ = s.Logger.Sync()
	_ = s.DBLogger.Sync()

	s.LogManager.Stop(ctx)
}

// openMigrated connects to PostgreSQL and refuses to continue with unapplied migrations.
func openMigrated(ctx context.Context, cfg *config.CommonConfig, dbLogger *zap.Logger) (database.Client, error) {
	db, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	if unapplied := ms.Unapplied(); len(unapplied) > 0 {
		_ = db.Close()
		dbLogger.Error("Database schema is out of date", zap.Int("pending", len(unapplied)))
		return nil, ErrPendingMigrations
	}

	return db, nil
}

// redisBackedStores picks the grace store and worker status client. Without
// Redis, grace flags are kept in process memory and status reporting is off.
func redisBackedStores(
	manager *redis.Manager, cfg *config.CommonConfig, logger *zap.Logger,
) (grace.Store, rueidis.Client, error) {
	ttl := cfg.Consent.GraceWindowDuration()

	if !manager.Enabled() {
		logger.Info("Redis not configured, keeping grace flags in memory")
		return grace.NewMemoryStore(ttl), nil, nil
	}

	graceClient, err := manager.GetClient(redis.GraceDBIndex)
	if err != nil {
		return nil, nil, err
	}

	statusClient, err := manager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return nil, nil, err
	}

	return grace.NewRedisStore(graceClient, ttl, logger), statusClient, nil
}

// startPprof serves the profiling endpoints on localhost from a private mux.
func startPprof(port int, logger *zap.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	addr := fmt.Sprintf("localhost:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for pprof: %w", err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("Serving pprof", zap.String("address", addr))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("pprof server stopped", zap.Error(err))
		}
	}()

	return srv, nil
}
