package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/legalgate/internal/rest"
	"github.com/robalyx/legalgate/internal/setup"
	"github.com/robalyx/legalgate/internal/setup/telemetry"
	"go.uber.org/zap"
)

// ServerLogDir specifies where API server log files are stored.
const ServerLogDir = "logs/server_logs"

// ShutdownTimeout bounds how long in-flight requests get to finish.
const ShutdownTimeout = 30 * time.Second

func main() {
	// Initialize application with required dependencies
	app, err := setup.InitializeApp(context.Background(), telemetry.ServiceServer, ServerLogDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(context.Background())

	cfg := &app.Config.Common.API

	handler := rest.NewServer(
		rest.DependenciesFromClient(app.DB, app.Grace, app.Logger),
		cfg,
		app.Logger,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
	}

	go func() {
		app.Logger.Info("API server started", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	app.Logger.Info("Shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		app.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	app.Logger.Info("Server gracefully stopped")
}
