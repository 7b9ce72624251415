package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/legalgate/internal/setup"
	"github.com/robalyx/legalgate/internal/setup/telemetry"
	"github.com/robalyx/legalgate/internal/worker/core"
	"github.com/robalyx/legalgate/internal/worker/reverification"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// WorkerLogDir specifies where worker log files are stored.
const WorkerLogDir = "logs/worker_logs"

var ErrStatusUnavailable = errors.New("worker status requires redis")

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "worker",
		Usage: "Run legalgate background workers",
		Commands: []*cli.Command{
			{
				Name:  reverification.WorkerType,
				Usage: "Flag age verifications that are due for renewal",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Run a single sweep and exit",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runReverification(ctx, c.Bool("once"))
				},
			},
			{
				Name:   "status",
				Usage:  "Show the last reported status of every worker",
				Action: func(ctx context.Context, _ *cli.Command) error { return showStatus(ctx) },
			},
		},
	}

	return app.Run(ctx, os.Args)
}

// runReverification runs the reverification worker until ctx is cancelled.
func runReverification(ctx context.Context, once bool) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	cfg := app.Config.Common.Worker

	reporter := core.NewStatusReporter(app.StatusClient, reverification.WorkerType, app.Logger)
	worker := reverification.New(app.DB.Service().Age(), reporter, reverification.Options{
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		Interval:    time.Duration(cfg.Interval) * time.Second,
	}, app.Logger)

	if once {
		marked, err := worker.RunOnce(ctx)
		if err != nil {
			return err
		}

		app.Logger.Info("Reverification sweep finished", zap.Int("marked", marked))

		return nil
	}

	worker.Start(ctx)

	return nil
}

// showStatus prints every worker status found in Redis.
func showStatus(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	if app.StatusClient == nil {
		return ErrStatusUnavailable
	}

	statuses, err := core.NewMonitor(app.StatusClient, app.Logger).GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, status := range statuses {
		fmt.Printf("%-16s %-36s healthy=%-5t stale=%-5t processed=%d task=%q progress=%d%%\n",
			status.WorkerType, status.WorkerID, status.IsHealthy, status.IsStale(now),
			status.Processed, status.CurrentTask, status.Progress)
	}

	if len(statuses) == 0 {
		fmt.Println("No workers have reported recently")
	}

	return nil
}
