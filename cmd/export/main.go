package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robalyx/legalgate/internal/export"
	"github.com/robalyx/legalgate/internal/setup"
	"github.com/robalyx/legalgate/internal/setup/telemetry"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// ExportLogDir specifies where export log files are stored.
const ExportLogDir = "logs/export_logs"

var ErrSaltRequired = errors.New("salt is required (flag --salt or LEGALGATE_EXPORT_SALT)")

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "export",
		Usage: "Export pseudonymized audit and consent evidence",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "exports",
				Usage:   "Base output directory for export files",
			},
			&cli.StringFlag{
				Name:    "salt",
				Aliases: []string{"s"},
				Usage:   "Salt for hashing user IDs",
				Sources: cli.EnvVars("LEGALGATE_EXPORT_SALT"),
			},
			&cli.StringFlag{
				Name:    "export-version",
				Aliases: []string{"v"},
				Value:   "1.0.0",
				Usage:   "Export version",
			},
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"d"},
				Value:   "Legal consent evidence",
				Usage:   "Export description",
			},
			&cli.StringFlag{
				Name:    "hash-type",
				Aliases: []string{"t"},
				Value:   string(export.HashTypeSHA256),
				Usage:   "Hash algorithm to use (argon2id or sha256)",
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"c"},
				Value:   4,
				Usage:   "Number of concurrent hash operations",
			},
			&cli.UintFlag{
				Name:    "iterations",
				Aliases: []string{"i"},
				Value:   1,
				Usage:   "Number of hash iterations",
			},
			&cli.UintFlag{
				Name:    "memory",
				Aliases: []string{"m"},
				Value:   16,
				Usage:   "Memory to use for Argon2id in MB",
			},
			&cli.StringFlag{
				Name:  "start",
				Value: "1970-01-01T00:00:00Z",
				Usage: "Inclusive start of the export range (RFC 3339)",
			},
			&cli.StringFlag{
				Name:  "end",
				Usage: "Exclusive end of the export range (RFC 3339), defaults to now",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.String("salt") == "" {
				return ErrSaltRequired
			}

			start, end, err := exportRange(c.String("start"), c.String("end"))
			if err != nil {
				return err
			}

			app, err := setup.InitializeApp(ctx, telemetry.ServiceExport, ExportLogDir)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			defer app.Cleanup(ctx)

			// Create timestamped output directory
			outDir := filepath.Join(c.String("output"), time.Now().UTC().Format("2006-01-02_150405"))

			exporter, err := export.New(app.DB.Service().Audit(), app.DB.Service().Consent(), outDir, &export.Config{
				ExportVersion: c.String("export-version"),
				Description:   c.String("description"),
				HashType:      c.String("hash-type"),
				Iterations:    uint32(c.Uint("iterations")), //nolint:gosec // -
				Memory:        uint32(c.Uint("memory")),     //nolint:gosec // -
				Salt:          c.String("salt"),
				Concurrency:   int(c.Int("concurrency")),
			}, app.Logger)
			if err != nil {
				return fmt.Errorf("invalid export configuration: %w", err)
			}

			summary, err := exporter.ExportAll(ctx, start, end)
			if err != nil {
				return fmt.Errorf("failed to export data: %w", err)
			}

			app.Logger.Info("Evidence written",
				zap.String("outDir", outDir),
				zap.Int("events", summary.Events),
				zap.Int("consents", summary.Consents),
				zap.Int("badChecksums", summary.BadChecksum))

			return nil
		},
	}

	return app.Run(context.Background(), os.Args)
}

// exportRange parses the range flags. An empty end means now.
func exportRange(startFlag, endFlag string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startFlag)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
	}

	end := time.Now().UTC()
	if endFlag != "" {
		end, err = time.Parse(time.RFC3339, endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
	}

	return start, end, nil
}
