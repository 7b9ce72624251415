package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/robalyx/legalgate/cmd/db/commands"
	"github.com/robalyx/legalgate/internal/database"
	"github.com/robalyx/legalgate/internal/database/migrations"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	deps, err := setupDependencies(context.Background())
	if err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	defer deps.DB.Close()

	app := &cli.Command{
		Name:     "db",
		Usage:    "Database management tool",
		Commands: append(commands.MigrationCommands(deps), commands.DocumentCommands(deps)...),
	}

	return app.Run(context.Background(), os.Args)
}

// setupDependencies connects to the database without applying migrations.
func setupDependencies(ctx context.Context) (*commands.CLIDependencies, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.NewConnection(ctx, &cfg.Common, logger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &commands.CLIDependencies{
		DB:       db,
		Migrator: migrate.NewMigrator(db.DB(), migrations.Migrations),
		Logger:   logger,
	}, nil
}
