package commands

import (
	"errors"

	"github.com/robalyx/legalgate/internal/database"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var (
	ErrNameRequired    = errors.New("NAME argument required")
	ErrPendingSchema   = errors.New("database has unapplied migrations")
	ErrUnknownDocument = errors.New("unknown document type")
)

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	DB       database.Client
	Migrator *migrate.Migrator
	Logger   *zap.Logger
}
