package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/legalgate/internal/database/service"
	dbTypes "github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/export/csv"
	"github.com/robalyx/legalgate/internal/export/sqlite"
	"github.com/robalyx/legalgate/internal/export/types"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrInvalidRange      = errors.New("export range end must be after start")
)

// Format represents a supported export format.
type Format string

const (
	FormatSQLite Format = "sqlite"
	FormatCSV    Format = "csv"
)

// EngineVersion is bumped on breaking changes to the exported layout.
const EngineVersion = "1.0.0"

// ConfigFile is written next to the exported data.
const ConfigFile = "export_config.json"

// EventSource streams audit events in append order.
type EventSource interface {
	StreamEvents(ctx context.Context, start, end time.Time, fn func(*dbTypes.AuditEvent) error) error
}

// ConsentSource streams consent records oldest first.
type ConsentSource interface {
	StreamRecords(ctx context.Context, start, end time.Time, fn func(*dbTypes.ConsentRecord) error) error
}

// Config holds the configuration for exports.
type Config struct {
	ExportVersion string `json:"exportVersion"`
	Description   string `json:"description"`
	HashType      string `json:"hashType"`
	Iterations    uint32 `json:"iterations"`
	Memory        uint32 `json:"memory,omitempty"`
	Salt          string `json:"-"`
	Concurrency   int    `json:"-"`
}

// Summary describes a finished export.
type Summary struct {
	Events      int
	Consents    int
	Users       int
	BadChecksum int
}

// Exporter writes pseudonymized audit and consent evidence.
type Exporter struct {
	events   EventSource
	consents ConsentSource
	outDir   string
	config   *Config
	hasher   *Hasher
	formats  []Format
	logger   *zap.Logger
}

// New creates a new exporter instance.
func New(
	events EventSource, consents ConsentSource, outDir string, config *Config, logger *zap.Logger,
) (*Exporter, error) {
	hasher := &Hasher{
		Salt:       config.Salt,
		Type:       HashType(config.HashType),
		Iterations: config.Iterations,
		Memory:     config.Memory,
	}
	if err := hasher.Validate(); err != nil {
		return nil, err
	}

	return &Exporter{
		events:   events,
		consents: consents,
		outDir:   outDir,
		config:   config,
		hasher:   hasher,
		formats:  []Format{FormatSQLite, FormatCSV},
		logger:   logger.Named("export"),
	}, nil
}

// ExportAll exports everything recorded in [start, end) in all supported formats.
func (e *Exporter) ExportAll(ctx context.Context, start, end time.Time) (*Summary, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}

	e.logger.Info("Starting export",
		zap.String("hashType", e.config.HashType),
		zap.Uint32("iterations", e.config.Iterations),
		zap.Int("concurrency", e.config.Concurrency),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.String("outDir", e.outDir))

	if err := os.MkdirAll(e.outDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var (
		events   []*dbTypes.AuditEvent
		consents []*dbTypes.ConsentRecord
	)

	err := e.events.StreamEvents(ctx, start, end, func(event *dbTypes.AuditEvent) error {
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}

	err = e.consents.StreamRecords(ctx, start, end, func(record *dbTypes.ConsentRecord) error {
		consents = append(consents, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read consent records: %w", err)
	}

	e.logger.Info("Fetched evidence",
		zap.Int("events", len(events)),
		zap.Int("consents", len(consents)))

	userIDs := make([]string, 0, len(events)+len(consents))
	for _, event := range events {
		userIDs = append(userIDs, event.UserID)
	}
	for _, record := range consents {
		userIDs = append(userIDs, record.UserID)
	}

	hashes := e.hasher.HashAll(userIDs, e.config.Concurrency)

	batch, summary, err := buildBatch(events, consents, hashes)
	if err != nil {
		return nil, err
	}

	batch.Metadata = map[string]string{
		"engine_version": EngineVersion,
		"export_version": e.config.ExportVersion,
		"hash_type":      e.config.HashType,
		"range_start":    start.UTC().Format(time.RFC3339),
		"range_end":      end.UTC().Format(time.RFC3339),
		"exported_at":    time.Now().UTC().Format(time.RFC3339),
	}

	if summary.BadChecksum > 0 {
		e.logger.Warn("Consent records failed checksum verification",
			zap.Int("count", summary.BadChecksum))
	}

	if err := e.writeConfig(start, end); err != nil {
		return nil, err
	}

	for _, format := range e.formats {
		e.logger.Debug("Writing format", zap.String("format", string(format)))

		if err := e.export(format, batch); err != nil {
			return nil, fmt.Errorf("failed to export %s format: %w", format, err)
		}
	}

	e.logger.Info("Export completed",
		zap.Int("events", summary.Events),
		zap.Int("consents", summary.Consents),
		zap.Int("users", summary.Users))

	return summary, nil
}

// writeConfig records the parameters needed to reproduce the user hashes.
// The salt is never written.
func (e *Exporter) writeConfig(start, end time.Time) error {
	jsonConfig := struct {
		*Config

		EngineVersion string    `json:"engineVersion"`
		RangeStart    time.Time `json:"rangeStart"`
		RangeEnd      time.Time `json:"rangeEnd"`
	}{
		Config:        e.config,
		EngineVersion: EngineVersion,
		RangeStart:    start.UTC(),
		RangeEnd:      end.UTC(),
	}

	configData, err := sonic.ConfigStd.MarshalIndent(jsonConfig, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal export config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(e.outDir, ConfigFile), configData, 0o600); err != nil {
		return fmt.Errorf("failed to write export config: %w", err)
	}

	return nil
}

// export writes the batch in the given format.
func (e *Exporter) export(format Format, batch *types.Batch) error {
	switch format {
	case FormatSQLite:
		return sqlite.New(e.outDir).Export(batch)
	case FormatCSV:
		return csv.New(e.outDir).Export(batch)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// buildBatch converts database rows into pseudonymized export rows.
func buildBatch(
	events []*dbTypes.AuditEvent, consents []*dbTypes.ConsentRecord, hashes map[string]string,
) (*types.Batch, *Summary, error) {
	batch := &types.Batch{
		Events:   make([]*types.EventRecord, 0, len(events)),
		Consents: make([]*types.ConsentRecord, 0, len(consents)),
	}
	summary := &Summary{Events: len(events), Consents: len(consents)}

	users := make(map[string]struct{})

	for _, event := range events {
		data := ""
		if len(event.EventData) > 0 {
			raw, err := sonic.ConfigStd.MarshalToString(event.EventData)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to encode event %d data: %w", event.Sequence, err)
			}
			data = raw
		}

		if event.UserID != "" {
			users[event.UserID] = struct{}{}
		}

		batch.Events = append(batch.Events, &types.EventRecord{
			Sequence:        event.Sequence,
			EventID:         event.ID.String(),
			UserHash:        hashes[event.UserID],
			EventType:       event.EventType.String(),
			Timestamp:       event.Timestamp.UTC().Format(time.RFC3339Nano),
			DocumentVersion: event.DocumentVersion,
			PreviousVersion: event.PreviousVersion,
			ActionTaken:     event.ActionTaken,
			EventData:       data,
		})
	}

	for _, record := range consents {
		users[record.UserID] = struct{}{}

		valid := service.VerifyChecksum(record)
		if !valid {
			summary.BadChecksum++
		}

		batch.Consents = append(batch.Consents, &types.ConsentRecord{
			ID:                      record.ID.String(),
			UserHash:                hashes[record.UserID],
			TermsVersion:            record.TermsVersion,
			PrivacyPolicyVersion:    record.PrivacyPolicyVersion,
			AcceptedAt:              record.AcceptedAt.UTC().Format(time.RFC3339Nano),
			ConsentMethod:           record.ConsentMethod.String(),
			Country:                 record.Country,
			Region:                  record.Region,
			AgeVerified:             record.AgeVerified,
			IsMinor:                 record.IsMinor,
			RequiresParentalConsent: record.RequiresParentalConsent,
			DataProcessingConsent:   record.DataProcessingConsent,
			MarketingConsent:        record.MarketingConsent,
			DataSaleOptOut:          record.DataSaleOptOut,
			AcceptanceChecksum:      record.AcceptanceChecksum,
			ChecksumValid:           valid,
		})
	}

	summary.Users = len(users)

	return batch, summary, nil
}
