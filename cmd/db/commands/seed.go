package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// DocumentCommands returns commands for managing legal documents.
func DocumentCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "seed",
			Usage: "Publish version 1.0 of every document type that has no active version",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "terms",
					Usage:    "Path to the Terms of Service content",
					Required: true,
				},
				&cli.StringFlag{
					Name:     "privacy",
					Usage:    "Path to the Privacy Policy content",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "created-by",
					Value: "seed",
					Usage: "Operator recorded as the publisher",
				},
			},
			Action: handleSeed(deps),
		},
		{
			Name:      "documents",
			Usage:     "List the version history of a document type",
			ArgsUsage: "TYPE",
			Action:    handleDocuments(deps),
		},
	}
}

// handleSeed handles the 'seed' command.
func handleSeed(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		contents := make(map[enum.DocumentType]string, len(enum.DocumentTypes))

		for docType, path := range map[enum.DocumentType]string{
			enum.DocumentTypeTerms:   c.String("terms"),
			enum.DocumentTypePrivacy: c.String("privacy"),
		} {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s content: %w", docType, err)
			}
			contents[docType] = string(data)
		}

		seeded, err := deps.DB.Service().Document().Seed(ctx, contents, c.String("created-by"))
		if err != nil {
			return err
		}

		if len(seeded) == 0 {
			deps.Logger.Info("All document types already have an active version")
			return nil
		}

		for _, doc := range seeded {
			deps.Logger.Info("Seeded document",
				zap.String("type", doc.DocumentType.String()),
				zap.String("version", doc.Version))
		}

		return nil
	}
}

// handleDocuments handles the 'documents' command.
func handleDocuments(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		docType, err := enum.ParseDocumentType(c.Args().First())
		if err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownDocument, c.Args().First())
		}

		docs, err := deps.DB.Service().Document().List(ctx, docType)
		if err != nil {
			return err
		}

		for _, doc := range docs {
			deps.Logger.Info("Document version",
				zap.String("version", doc.Version),
				zap.Bool("active", doc.IsActive),
				zap.Bool("materialChange", doc.MaterialChange),
				zap.Time("effectiveDate", doc.EffectiveDate),
				zap.String("createdBy", doc.CreatedBy))
		}

		return nil
	}
}
