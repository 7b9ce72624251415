package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.LegalDocument)(nil),
			(*types.AgeVerification)(nil),
			(*types.ConsentRecord)(nil),
			(*types.AuditEvent)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %T: %w", model, err)
			}
		}

		_, err := db.NewRaw(`
			ALTER TABLE audit_events
			ADD CONSTRAINT audit_events_id_key UNIQUE (id);

			ALTER TABLE legal_documents
			ADD CONSTRAINT legal_documents_type_version_key UNIQUE (document_type, version);
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to add unique constraints: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.AuditEvent)(nil),
			(*types.ConsentRecord)(nil),
			(*types.AgeVerification)(nil),
			(*types.LegalDocument)(nil),
		}

		for _, model := range models {
			_, err := db.NewDropTable().
				Model(model).
				IfExists().
				Cascade().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %T: %w", model, err)
			}
		}

		return nil
	})
}
