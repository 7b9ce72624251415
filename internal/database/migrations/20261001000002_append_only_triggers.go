package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			CREATE OR REPLACE FUNCTION reject_evidence_mutation() RETURNS trigger AS $$
			BEGIN
				RAISE EXCEPTION '% is append-only', TG_TABLE_NAME
					USING ERRCODE = 'P0001';
			END;
			$$ LANGUAGE plpgsql;

			DROP TRIGGER IF EXISTS consent_records_append_only ON consent_records;
			CREATE TRIGGER consent_records_append_only
			BEFORE UPDATE OR DELETE ON consent_records
			FOR EACH ROW EXECUTE FUNCTION reject_evidence_mutation();

			DROP TRIGGER IF EXISTS audit_events_append_only ON audit_events;
			CREATE TRIGGER audit_events_append_only
			BEFORE UPDATE OR DELETE ON audit_events
			FOR EACH ROW EXECUTE FUNCTION reject_evidence_mutation();

			DROP TRIGGER IF EXISTS consent_records_no_truncate ON consent_records;
			CREATE TRIGGER consent_records_no_truncate
			BEFORE TRUNCATE ON consent_records
			FOR EACH STATEMENT EXECUTE FUNCTION reject_evidence_mutation();

			DROP TRIGGER IF EXISTS audit_events_no_truncate ON audit_events;
			CREATE TRIGGER audit_events_no_truncate
			BEFORE TRUNCATE ON audit_events
			FOR EACH STATEMENT EXECUTE FUNCTION reject_evidence_mutation();
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create append-only triggers: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP TRIGGER IF EXISTS consent_records_append_only ON consent_records;
			DROP TRIGGER IF EXISTS audit_events_append_only ON audit_events;
			DROP TRIGGER IF EXISTS consent_records_no_truncate ON consent_records;
			DROP TRIGGER IF EXISTS audit_events_no_truncate ON audit_events;
			DROP FUNCTION IF EXISTS reject_evidence_mutation();
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop append-only triggers: %w", err)
		}

		return nil
	})
}
