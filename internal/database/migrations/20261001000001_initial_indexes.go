package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- Legal document indexes
			CREATE UNIQUE INDEX IF NOT EXISTS legal_documents_one_active_idx
			ON legal_documents (document_type)
			WHERE is_active;

			CREATE INDEX IF NOT EXISTS idx_legal_documents_type_created
			ON legal_documents (document_type, created_at DESC);

			-- Age verification indexes
			CREATE INDEX IF NOT EXISTS idx_age_verifications_user_time
			ON age_verifications (user_id, verified_at DESC);

			CREATE INDEX IF NOT EXISTS idx_age_verifications_due
			ON age_verifications (next_verification_date)
			WHERE next_verification_date IS NOT NULL AND NOT needs_reverification;

			-- Consent record indexes
			CREATE INDEX IF NOT EXISTS idx_consent_records_user_time
			ON consent_records (user_id, accepted_at DESC);

			CREATE INDEX IF NOT EXISTS idx_consent_records_dedup
			ON consent_records (user_id, terms_version, privacy_policy_version, session_id, accepted_at DESC);

			-- Audit event indexes
			CREATE INDEX IF NOT EXISTS idx_audit_events_time
			ON audit_events (event_timestamp DESC, sequence DESC);

			CREATE INDEX IF NOT EXISTS idx_audit_events_user_time
			ON audit_events (user_id, event_timestamp DESC, sequence DESC)
			WHERE user_id IS NOT NULL;

			CREATE INDEX IF NOT EXISTS idx_audit_events_type_time
			ON audit_events (event_type, event_timestamp DESC, sequence DESC);
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS legal_documents_one_active_idx;
			DROP INDEX IF EXISTS idx_legal_documents_type_created;
			DROP INDEX IF EXISTS idx_age_verifications_user_time;
			DROP INDEX IF EXISTS idx_age_verifications_due;
			DROP INDEX IF EXISTS idx_consent_records_user_time;
			DROP INDEX IF EXISTS idx_consent_records_dedup;
			DROP INDEX IF EXISTS idx_audit_events_time;
			DROP INDEX IF EXISTS idx_audit_events_user_time;
			DROP INDEX IF EXISTS idx_audit_events_type_time;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop indexes: %w", err)
		}

		return nil
	})
}
