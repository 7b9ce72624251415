package models

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Advisory lock namespaces. Keys are hashed together with the namespace so
// different kinds of writes never contend on the same lock.
const (
	lockNamespaceDocument = "legal_document"
	lockNamespaceUser     = "legal_user"
)

// advisoryLockWithTx takes a transaction-scoped advisory lock that is released on commit or rollback.
func advisoryLockWithTx(ctx context.Context, tx bun.Tx, namespace, key string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", namespace+":"+key).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}

	return nil
}
