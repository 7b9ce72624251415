package gate

import (
	"context"

	"github.com/robalyx/legalgate/internal/database"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
)

// DatabaseSource reads gate inputs through the database services.
type DatabaseSource struct {
	services *database.Service
}

// NewDatabaseSource creates a gate source backed by the database client.
func NewDatabaseSource(client database.Client) *DatabaseSource {
	return &DatabaseSource{services: client.Service()}
}

// ActiveVersions returns the active document of every type.
func (s *DatabaseSource) ActiveVersions(ctx context.Context) (*types.ActiveVersions, error) {
	return s.services.Document().GetActiveVersions(ctx)
}

// CurrentAge returns the latest age verification of a user.
func (s *DatabaseSource) CurrentAge(ctx context.Context, userID string) (*types.AgeVerification, error) {
	return s.services.Age().GetCurrent(ctx, userID)
}

// CurrentConsent returns the latest consent record of a user.
func (s *DatabaseSource) CurrentConsent(ctx context.Context, userID string) (*types.ConsentRecord, error) {
	return s.services.Consent().GetCurrent(ctx, userID)
}

// LatestRevocation returns the latest consent revocation of a user.
func (s *DatabaseSource) LatestRevocation(ctx context.Context, userID string) (*types.AuditEvent, error) {
	return s.services.Consent().LatestRevocation(ctx, userID)
}

// History returns the publish history of a document type.
func (s *DatabaseSource) History(ctx context.Context, docType enum.DocumentType) ([]*types.LegalDocument, error) {
	return s.services.Document().List(ctx, docType)
}
