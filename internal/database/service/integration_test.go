package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database"
	"github.com/robalyx/legalgate/internal/database/dbtest"
	"github.com/robalyx/legalgate/internal/database/service"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func seedDocuments(t *testing.T, client database.Client) {
	t.Helper()

	_, err := client.Service().Document().Seed(t.Context(), map[enum.DocumentType]string{
		enum.DocumentTypeTerms:   "terms body",
		enum.DocumentTypePrivacy: "privacy body",
	}, "tester")
	require.NoError(t, err)
}

func verifyAdult(t *testing.T, client database.Client, userID string) {
	t.Helper()

	_, err := client.Service().Age().RecordVerification(t.Context(), &types.VerificationRequest{
		UserID:           userID,
		BirthDate:        types.BirthDate{Year: 1990, Month: 5, Day: 17},
		VerificationType: enum.VerificationTypeSelfReported,
		IPAddress:        "203.0.113.7",
		UserAgent:        "integration",
	})
	require.NoError(t, err)
}

func consentRequest(userID, version string) *types.ConsentRequest {
	req := validConsentRequest()
	req.UserID = userID
	req.TermsVersion = version
	req.PrivacyVersion = version

	return req
}

func TestDocumentPublishIntegration(t *testing.T) {
	t.Parallel()

	client := dbtest.Open(t)
	ctx := t.Context()
	docs := client.Service().Document()

	seedDocuments(t, client)

	// Seeding is idempotent
	seeded, err := docs.Seed(ctx, map[enum.DocumentType]string{
		enum.DocumentTypeTerms:   "other",
		enum.DocumentTypePrivacy: "other",
	}, "tester")
	require.NoError(t, err)
	assert.Empty(t, seeded)

	result, err := docs.Publish(ctx, &types.PublishRequest{
		DocumentType:   enum.DocumentTypeTerms,
		Version:        "2.0.0",
		Content:        "terms v2",
		EffectiveDate:  time.Now().UTC(),
		MaterialChange: true,
		CreatedBy:      "tester",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Previous)
	assert.Equal(t, service.SeedVersion, result.Previous.Version)

	active, err := docs.GetActive(ctx, enum.DocumentTypeTerms)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", active.Version)

	history, err := docs.List(ctx, enum.DocumentTypeTerms)
	require.NoError(t, err)
	require.Len(t, history, 2)

	activeCount := 0
	for _, doc := range history {
		if doc.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)

	_, err = docs.Publish(ctx, &types.PublishRequest{
		DocumentType:  enum.DocumentTypeTerms,
		Version:       "2.0.0",
		Content:       "again",
		EffectiveDate: time.Now().UTC(),
		CreatedBy:     "tester",
	})
	require.ErrorIs(t, err, types.ErrDuplicateVersion)

	_, err = docs.Publish(ctx, &types.PublishRequest{
		DocumentType:  enum.DocumentTypeTerms,
		Version:       "1.5.0",
		Content:       "older",
		EffectiveDate: time.Now().UTC(),
		CreatedBy:     "tester",
	})
	require.ErrorIs(t, err, types.ErrVersionNotNewer)

	events, _, err := client.Service().Audit().Query(ctx, types.AuditFilter{
		EventType: enum.AuditEventVersionUpdated,
	}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestConcurrentPublishIntegration(t *testing.T) {
	t.Parallel()

	client := dbtest.Open(t)
	ctx := t.Context()
	docs := client.Service().Document()

	seedDocuments(t, client)

	const publishers = 8
	errs := make([]error, publishers)

	var g errgroup.Group
	for i := range publishers {
		g.Go(func() error {
			_, errs[i] = docs.Publish(ctx, &types.PublishRequest{
				DocumentType:   enum.DocumentTypeTerms,
				Version:        "2.0.0",
				Content:        "terms v2",
				EffectiveDate:  time.Now().UTC(),
				MaterialChange: true,
				CreatedBy:      "tester",
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.True(t,
			errors.Is(err, types.ErrDuplicateVersion) || errors.Is(err, types.ErrVersionNotNewer),
			"unexpected publish error: %v", err)
	}
	assert.Equal(t, 1, winners)

	history, err := docs.List(ctx, enum.DocumentTypeTerms)
	require.NoError(t, err)
	require.Len(t, history, 2)

	activeCount := 0
	for _, doc := range history {
		if doc.IsActive {
			activeCount++
			assert.Equal(t, "2.0.0", doc.Version)
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestAgeVerificationIntegration(t *testing.T) {
	t.Parallel()

	client := dbtest.Open(t)
	ctx := t.Context()
	ages := client.Service().Age()

	child := uuid.NewString()
	_, err := ages.RecordVerification(ctx, &types.VerificationRequest{
		UserID:           child,
		BirthDate:        types.BirthDate{Year: time.Now().Year() - 8, Month: 1, Day: 1},
		VerificationType: enum.VerificationTypeSelfReported,
	})
	require.ErrorIs(t, err, types.ErrAgeRestriction)

	current, err := ages.GetCurrent(ctx, child)
	require.NoError(t, err)
	assert.Nil(t, current, "blocked users leave no record")

	adult := uuid.NewString()
	verifyAdult(t, client, adult)

	current, err = ages.GetCurrent(ctx, adult)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.False(t, current.IsMinor)
	assert.False(t, current.NeedsReverification)

	require.NoError(t, ages.MarkForReverification(ctx, adult, time.Time{}))

	current, err = ages.GetCurrent(ctx, adult)
	require.NoError(t, err)
	assert.True(t, current.NeedsReverification)
}

func TestConsentLifecycleIntegration(t *testing.T) {
	t.Parallel()

	client := dbtest.Open(t)
	ctx := t.Context()
	consents := client.Service().Consent()

	seedDocuments(t, client)

	userID := uuid.NewString()

	_, err := consents.RecordConsent(ctx, consentRequest(userID, service.SeedVersion))
	require.ErrorIs(t, err, types.ErrNoAgeVerification)

	verifyAdult(t, client, userID)

	_, err = consents.RecordConsent(ctx, consentRequest(userID, "9.9.9"))
	require.ErrorIs(t, err, types.ErrVersionMismatch)

	first, err := consents.RecordConsent(ctx, consentRequest(userID, service.SeedVersion))
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, service.VerifyChecksum(first.Record))

	// A retry from the same session collapses into the first record
	retry, err := consents.RecordConsent(ctx, consentRequest(userID, service.SeedVersion))
	require.NoError(t, err)
	assert.False(t, retry.Created)
	assert.Equal(t, first.Record.ID, retry.Record.ID)

	history, err := consents.History(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, first.Record.AcceptedAt.Equal(history[0].AcceptedAt))
	assert.True(t, service.VerifyChecksum(history[0]), "stored record must verify after reload")

	_, err = consents.Revoke(ctx, userID, "changed my mind", types.RequestContext{SessionID: "session-1"})
	require.NoError(t, err)

	// After a revocation the same submission is a new record
	again, err := consents.RecordConsent(ctx, consentRequest(userID, service.SeedVersion))
	require.NoError(t, err)
	assert.True(t, again.Created)

	history, err = consents.History(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	for _, record := range history {
		assert.True(t, service.VerifyChecksum(record))
	}
}

func TestConcurrentConsentSubmissionsIntegration(t *testing.T) {
	t.Parallel()

	client := dbtest.Open(t)
	ctx := t.Context()
	consents := client.Service().Consent()

	seedDocuments(t, client)

	userID := uuid.NewString()
	verifyAdult(t, client, userID)

	const submissions = 8
	results := make([]*types.ConsentResult, submissions)

	g, gctx := errgroup.WithContext(ctx)
	for i := range submissions {
		g.Go(func() error {
			result, err := consents.RecordConsent(gctx, consentRequest(userID, service.SeedVersion))
			results[i] = result
			return err
		})
	}
	require.NoError(t, g.Wait())

	created := 0
	for _, result := range results {
		if result.Created {
			created++
		}
		assert.Equal(t, results[0].Record.ID, result.Record.ID)
	}
	assert.Equal(t, 1, created)

	history, err := consents.History(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	accepted, _, err := client.Service().Audit().Query(ctx, types.AuditFilter{
		UserID:    userID,
		EventType: enum.AuditEventTermsAccepted,
	}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, accepted, 1)
}

func TestEvidenceIsAppendOnlyIntegration(t *testing.T) {
	t.Parallel()

	client := dbtest.Open(t)
	ctx := t.Context()

	seedDocuments(t, client)

	userID := uuid.NewString()
	verifyAdult(t, client, userID)

	_, err := client.Service().Consent().RecordConsent(ctx, consentRequest(userID, service.SeedVersion))
	require.NoError(t, err)

	_, err = client.DB().NewRaw("UPDATE consent_records SET country = 'XX' WHERE user_id = ?", userID).Exec(ctx)
	require.Error(t, err)

	_, err = client.DB().NewRaw("DELETE FROM audit_events WHERE user_id = ?", userID).Exec(ctx)
	require.Error(t, err)
}

func TestAuditQueryPaginationIntegration(t *testing.T) {
	t.Parallel()

	client := dbtest.Open(t)
	ctx := t.Context()

	userID := uuid.NewString()
	for range 5 {
		_, err := client.Service().Consent().RecordOptOut(ctx, userID, enum.OptOutKindMarketing, types.RequestContext{})
		require.NoError(t, err)
	}

	filter := types.AuditFilter{UserID: userID}

	page, cursor, err := client.Service().Audit().Query(ctx, filter, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, cursor)

	seen := map[int64]bool{page[0].Sequence: true, page[1].Sequence: true}

	for cursor != nil {
		page, cursor, err = client.Service().Audit().Query(ctx, filter, cursor, 2)
		require.NoError(t, err)

		for _, event := range page {
			assert.False(t, seen[event.Sequence], "events must not repeat across pages")
			seen[event.Sequence] = true
		}
	}

	assert.Len(t, seen, 5)
}
