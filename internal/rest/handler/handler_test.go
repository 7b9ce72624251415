package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/robalyx/legalgate/internal/grace"
	"github.com/robalyx/legalgate/internal/rest/handler"
	"github.com/robalyx/legalgate/internal/rest/middleware/requestinfo"
	"github.com/robalyx/legalgate/internal/rest/respond"
	restTypes "github.com/robalyx/legalgate/internal/rest/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

type fakeDocuments struct {
	active    map[enum.DocumentType]*types.LegalDocument
	published *types.PublishRequest
}

func (f *fakeDocuments) Publish(_ context.Context, req *types.PublishRequest) (*types.PublishResult, error) {
	f.published = req
	previous := f.active[req.DocumentType]
	doc := &types.LegalDocument{ID: uuid.New(), DocumentType: req.DocumentType, Version: req.Version, IsActive: true}
	return &types.PublishResult{Document: doc, Previous: previous}, nil
}

func (f *fakeDocuments) GetActive(_ context.Context, docType enum.DocumentType) (*types.LegalDocument, error) {
	doc, ok := f.active[docType]
	if !ok {
		return nil, types.ErrNoActiveDocument
	}
	return doc, nil
}

func (f *fakeDocuments) GetByVersion(
	_ context.Context, docType enum.DocumentType, version string,
) (*types.LegalDocument, error) {
	if doc, ok := f.active[docType]; ok && doc.Version == version {
		return doc, nil
	}
	return nil, types.ErrDocumentNotFound
}

func (f *fakeDocuments) List(_ context.Context, docType enum.DocumentType) ([]*types.LegalDocument, error) {
	if doc, ok := f.active[docType]; ok {
		return []*types.LegalDocument{doc}, nil
	}
	return nil, nil
}

func (f *fakeDocuments) RecordView(
	_ context.Context, userID string, docType enum.DocumentType, version string, rc types.RequestContext,
) (*types.AuditEvent, error) {
	event := types.NewAuditEvent(docType.ViewedEvent(), userID, time.Now(), rc)
	event.DocumentVersion = version
	return event, nil
}

type fakeAges struct {
	requests []*types.VerificationRequest
	marked   string
}

func (f *fakeAges) RecordVerification(_ context.Context, req *types.VerificationRequest) (*types.AgeVerification, error) {
	f.requests = append(f.requests, req)
	if req.BirthDate.Year > 2020 {
		return nil, types.ErrAgeRestriction
	}
	return &types.AgeVerification{ID: uuid.New(), UserID: req.UserID, VerificationType: req.VerificationType}, nil
}

func (f *fakeAges) MarkForReverification(_ context.Context, userID string, _ time.Time) error {
	f.marked = userID
	return nil
}

func (f *fakeAges) GetCurrent(_ context.Context, _ string) (*types.AgeVerification, error) {
	return nil, nil //nolint:nilnil // no verification
}

type fakeConsents struct {
	request *types.ConsentRequest
}

func (f *fakeConsents) RecordConsent(_ context.Context, req *types.ConsentRequest) (*types.ConsentResult, error) {
	f.request = req
	return &types.ConsentResult{
		Record:  &types.ConsentRecord{ID: uuid.New(), UserID: req.UserID, TermsVersion: req.TermsVersion},
		Created: true,
	}, nil
}

func (f *fakeConsents) History(_ context.Context, _ string) ([]*types.ConsentRecord, error) {
	return nil, nil
}

func (f *fakeConsents) Revoke(_ context.Context, _, _ string, _ types.RequestContext) (*types.AuditEvent, error) {
	return nil, types.ErrNoConsent
}

func (f *fakeConsents) Reject(
	_ context.Context, userID string, _ enum.DocumentType, _, _ string, rc types.RequestContext,
) (*types.AuditEvent, error) {
	return types.NewAuditEvent(enum.AuditEventTermsRejected, userID, time.Now(), rc), nil
}

func (f *fakeConsents) RecordOptOut(
	_ context.Context, userID string, _ enum.OptOutKind, rc types.RequestContext,
) (*types.AuditEvent, error) {
	return types.NewAuditEvent(enum.AuditEventOptOutRecorded, userID, time.Now(), rc), nil
}

func (f *fakeConsents) RequestDataDeletion(
	_ context.Context, userID, _ string, rc types.RequestContext,
) (*types.AuditEvent, error) {
	return types.NewAuditEvent(enum.AuditEventDataDeletionRequested, userID, time.Now(), rc), nil
}

type fakeAudit struct {
	filter       types.AuditFilter
	limit        int
	reacceptance int
}

func (f *fakeAudit) Query(
	_ context.Context, filter types.AuditFilter, _ *types.AuditCursor, limit int,
) ([]*types.AuditEvent, *types.AuditCursor, error) {
	f.filter = filter
	f.limit = limit
	event := types.NewAuditEvent(enum.AuditEventTermsAccepted, filter.UserID, time.Now(), types.RequestContext{})
	event.Sequence = 7
	return []*types.AuditEvent{event}, &types.AuditCursor{Timestamp: event.Timestamp, Sequence: 7}, nil
}

func (f *fakeAudit) RecordReacceptanceRequired(
	_ context.Context, _ string, status *types.ConsentStatus, _ types.RequestContext,
) (bool, error) {
	if status.NeedsReacceptance {
		f.reacceptance++
	}
	return status.NeedsReacceptance, nil
}

type fakeEvaluator struct {
	status *types.ConsentStatus
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ string) (*types.ConsentStatus, error) {
	return f.status, nil
}

type fixture struct {
	router    *bunrouter.Router
	documents *fakeDocuments
	ages      *fakeAges
	consents  *fakeConsents
	audit     *fakeAudit
	evaluator *fakeEvaluator
	grace     *grace.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	responder := respond.New("support@example.com", logger)

	f := &fixture{
		documents: &fakeDocuments{active: map[enum.DocumentType]*types.LegalDocument{
			enum.DocumentTypeTerms: {ID: uuid.New(), DocumentType: enum.DocumentTypeTerms, Version: "1.0.0", IsActive: true},
		}},
		ages:      &fakeAges{},
		consents:  &fakeConsents{},
		audit:     &fakeAudit{},
		evaluator: &fakeEvaluator{status: &types.ConsentStatus{}},
		grace:     grace.NewMemoryStore(time.Minute),
	}
	t.Cleanup(f.grace.Close)

	isAdmin := func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer admin" }

	documents := handler.NewDocumentHandler(f.documents, isAdmin, responder, logger)
	users := handler.NewUserHandler(f.ages, f.consents, f.audit, f.evaluator, f.grace, isAdmin, responder, logger)
	audit := handler.NewAuditHandler(f.audit, responder, logger)

	f.router = bunrouter.New()
	f.router.Use(requestinfo.New(logger).AsRESTMiddleware).WithGroup("/v1", func(g *bunrouter.Group) {
		g.GET("/documents/:type/active", documents.GetActive)
		g.GET("/documents/:type/versions/:version", documents.GetVersion)
		g.POST("/admin/documents", documents.Publish)
		g.POST("/documents/views", documents.RecordView)
		g.POST("/users/:id/views", documents.RecordView)
		g.POST("/users/:id/age-verification", users.VerifyAge)
		g.GET("/users/:id/age-verification", users.GetAge)
		g.POST("/users/:id/reverification", users.RequireReverification)
		g.POST("/users/:id/consent", users.AcceptTerms)
		g.POST("/users/:id/revocations", users.Revoke)
		g.GET("/users/:id/status", users.Status)
		g.GET("/audit", audit.Query)
	})

	return f
}

func (f *fixture) do(method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set(requestinfo.HeaderSessionID, "session-1")
	if userID != "" {
		req.Header.Set(requestinfo.HeaderUserID, userID)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) restTypes.ErrorResponse {
	t.Helper()

	var body restTypes.ErrorResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGetActiveDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodGet, "/v1/documents/terms/active", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var doc types.LegalDocument
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "1.0.0", doc.Version)

	w = f.do(http.MethodGet, "/v1/documents/privacy/active", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = f.do(http.MethodGet, "/v1/documents/eula/active", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/v1/documents/terms/versions/9.9.9", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublishDefaultsEffectiveDate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/admin/documents", "",
		`{"documentType":"terms","version":"2.0.0","content":"new terms","materialChange":true,"createdBy":"legal"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	require.NotNil(t, f.documents.published)
	assert.False(t, f.documents.published.EffectiveDate.IsZero())
	assert.True(t, f.documents.published.MaterialChange)

	var body restTypes.PublishDocumentResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2.0.0", body.Document.Version)
	assert.Equal(t, "1.0.0", body.PreviousVersion)
}

func TestRecordViewAllowsAnonymous(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/documents/views", "", `{"documentType":"privacy","version":"1.0.0"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var body restTypes.EventResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, enum.AuditEventPrivacyViewed, body.Event.EventType)
	assert.Empty(t, body.Event.UserID)
}

func TestRecordViewForUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/users/alice/views", "bob", `{"documentType":"terms","version":"1.0.0"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/v1/users/alice/views", "alice", `{"documentType":"terms","version":"1.0.0"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var body restTypes.EventResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Event.UserID)
	assert.Equal(t, "session-1", body.Event.SessionID)
}

func TestUserRoutesRequireSelfOrAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodGet, "/v1/users/alice/status", "bob", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/v1/users/alice/status", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodGet, "/v1/users/alice/status", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/users/alice/status", nil)
	req.Header.Set("Authorization", "Bearer admin")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyAge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/users/alice/age-verification", "alice",
		`{"birthDate":{"year":2000,"month":6,"day":15}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, f.ages.requests, 1)
	req := f.ages.requests[0]
	assert.Equal(t, "alice", req.UserID)
	assert.Equal(t, enum.VerificationTypeSelfReported, req.VerificationType)
	assert.Equal(t, "test-agent", req.UserAgent)
	assert.Equal(t, "session-1", req.SessionID)
	assert.Equal(t, types.BirthDate{Year: 2000, Month: 6, Day: 15}, req.BirthDate)
}

func TestVerifyAgeBlocked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/users/alice/age-verification", "alice",
		`{"birthDate":{"year":2022,"month":1,"day":1}}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	body := decodeError(t, w)
	assert.Equal(t, "age_restricted", body.Error)
	assert.Equal(t, "support@example.com", body.SupportContact)
}

func TestVerifyAgeRejectsUnknownType(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/users/alice/age-verification", "alice",
		`{"birthDate":{"year":2000,"month":1,"day":1},"verificationType":"psychic"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, f.ages.requests)
}

func TestGetAgeWithoutVerification(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodGet, "/v1/users/alice/age-verification", "alice", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRequireReverification(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/users/alice/reverification", "", `{}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "alice", f.ages.marked)
}

func TestAcceptTermsSetsGrace(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/users/alice/consent", "alice", `{
		"termsVersion":"1.0.0","privacyVersion":"1.0.0",
		"termsAccepted":true,"privacyAccepted":true,"dataProcessingConsent":true,
		"scrollDepthPercent":100,"timeSpentSeconds":40,"country":"US"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	req := f.consents.request
	require.NotNil(t, req)
	assert.Equal(t, "alice", req.UserID)
	assert.Equal(t, "session-1", req.Metadata.SessionID)
	assert.Equal(t, "test-agent", req.Metadata.UserAgent)
	require.NotNil(t, req.Metadata.DataProcessingConsent)
	assert.True(t, *req.Metadata.DataProcessingConsent)

	active, err := f.grace.Active(t.Context(), "alice", "session-1")
	require.NoError(t, err)
	assert.True(t, active)

	w = f.do(http.MethodGet, "/v1/users/alice/status", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status restTypes.StatusResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.GraceActive)
}

func TestAcceptTermsValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/users/alice/consent", "alice", `{"termsVersion":"1.0.0","country":"USA"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body := decodeError(t, w)
	fields := make(map[string]bool)
	for _, fe := range body.Fields {
		fields[fe.Field] = true
	}
	assert.True(t, fields["privacyVersion"])
	assert.True(t, fields["country"])
	assert.Nil(t, f.consents.request)
}

func TestRevokeWithoutConsent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/users/alice/revocations", "alice", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusRecordsReacceptance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.evaluator.status = &types.ConsentStatus{
		NeedsReacceptance:    true,
		PendingDocuments:     []enum.DocumentType{enum.DocumentTypeTerms},
		ActiveTermsVersion:   "2.0.0",
		ActivePrivacyVersion: "1.0.0",
	}

	w := f.do(http.MethodGet, "/v1/users/alice/status", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status restTypes.StatusResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.NeedsReacceptance)
	assert.Equal(t, "/accept-terms", status.Redirect)
	assert.False(t, status.GraceActive)
	assert.Equal(t, 1, f.audit.reacceptance)
}

func TestAuditQuery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodGet,
		"/v1/audit?userId=alice&eventType=terms_accepted&start=2026-01-01T00:00:00Z&limit=20", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "alice", f.audit.filter.UserID)
	assert.Equal(t, enum.AuditEventTermsAccepted, f.audit.filter.EventType)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), f.audit.filter.StartDate)
	assert.Equal(t, 20, f.audit.limit)

	var page restTypes.AuditPageResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Events, 1)
	assert.NotEmpty(t, page.NextCursor)

	cursor, err := restTypes.DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cursor.Sequence)
}

func TestAuditQueryRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	w := f.do(http.MethodGet, "/v1/audit?eventType=nope&start=yesterday", "", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Len(t, decodeError(t, w).Fields, 2)

	w = f.do(http.MethodGet, "/v1/audit?cursor=!!", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
