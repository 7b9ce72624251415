package respond_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/rest/respond"
	restTypes "github.com/robalyx/legalgate/internal/rest/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{name: "age restriction", err: types.ErrAgeRestriction, code: http.StatusForbidden, want: "age_restricted"},
		{name: "no active document", err: fmt.Errorf("wrapped: %w", types.ErrNoActiveDocument), code: http.StatusServiceUnavailable, want: "legal_documents_unavailable"},
		{name: "validation", err: types.NewValidationError("birthDate.day", "is not a valid day"), code: http.StatusUnprocessableEntity, want: "validation_failed"},
		{name: "duplicate", err: types.ErrDuplicateVersion, code: http.StatusConflict, want: "duplicate_version"},
		{name: "not newer", err: types.ErrVersionNotNewer, code: http.StatusConflict, want: "version_not_newer"},
		{name: "mismatch", err: types.ErrVersionMismatch, code: http.StatusConflict, want: "version_mismatch"},
		{name: "no consent", err: types.ErrNoConsent, code: http.StatusNotFound, want: "no_consent"},
		{name: "unknown", err: errors.New("boom"), code: http.StatusInternalServerError, want: "internal_error"},
	}

	responder := respond.New("support@example.com", zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			require.NoError(t, responder.Error(w, tt.err))
			assert.Equal(t, tt.code, w.Code)

			var body restTypes.ErrorResponse
			require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Error)
		})
	}
}

func TestAgeRestrictionIsNotDismissable(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	require.NoError(t, respond.New("support@example.com", zap.NewNop()).Error(w, types.ErrAgeRestriction))

	var body restTypes.ErrorResponse
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "support@example.com", body.SupportContact)
	require.NotNil(t, body.Dismissable)
	assert.False(t, *body.Dismissable)
}

func TestDecodeValidates(t *testing.T) {
	t.Parallel()

	responder := respond.New("", zap.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"documentType":"eula","content":"x"}`))
	var req restTypes.PublishDocumentRequest
	err := responder.Decode(r, &req)

	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)

	fields := make(map[string]string)
	for _, f := range verr.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "must be one of: terms, privacy", fields["documentType"])
	assert.Equal(t, "is required", fields["version"])
	assert.Equal(t, "is required", fields["createdBy"])
	assert.NotContains(t, fields, "content")
}

func TestDecodeNestedField(t *testing.T) {
	t.Parallel()

	responder := respond.New("", zap.NewNop())

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"birthDate":{"year":2000,"month":2}}`))
	var req restTypes.AgeVerificationRequest
	err := responder.Decode(r, &req)

	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "birthDate.day", verr.Fields[0].Field)
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"version":`))
	var req restTypes.PublishDocumentRequest
	err := respond.New("", zap.NewNop()).Decode(r, &req)
	require.ErrorIs(t, err, respond.ErrMalformedBody)
}
