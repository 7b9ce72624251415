package admin_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/robalyx/legalgate/internal/rest/middleware/admin"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

func TestAdminMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{name: "valid token", token: "secret", header: "Bearer secret", want: http.StatusNoContent},
		{name: "wrong token", token: "secret", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "missing header", token: "secret", want: http.StatusUnauthorized},
		{name: "not bearer", token: "secret", header: "Basic secret", want: http.StatusUnauthorized},
		{name: "disabled", token: "", header: "Bearer ", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mw := admin.New(tt.token, zap.NewNop())
			router := bunrouter.New(bunrouter.Use(mw.AsRESTMiddleware))
			router.POST("/admin", func(w http.ResponseWriter, _ bunrouter.Request) error {
				w.WriteHeader(http.StatusNoContent)
				return nil
			})

			r := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}
