// Package admin guards operator-only routes with a static bearer token.
package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Middleware rejects requests without the configured admin token.
type Middleware struct {
	token  string
	logger *zap.Logger
}

// New creates a new admin middleware. An empty token disables every admin route.
func New(token string, logger *zap.Logger) *Middleware {
	return &Middleware{
		token:  token,
		logger: logger.Named("admin"),
	}
}

// IsAdmin reports whether the request carries the admin token.
func (m *Middleware) IsAdmin(r *http.Request) bool {
	if m.token == "" {
		return false
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(m.token)) == 1
}

// AsRESTMiddleware returns a bunrouter middleware handler.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		if !m.IsAdmin(req.Request) {
			m.logger.Warn("Rejected admin request",
				zap.String("path", req.URL.Path),
				zap.String("remoteAddr", req.RemoteAddr))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return nil
		}

		return next(w, req)
	}
}
