// Package requestinfo captures the caller details that are attached to audit events.
package requestinfo

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Headers set by the identity provider and the client application.
const (
	HeaderUserID    = "X-User-ID"
	HeaderSessionID = "X-Session-ID"
)

// maxHeaderLength bounds stored header values.
const maxHeaderLength = 512

type (
	requestCtxKey   struct{}
	principalCtxKey struct{}
)

// FromContext returns the request context stored by the middleware.
func FromContext(ctx context.Context) types.RequestContext {
	if rc, ok := ctx.Value(requestCtxKey{}).(types.RequestContext); ok {
		return rc
	}
	return types.RequestContext{}
}

// PrincipalFromContext returns the authenticated user id, or empty if none was resolved.
func PrincipalFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(principalCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithPrincipal stores an authenticated user id in the context.
func WithPrincipal(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, userID)
}

// Middleware extracts client IP, user agent, session and principal from requests.
type Middleware struct {
	logger *zap.Logger
}

// New creates a new request info middleware.
func New(logger *zap.Logger) *Middleware {
	return &Middleware{
		logger: logger.Named("request_info"),
	}
}

// AsRESTMiddleware returns a bunrouter middleware handler.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		rc := Extract(req.Request)
		ctx := context.WithValue(req.Context(), requestCtxKey{}, rc)

		if principal := clean(req.Header.Get(HeaderUserID)); principal != "" {
			ctx = WithPrincipal(ctx, principal)
		}

		m.logger.Debug("Captured request info",
			zap.String("ip", rc.IPAddress),
			zap.Bool("hasSession", rc.SessionID != ""))

		return next(w, req.WithContext(ctx))
	}
}

// Extract builds a request context from an HTTP request.
func Extract(r *http.Request) types.RequestContext {
	return types.RequestContext{
		IPAddress: ClientIP(r),
		UserAgent: clean(r.UserAgent()),
		SessionID: clean(r.Header.Get(HeaderSessionID)),
	}
}

// ClientIP returns the first valid address of X-Forwarded-For, falling back to the remote address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for _, part := range strings.Split(forwarded, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}

	if realIP := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); realIP != nil {
		return realIP.String()
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}

	return ""
}

// clean normalizes and truncates a header value.
func clean(value string) string {
	value = strings.TrimSpace(norm.NFKC.String(value))
	if len(value) > maxHeaderLength {
		value = value[:maxHeaderLength]
	}
	return value
}
