// Package protect rejects requests from users who have not completed age
// verification or accepted the active legal documents.
package protect

import (
	"context"
	"net/http"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/rest/middleware/requestinfo"
	"github.com/robalyx/legalgate/internal/rest/respond"
	restTypes "github.com/robalyx/legalgate/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Redirect targets for blocked users.
const (
	RedirectVerifyAge   = "/verify-age"
	RedirectAcceptTerms = "/accept-terms"
)

// Evaluator decides whether a user may proceed.
type Evaluator interface {
	Evaluate(ctx context.Context, userID string) (*types.ConsentStatus, error)
}

// Middleware gates protected routes on the user's consent status.
type Middleware struct {
	evaluator Evaluator
	responder *respond.Responder
	logger    *zap.Logger
}

// New creates a new gate middleware.
func New(evaluator Evaluator, responder *respond.Responder, logger *zap.Logger) *Middleware {
	return &Middleware{
		evaluator: evaluator,
		responder: responder,
		logger:    logger.Named("protect"),
	}
}

// Block returns the response for a status that does not admit, or nil if it admits.
func Block(status *types.ConsentStatus) *restTypes.GateResponse {
	switch {
	case status.NeedsAgeVerification:
		return &restTypes.GateResponse{
			Error:    "age_verification_required",
			Redirect: RedirectVerifyAge,
		}
	case status.NeedsTermsAcceptance || status.NeedsReacceptance:
		return &restTypes.GateResponse{
			Error:            "terms_acceptance_required",
			Redirect:         RedirectAcceptTerms,
			Reacceptance:     status.NeedsReacceptance,
			PendingDocuments: status.PendingDocuments,
		}
	}
	return nil
}

// AsRESTMiddleware returns a bunrouter middleware handler.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		userID := requestinfo.PrincipalFromContext(req.Context())

		status, err := m.evaluator.Evaluate(req.Context(), userID)
		if err != nil {
			m.logger.Error("Gate evaluation failed",
				zap.Error(err),
				zap.String("path", req.URL.Path))
			return m.responder.JSON(w, http.StatusServiceUnavailable, restTypes.ErrorResponse{
				Error:   "gate_unavailable",
				Message: "We could not confirm your account status. Please try again shortly.",
			})
		}

		if block := Block(status); block != nil {
			m.logger.Debug("Blocked request",
				zap.String("userID", userID),
				zap.String("reason", block.Error),
				zap.String("path", req.URL.Path))
			return m.responder.JSON(w, http.StatusForbidden, block)
		}

		return next(w, req)
	}
}
