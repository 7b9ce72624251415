package handler

import (
	"net/http"
	"time"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/robalyx/legalgate/internal/grace"
	"github.com/robalyx/legalgate/internal/rest/middleware/protect"
	"github.com/robalyx/legalgate/internal/rest/middleware/requestinfo"
	"github.com/robalyx/legalgate/internal/rest/respond"
	restTypes "github.com/robalyx/legalgate/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// UserHandler handles age verification, consent and status endpoints of a user.
type UserHandler struct {
	ages      Ages
	consents  Consents
	audit     Audit
	evaluator Evaluator
	grace     grace.Store
	isAdmin   AdminCheck
	responder *respond.Responder
	logger    *zap.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(
	ages Ages,
	consents Consents,
	audit Audit,
	evaluator Evaluator,
	graceStore grace.Store,
	isAdmin AdminCheck,
	responder *respond.Responder,
	logger *zap.Logger,
) *UserHandler {
	return &UserHandler{
		ages:      ages,
		consents:  consents,
		audit:     audit,
		evaluator: evaluator,
		grace:     graceStore,
		isAdmin:   isAdmin,
		responder: responder,
		logger:    logger.Named("user_handler"),
	}
}

// VerifyAge records the user's date of birth.
func (h *UserHandler) VerifyAge(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := targetUser(req, h.isAdmin)
	if err != nil {
		return h.responder.Error(w, err)
	}

	var body restTypes.AgeVerificationRequest
	if err := h.responder.Decode(req.Request, &body); err != nil {
		return h.responder.Error(w, err)
	}

	verificationType, err := enum.ParseVerificationType(body.VerificationType)
	if err != nil {
		return h.responder.Error(w, types.NewValidationError("verificationType", "is not a known verification type"))
	}

	rc := requestinfo.FromContext(req.Context())
	record, err := h.ages.RecordVerification(req.Context(), &types.VerificationRequest{
		UserID: userID,
		BirthDate: types.BirthDate{
			Year:  body.BirthDate.Year,
			Month: body.BirthDate.Month,
			Day:   body.BirthDate.Day,
		},
		VerificationType: verificationType,
		GuardianEmail:    body.GuardianEmail,
		IPAddress:        rc.IPAddress,
		UserAgent:        rc.UserAgent,
		SessionID:        rc.SessionID,
	})
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusCreated, record)
}

// GetAge returns the current age verification of the user.
func (h *UserHandler) GetAge(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := targetUser(req, h.isAdmin)
	if err != nil {
		return h.responder.Error(w, err)
	}

	record, err := h.ages.GetCurrent(req.Context(), userID)
	if err != nil {
		return h.responder.Error(w, err)
	}
	if record == nil {
		return h.responder.Error(w, types.ErrNoAgeVerification)
	}

	return h.responder.JSON(w, http.StatusOK, record)
}

// RequireReverification flags the user for a new age verification. Operator only.
func (h *UserHandler) RequireReverification(w http.ResponseWriter, req bunrouter.Request) error {
	var body restTypes.ReverificationRequest
	if err := h.responder.Decode(req.Request, &body); err != nil {
		return h.responder.Error(w, err)
	}

	var next time.Time
	if body.NextVerificationDate != nil {
		next = body.NextVerificationDate.UTC()
	}

	if err := h.ages.MarkForReverification(req.Context(), req.Param("id"), next); err != nil {
		return h.responder.Error(w, err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

// AcceptTerms records consent to the active document versions and opens the grace window.
func (h *UserHandler) AcceptTerms(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := targetUser(req, h.isAdmin)
	if err != nil {
		return h.responder.Error(w, err)
	}

	var body restTypes.ConsentRequest
	if err := h.responder.Decode(req.Request, &body); err != nil {
		return h.responder.Error(w, err)
	}

	ctx := req.Context()
	rc := requestinfo.FromContext(ctx)

	result, err := h.consents.RecordConsent(ctx, &types.ConsentRequest{
		UserID:         userID,
		TermsVersion:   body.TermsVersion,
		PrivacyVersion: body.PrivacyVersion,
		Metadata: types.ConsentMetadata{
			IPAddress:             rc.IPAddress,
			UserAgent:             rc.UserAgent,
			Country:               body.Country,
			Region:                body.Region,
			SessionID:             rc.SessionID,
			ConsentMethod:         enum.ConsentMethod(body.ConsentMethod),
			ScrollDepthPercent:    body.ScrollDepthPercent,
			TimeSpentSeconds:      body.TimeSpentSeconds,
			MarketingConsent:      body.MarketingConsent,
			DataSaleOptOut:        body.DataSaleOptOut,
			DataProcessingConsent: body.DataProcessingConsent,
			TermsAccepted:         body.TermsAccepted,
			PrivacyAccepted:       body.PrivacyAccepted,
		},
	})
	if err != nil {
		return h.responder.Error(w, err)
	}

	if rc.SessionID != "" {
		if err := h.grace.Set(ctx, userID, rc.SessionID); err != nil {
			h.logger.Warn("Failed to set grace flag", zap.Error(err), zap.String("userID", userID))
		}
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}

	return h.responder.JSON(w, status, restTypes.ConsentResponse{
		Record:       result.Record,
		Created:      result.Created,
		Reacceptance: result.Reacceptance,
	})
}

// ConsentHistory lists every consent record of the user.
func (h *UserHandler) ConsentHistory(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := targetUser(req, h.isAdmin)
	if err != nil {
		return h.responder.Error(w, err)
	}

	records, err := h.consents.History(req.Context(), userID)
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusOK, restTypes.ConsentHistoryResponse{
		UserID:  userID,
		Records: records,
	})
}

// Revoke withdraws the user's consent.
func (h *UserHandler) Revoke(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := targetUser(req, h.isAdmin)
	if err != nil {
		return h.responder.Error(w, err)
	}

	var body restTypes.RevocationRequest
	if err := h.responder.Decode(req.Request, &body); err != nil {
		return h.responder.Error(w, err)
	}

	event, err := h.consents.Revoke(req.Context(), userID, body.Reason, requestinfo.FromContext(req.Context()))
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusCreated, restTypes.EventResponse{Event: event})
}

// Reject records that the user declined a document version.
func (h *UserHandler) Reject(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := targetUser(req, h.isAdmin)
	if err != nil {
		return h.responder.Error(w, err)
	}

	var body restTypes.RejectionRequest
	if err := h.responder.Decode(req.Request, &body); err != nil {
		return h.responder.Error(w, err)
	}

	event, err := h.consents.Reject(
		req.Context(), userID, enum.DocumentType(body.DocumentType), body.Version, body.Reason,
		requestinfo.FromContext(req.Context()),
	)
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusCreated, restTypes.EventResponse{Event: event})
}

// OptOut records a marketing or data sale opt-out.
func (h *UserHandler) OptOut(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := targetUser(req, h.isAdmin)
	if err != nil {
		return h.responder.Error(w, err)
	}

	var body restTypes.OptOutRequest
	if err := h.responder.Decode(req.Request, &body); err != nil {
		return h.responder.Error(w, err)
	}

	event, err := h.consents.RecordOptOut(
		req.Context(), userID, enum.OptOutKind(body.Kind), requestinfo.FromContext(req.Context()),
	)
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusCreated, restTypes.EventResponse{Event: event})
}

// RequestDeletion records a data deletion request.
func (h *UserHandler) RequestDeletion(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := targetUser(req, h.isAdmin)
	if err != nil {
		return h.responder.Error(w, err)
	}

	var body restTypes.DeletionRequest
	if err := h.responder.Decode(req.Request, &body); err != nil {
		return h.responder.Error(w, err)
	}

	event, err := h.consents.RequestDataDeletion(
		req.Context(), userID, body.Reason, requestinfo.FromContext(req.Context()),
	)
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusAccepted, restTypes.EventResponse{Event: event})
}

// Status returns the gate decision for the user. The first time a user is gated
// by a new version pair a re_acceptance_required event is written.
func (h *UserHandler) Status(w http.ResponseWriter, req bunrouter.Request) error {
	userID, err := targetUser(req, h.isAdmin)
	if err != nil {
		return h.responder.Error(w, err)
	}

	ctx := req.Context()
	rc := requestinfo.FromContext(ctx)

	status, err := h.evaluator.Evaluate(ctx, userID)
	if err != nil {
		h.logger.Error("Gate evaluation failed", zap.Error(err), zap.String("userID", userID))
		return h.responder.JSON(w, http.StatusServiceUnavailable, restTypes.ErrorResponse{
			Error:   "gate_unavailable",
			Message: "We could not confirm your account status. Please try again shortly.",
		})
	}

	if status.NeedsReacceptance {
		if _, err := h.audit.RecordReacceptanceRequired(ctx, userID, status, rc); err != nil {
			h.logger.Error("Failed to record re-acceptance requirement",
				zap.Error(err),
				zap.String("userID", userID))
		}
	}

	response := restTypes.StatusResponse{ConsentStatus: *status}
	if block := protect.Block(status); block != nil {
		response.Redirect = block.Redirect
	}

	if rc.SessionID != "" {
		active, err := h.grace.Active(ctx, userID, rc.SessionID)
		if err != nil {
			h.logger.Warn("Failed to read grace flag", zap.Error(err), zap.String("userID", userID))
		}
		response.GraceActive = active
	}

	return h.responder.JSON(w, http.StatusOK, response)
}
