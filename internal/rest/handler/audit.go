package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/robalyx/legalgate/internal/rest/respond"
	restTypes "github.com/robalyx/legalgate/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// AuditHandler exposes the audit log to operators.
type AuditHandler struct {
	audit     Audit
	responder *respond.Responder
	logger    *zap.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(audit Audit, responder *respond.Responder, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:     audit,
		responder: responder,
		logger:    logger.Named("audit_handler"),
	}
}

// Query returns one page of audit events, newest first. Supported query
// parameters are userId, eventType, start, end (RFC 3339), cursor and limit.
func (h *AuditHandler) Query(w http.ResponseWriter, req bunrouter.Request) error {
	query := req.URL.Query()
	verr := &types.ValidationError{}

	filter := types.AuditFilter{UserID: query.Get("userId")}

	if raw := query.Get("eventType"); raw != "" {
		eventType, err := enum.ParseAuditEventType(raw)
		if err != nil {
			verr.Add("eventType", "is not a known event type")
		}
		filter.EventType = eventType
	}

	filter.StartDate = parseTime(query.Get("start"), "start", verr)
	filter.EndDate = parseTime(query.Get("end"), "end", verr)

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add("limit", "must be a number")
		}
		limit = n
	}

	if err := verr.OrNil(); err != nil {
		return h.responder.Error(w, err)
	}

	cursor, err := restTypes.DecodeCursor(query.Get("cursor"))
	if err != nil {
		return h.responder.Error(w, err)
	}

	events, next, err := h.audit.Query(req.Context(), filter, cursor, limit)
	if err != nil {
		return h.responder.Error(w, err)
	}

	if events == nil {
		events = []*types.AuditEvent{}
	}

	return h.responder.JSON(w, http.StatusOK, restTypes.AuditPageResponse{
		Events:     events,
		NextCursor: restTypes.EncodeCursor(next),
	})
}

func parseTime(raw, field string, verr *types.ValidationError) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		verr.Add(field, "must be an RFC 3339 timestamp")
		return time.Time{}
	}

	return t.UTC()
}
