package handler

import (
	"net/http"
	"time"

	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	"github.com/robalyx/legalgate/internal/rest/middleware/requestinfo"
	"github.com/robalyx/legalgate/internal/rest/respond"
	restTypes "github.com/robalyx/legalgate/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// DocumentHandler serves legal documents and their publishing.
type DocumentHandler struct {
	documents Documents
	isAdmin   AdminCheck
	responder *respond.Responder
	logger    *zap.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(
	documents Documents, isAdmin AdminCheck, responder *respond.Responder, logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		isAdmin:   isAdmin,
		responder: responder,
		logger:    logger.Named("document_handler"),
	}
}

// GetActive returns the active version of a document type.
func (h *DocumentHandler) GetActive(w http.ResponseWriter, req bunrouter.Request) error {
	docType, err := documentType(req)
	if err != nil {
		return h.responder.Error(w, err)
	}

	doc, err := h.documents.GetActive(req.Context(), docType)
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusOK, doc)
}

// GetVersion returns a specific document version.
func (h *DocumentHandler) GetVersion(w http.ResponseWriter, req bunrouter.Request) error {
	docType, err := documentType(req)
	if err != nil {
		return h.responder.Error(w, err)
	}

	doc, err := h.documents.GetByVersion(req.Context(), docType, req.Param("version"))
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusOK, doc)
}

// History lists every published version of a document type.
func (h *DocumentHandler) History(w http.ResponseWriter, req bunrouter.Request) error {
	docType, err := documentType(req)
	if err != nil {
		return h.responder.Error(w, err)
	}

	docs, err := h.documents.List(req.Context(), docType)
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusOK, restTypes.DocumentHistoryResponse{
		DocumentType: docType,
		Documents:    docs,
	})
}

// Publish activates a new document version.
func (h *DocumentHandler) Publish(w http.ResponseWriter, req bunrouter.Request) error {
	var body restTypes.PublishDocumentRequest
	if err := h.responder.Decode(req.Request, &body); err != nil {
		return h.responder.Error(w, err)
	}

	effective := time.Now().UTC()
	if body.EffectiveDate != nil {
		effective = body.EffectiveDate.UTC()
	}

	result, err := h.documents.Publish(req.Context(), &types.PublishRequest{
		DocumentType:   enum.DocumentType(body.DocumentType),
		Version:        body.Version,
		Content:        body.Content,
		EffectiveDate:  effective,
		MaterialChange: body.MaterialChange,
		ChangesSummary: body.ChangesSummary,
		CreatedBy:      body.CreatedBy,
	})
	if err != nil {
		return h.responder.Error(w, err)
	}

	response := restTypes.PublishDocumentResponse{Document: result.Document}
	if result.Previous != nil {
		response.PreviousVersion = result.Previous.Version
	}

	return h.responder.JSON(w, http.StatusCreated, response)
}

// RecordView logs that a document version was displayed. On routes without a
// user id the caller may be anonymous.
func (h *DocumentHandler) RecordView(w http.ResponseWriter, req bunrouter.Request) error {
	ctx := req.Context()

	userID := requestinfo.PrincipalFromContext(ctx)
	if req.Param("id") != "" {
		var err error
		if userID, err = targetUser(req, h.isAdmin); err != nil {
			return h.responder.Error(w, err)
		}
	}

	var body restTypes.ViewRequest
	if err := h.responder.Decode(req.Request, &body); err != nil {
		return h.responder.Error(w, err)
	}

	event, err := h.documents.RecordView(
		ctx,
		userID,
		enum.DocumentType(body.DocumentType),
		body.Version,
		requestinfo.FromContext(ctx),
	)
	if err != nil {
		return h.responder.Error(w, err)
	}

	return h.responder.JSON(w, http.StatusCreated, restTypes.EventResponse{Event: event})
}
