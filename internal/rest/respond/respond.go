// Package respond writes JSON responses and maps domain errors to HTTP statuses.
package respond

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/robalyx/legalgate/internal/database/types"
	"github.com/robalyx/legalgate/internal/database/types/enum"
	restTypes "github.com/robalyx/legalgate/internal/rest/types"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; legal document content is the largest payload.
const maxBodyBytes = 4 << 20

var (
	// ErrMalformedBody is returned when a request body is not valid JSON.
	ErrMalformedBody = errors.New("malformed request body")
	// ErrForbidden is returned when the caller may not act on the requested user.
	ErrForbidden = errors.New("not allowed to access this user")
)

// Responder writes responses for handlers.
type Responder struct {
	validate       *validator.Validate
	supportContact string
	logger         *zap.Logger
}

// New creates a responder. supportContact is shown with blocking errors.
func New(supportContact string, logger *zap.Logger) *Responder {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Responder{
		validate:       validate,
		supportContact: supportContact,
		logger:         logger.Named("respond"),
	}
}

// JSON writes v with the given status code.
func (r *Responder) JSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		r.logger.Error("Failed to encode response", zap.Error(err))
		return err
	}

	return nil
}

// Decode reads and validates a JSON request body into dst.
func (r *Responder) Decode(req *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}

	if len(body) > 0 {
		if err := sonic.Unmarshal(body, dst); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedBody, err)
		}
	}

	return r.Validate(dst)
}

// Validate checks struct tags and converts failures into a ValidationError.
func (r *Responder) Validate(v any) error {
	err := r.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	result := &types.ValidationError{}
	for _, fe := range verrs {
		result.Add(fieldPath(fe), describe(fe))
	}

	return result
}

// Error maps err to a status code and writes the error body.
func (r *Responder) Error(w http.ResponseWriter, err error) error {
	status, body := r.classify(err)

	switch {
	case status >= http.StatusInternalServerError:
		r.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	case status == http.StatusForbidden:
		r.logger.Info("Request blocked", zap.Error(err))
	default:
		r.logger.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}

	return r.JSON(w, status, body)
}

// classify maps a domain error to its HTTP representation.
func (r *Responder) classify(err error) (int, restTypes.ErrorResponse) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, restTypes.ErrorResponse{
			Error:   "validation_failed",
			Message: "Some fields need to be corrected.",
			Fields:  verr.Fields,
		}
	}

	switch {
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorBody("forbidden", err)
	case errors.Is(err, types.ErrAgeRestriction):
		dismissable := false
		return http.StatusForbidden, restTypes.ErrorResponse{
			Error: "age_restricted",
			Message: "You must meet the minimum age requirement to use this service. " +
				"If you believe this is a mistake, please contact support.",
			SupportContact: r.supportContact,
			Dismissable:    &dismissable,
		}
	case errors.Is(err, types.ErrNoActiveDocument):
		return http.StatusServiceUnavailable, restTypes.ErrorResponse{
			Error:          "legal_documents_unavailable",
			Message:        "Legal documents are not available right now. Please try again later.",
			SupportContact: r.supportContact,
		}
	case errors.Is(err, types.ErrDuplicateVersion):
		return http.StatusConflict, errorBody("duplicate_version", err)
	case errors.Is(err, types.ErrVersionNotNewer):
		return http.StatusConflict, errorBody("version_not_newer", err)
	case errors.Is(err, types.ErrVersionMismatch):
		return http.StatusConflict, errorBody("version_mismatch", err)
	case errors.Is(err, types.ErrNoAgeVerification):
		return http.StatusConflict, errorBody("age_verification_required", err)
	case errors.Is(err, types.ErrNoConsent):
		return http.StatusNotFound, errorBody("no_consent", err)
	case errors.Is(err, types.ErrDocumentNotFound):
		return http.StatusNotFound, errorBody("document_not_found", err)
	case errors.Is(err, types.ErrUnknownDocumentType),
		errors.Is(err, types.ErrInvalidUserID),
		errors.Is(err, enum.ErrInvalidValue),
		errors.Is(err, restTypes.ErrInvalidCursor),
		errors.Is(err, ErrMalformedBody):
		return http.StatusBadRequest, errorBody("bad_request", err)
	}

	return http.StatusInternalServerError, restTypes.ErrorResponse{
		Error:   "internal_error",
		Message: "Internal server error",
	}
}

func errorBody(code string, err error) restTypes.ErrorResponse {
	return restTypes.ErrorResponse{Error: code, Message: err.Error()}
}

// fieldPath returns the json path of a failed field without the top-level struct name.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

// describe turns a validator tag into a short user-facing message.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "alpha":
		return "must contain only letters"
	default:
		return "is invalid"
	}
}
