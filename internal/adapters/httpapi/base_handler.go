package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/replicore/permcore/internal/adapters/httpapi/middleware"
	"github.com/replicore/permcore/internal/permissions/domain"
	"github.com/replicore/permcore/internal/platform/apperror"
	"github.com/replicore/permcore/internal/platform/logger"
)

// BaseHandler contains common dependencies and helper methods for all handlers
type BaseHandler struct {
	logger logger.Logger
}

// NewBaseHandler creates a new base handler with common dependencies
func NewBaseHandler(logger logger.Logger) *BaseHandler {
	return &BaseHandler{
		logger: logger,
	}
}

// WriteJSONError writes a JSON error response
func (h *BaseHandler) WriteJSONError(w http.ResponseWriter, r *http.Request, code string, message string, statusCode int) {
	h.writeJSONError(w, r, code, message, statusCode, nil)
}

func (h *BaseHandler) writeJSONError(w http.ResponseWriter, r *http.Request, code string, message string, statusCode int, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := map[string]any{
		"error":   code,
		"message": message,
	}

	for k, v := range details {
		errorResp[k] = v
	}

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		h.logger.Error(r.Context(), "failed to encode error response",
			"error", err,
			"error_code", code,
			"status_code", statusCode,
		)
	}
}

// HandleError is a generic error handler that translates AppError into JSON responses
func (h *BaseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError

	if errors.As(err, &appErr) {
		details := map[string]any{
			"business_code": string(appErr.BusinessCode),
		}
		if appErr.Details != nil {
			details["context"] = appErr.Details
		}

		h.writeJSONError(w, r, string(appErr.Code), appErr.Message, appErr.HTTPStatus, details)
	} else {
		h.logger.Error(r.Context(), "unhandled internal error", "error", err)
		h.writeJSONError(w, r, "INTERNAL_SERVER_ERROR", "An unexpected error occurred", http.StatusInternalServerError, nil)
	}
}

// WriteJSONResponse writes a successful JSON response
func (h *BaseHandler) WriteJSONResponse(w http.ResponseWriter, r *http.Request, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error(r.Context(), "failed to encode response",
			"error", err,
			"status_code", statusCode,
		)
	}
}

// AuthFromContext returns the Auth the middleware resolved for this
// request, falling back to an anonymous session if the route was wired
// without the auth middleware.
func (h *BaseHandler) AuthFromContext(r *http.Request) domain.Auth {
	if a, ok := middleware.GetAuth(r.Context()); ok {
		return a
	}
	return domain.Auth{}
}
