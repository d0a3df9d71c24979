package server

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

type errorBody struct {
	Error      string                 `json:"error"`
	Fields     []apperrors.FieldError `json:"fields,omitempty"`
	Allowed    []string               `json:"allowedTransitions,omitempty"`
	RetryAfter int                    `json:"retryAfter,omitempty"`
}

// writeError maps the internal error taxonomy onto HTTP responses.
// Anything unmapped is an opaque 500; internals never leak to callers.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		utils.WriteJSONResponse(w, http.StatusBadRequest, errorBody{
			Error:  "validation failed",
			Fields: validationErr.Fields,
		})
		return
	}

	var rateLimitErr *apperrors.RateLimitError
	if errors.As(err, &rateLimitErr) {
		w.Header().Set("Retry-After", strconv.Itoa(rateLimitErr.RetryAfter))
		utils.WriteJSONResponse(w, http.StatusTooManyRequests, errorBody{
			Error:      "too many requests",
			RetryAfter: rateLimitErr.RetryAfter,
		})
		return
	}

	var transitionErr *apperrors.TransitionError
	if errors.As(err, &transitionErr) {
		utils.WriteJSONResponse(w, http.StatusUnprocessableEntity, errorBody{
			Error:   transitionErr.Error(),
			Allowed: transitionErr.Allowed,
		})
		return
	}

	switch {
	case apperrors.IsNotFoundError(err):
		utils.WriteJSONResponse(w, http.StatusNotFound, errorBody{Error: "not found"})
	case apperrors.IsConflictError(err):
		utils.WriteJSONResponse(w, http.StatusConflict, errorBody{Error: "conflicting concurrent update"})
	case apperrors.IsBadRequestError(err):
		utils.WriteJSONResponse(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case apperrors.IsStoreUnavailableError(err):
		logger.FromContext(r.Context()).Error("Dependency unavailable", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusServiceUnavailable, errorBody{Error: "service temporarily unavailable"})
	default:
		logger.FromContext(r.Context()).Error("Unhandled request error", zap.Error(err))
		utils.WriteJSONResponse(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
