package server

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/tenant"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

const requestIDHeader = "X-Request-ID"

// requestContextMiddleware stamps every request with an ID and a
// request-scoped logger, and records the originating client IP.
func (s *Server) requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := tenant.WithRequestID(r.Context(), requestID)
		ctx = tenant.WithClientIP(ctx, utils.ClientIP(r))
		reqLogger := s.logger.With(
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		ctx = logger.WithLogger(ctx, reqLogger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoveryMiddleware converts handler panics into opaque 500 responses.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.FromContext(r.Context()).Error("Handler panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
				)
				utils.WriteJSONResponse(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
