// Package server is the HTTP boundary of the intake service. Handlers do
// transport work only; every decision lives in the intake pipeline and
// lead service.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/assignment"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/intake"
)

// Server hosts the public submission endpoint and the lead admin API.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	pipeline   *intake.Pipeline
	service    *intake.LeadService
	engine     *assignment.Engine
	logger     *zap.Logger
}

// NewServer creates the API server and registers all routes.
func NewServer(port string, pipeline *intake.Pipeline, service *intake.LeadService, engine *assignment.Engine, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:   router,
		pipeline: pipeline,
		service:  service,
		engine:   engine,
		logger:   logger,
	}

	router.Use(s.recoveryMiddleware, s.requestContextMiddleware)

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/leads", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/leads/{id}", s.handleGetLead).Methods(http.MethodGet)
	api.HandleFunc("/leads/{id}/status", s.handleUpdateStatus).Methods(http.MethodPatch)
	api.HandleFunc("/leads/{id}/assign", s.handleReassign).Methods(http.MethodPost)
	api.HandleFunc("/leads/{id}/notes", s.handleAddNote).Methods(http.MethodPost)
	api.HandleFunc("/leads/{id}/notes", s.handleListNotes).Methods(http.MethodGet)
	api.HandleFunc("/funnels/{funnelId}/unassigned", s.handleListUnassigned).Methods(http.MethodGet)

	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting API server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}
