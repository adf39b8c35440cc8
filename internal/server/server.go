package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"infraforge/internal/operations"
	"infraforge/internal/pipeline"
	"infraforge/internal/repositories"
)

// Server exposes the generation pipeline and deployment operations over
// HTTP: start endpoints, incremental log polling, SSE event streaming, and
// status reconciliation.
type Server struct {
	driver      *pipeline.Driver
	ops         *operations.Service
	projects    repositories.ProjectRepository
	generations repositories.GenerationRepository
	opLogs      repositories.OperationLogRepository
	logger      *zap.Logger

	router *mux.Router
	http   *http.Server
}

type Config struct {
	Addr        string
	Driver      *pipeline.Driver
	Operations  *operations.Service
	Projects    repositories.ProjectRepository
	Generations repositories.GenerationRepository
	OpLogs      repositories.OperationLogRepository
	Logger      *zap.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{
		driver:      cfg.Driver,
		ops:         cfg.Operations,
		projects:    cfg.Projects,
		generations: cfg.Generations,
		opLogs:      cfg.OpLogs,
		logger:      cfg.Logger,
	}

	s.router = mux.NewRouter()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE streams stay open past any fixed deadline.
	}
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/workflows/start", s.handleWorkflowStart).Methods("POST")
	api.HandleFunc("/workflows/stream/{sessionID}", s.handleWorkflowStream).Methods("GET")
	api.HandleFunc("/workflows/status/{sessionID}", s.handleWorkflowStatus).Methods("GET")

	api.HandleFunc("/deployment/projects/{projectID}/{operation}", s.handleOperationStart).Methods("POST")
	api.HandleFunc("/deployment/operations/{operationID}/logs", s.handleOperationLogs).Methods("GET")
	api.HandleFunc("/deployment/operations/{operationID}/status", s.handleOperationStatus).Methods("GET")
	api.HandleFunc("/deployment/projects/{projectID}/logs", s.handleProjectLogs).Methods("GET")
	api.HandleFunc("/deployment/projects/{projectID}/status", s.handleProjectStatus).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
