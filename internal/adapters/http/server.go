// Package http serves the relation query API over gorilla/mux.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jobrunner/spatialquery/internal/config"
	"github.com/jobrunner/spatialquery/internal/ports/input"
)

// Services are the application ports the handlers call. Sync may be nil,
// in which case POST /api/v1/sync is not routed.
type Services struct {
	Query    input.QueryService
	Packages input.PackageCatalog
	Health   input.HealthChecker
	Sync     input.SyncTrigger
}

// Server is the HTTP front end of the query service.
type Server struct {
	cfg      config.ServerConfig
	services Services
	logger   *slog.Logger
	router   *mux.Router
	server   *http.Server
}

// NewServer builds the router and the underlying http.Server.
func NewServer(cfg config.ServerConfig, services Services, logger *slog.Logger) *Server {
	s := &Server{cfg: cfg, services: services, logger: logger}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogger, s.recoverer)
	if s.cfg.RateLimit.Enabled {
		r.Use(s.rateLimitMiddleware(s.cfg.RateLimit))
	}
	if s.cfg.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/relations", s.handleRelations).Methods(http.MethodGet)
	api.HandleFunc("/packages", s.handleListPackages).Methods(http.MethodGet)
	api.HandleFunc("/packages/{packageId}", s.handleGetPackage).Methods(http.MethodGet)
	api.HandleFunc("/packages/{packageId}/layers", s.handleGetLayers).Methods(http.MethodGet)
	if s.services.Sync != nil {
		api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	}

	return r
}

// Use appends middleware to the router.
func (s *Server) Use(mw ...mux.MiddlewareFunc) {
	s.router.Use(mw...)
}

// Mount serves handler for GET requests on path, e.g. the metrics endpoint.
func (s *Server) Mount(path string, handler http.Handler) {
	s.router.Handle(path, handler).Methods(http.MethodGet)
}

// Router returns the router, for use behind a TLS listener.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.cfg.Address())
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
