// Package server provides the HTTP API for filmdex.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/filmdex/internal/config"
	"github.com/hyperjump/filmdex/internal/metrics"
	"github.com/hyperjump/filmdex/internal/models"
)

// Catalog is the service facade the handlers call.
type Catalog interface {
	CreateRecord(ctx context.Context, in *models.MovieInput) (*models.Movie, error)
	GetRecord(ctx context.Context, id string) (*models.Movie, error)
	SearchRecords(ctx context.Context, f *models.Filter) (*models.PaginatedResult, error)
	UpdateRecord(ctx context.Context, id string, patch *models.MoviePatch) (*models.Movie, error)
	DeleteRecord(ctx context.Context, id string) error
	ListDirectors(ctx context.Context) ([]string, error)
}

// Server is the HTTP server for the filmdex API.
type Server struct {
	catalog   Catalog
	config    *config.ServerConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
	dataPaths map[string]string
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records HTTP traffic in m and serves it on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDataPaths reports the on-disk size of each named backend path on /health.
func WithDataPaths(paths map[string]string) Option {
	return func(s *Server) { s.dataPaths = paths }
}

// NewServer creates a server over the catalog.
func NewServer(catalog Catalog, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog: catalog,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if s.metrics != nil {
		r.Use(s.instrument)
	}

	r.Post("/movie", s.handleCreateMovie)
	r.Get("/movie", s.handleSearchMovies)
	r.Get("/movie/{id}", s.handleGetMovie)
	r.Patch("/movie/{id}", s.handleUpdateMovie)
	r.Delete("/movie/{id}", s.handleDeleteMovie)
	r.Get("/directors", s.handleListDirectors)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
