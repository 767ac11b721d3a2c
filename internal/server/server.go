// Package server provides the HTTP API for fsmcheck.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/fsmcheck/internal/config"
	"github.com/hyperjump/fsmcheck/internal/models"
	"github.com/hyperjump/fsmcheck/internal/settings"
	"github.com/hyperjump/fsmcheck/internal/storage"
)

// Searcher answers search requests.
type Searcher interface {
	Check(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error)
}

// Refresher runs the ingestion pipeline.
type Refresher interface {
	Refresh(ctx context.Context) (*models.RefreshResult, error)
	Last() (*models.RefreshResult, time.Time)
}

// IndexStatus reports on the live index generation.
type IndexStatus interface {
	Verify(ctx context.Context) models.VerifyResult
	Generation() *storage.Generation
	DiskUsage() (*storage.Usage, error)
}

// SourceWatcher follows the local source file. Nil when watching is disabled.
type SourceWatcher interface {
	SetFile(path string) error
}

// Server is the HTTP server for the fsmcheck API.
type Server struct {
	searcher  Searcher
	refresher Refresher
	index     IndexStatus
	settings  settings.Store
	config    *config.Config
	logger    *zap.Logger
	watch     SourceWatcher
	server    *http.Server
}

// NewServer creates a server with the given dependencies. watch may be nil.
func NewServer(
	searcher Searcher,
	refresher Refresher,
	index IndexStatus,
	st settings.Store,
	cfg *config.Config,
	logger *zap.Logger,
	watch SourceWatcher,
) *Server {
	return &Server{
		searcher:  searcher,
		refresher: refresher,
		index:     index,
		settings:  st,
		config:    cfg,
		logger:    logger,
		watch:     watch,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(s.requestLogger)

	// A refresh runs to completion regardless of how long it takes.
	r.Get("/api/v1/update", s.handleUpdate)
	r.Post("/api/v1/update", s.handleUpdate)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Post("/api/v1/search", s.handleSearch)
		r.Get("/api/v1/settings", s.handleSettings)
		r.Put("/api/v1/settings/source", s.handleSetSource)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
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

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
