// Package server provides the HTTP API for ragcore.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cortexlayer/ragcore/internal/config"
	"github.com/cortexlayer/ragcore/internal/indexstore"
	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/storage"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

// Querier answers tenant queries.
type Querier interface {
	Run(ctx context.Context, clientID, query, plan string, topK int) *models.PipelineResult
}

// Ingester adds documents to tenant indexes.
type Ingester interface {
	EmbedAndIndex(ctx context.Context, clientID string, chunks []models.ChunkInput, documentID string) (models.Usage, error)
	IndexText(ctx context.Context, clientID, filename, text, documentID string) (models.Usage, error)
}

// IndexSource describes tenant indexes and drops stale cached copies.
type IndexSource interface {
	Stats(ctx context.Context, clientID string) (*indexstore.Stats, error)
	Evict(clientID string)
}

// Server is the HTTP server for the ragcore API.
type Server struct {
	querier  Querier
	ingester Ingester
	indexes  IndexSource
	catalog  storage.Catalog
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. catalog may be nil.
func NewServer(
	querier Querier,
	ingester Ingester,
	indexes IndexSource,
	catalog storage.Catalog,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		querier:  querier,
		ingester: ingester,
		indexes:  indexes,
		catalog:  catalog,
		config:   cfg,
		logger:   utils.OrNop(logger),
	}
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1/tenants/{clientID}", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/documents", s.handleIngest)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/status", s.handleStatus)
		r.Post("/reload", s.handleReload)
	})
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
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
