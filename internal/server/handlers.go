package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cortexlayer/ragcore/internal/embedding"
	"github.com/cortexlayer/ragcore/internal/indexstore"
	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/objectstore"
	"github.com/cortexlayer/ragcore/internal/storage"
	"github.com/cortexlayer/ragcore/internal/vector"
)

const maxBodyBytes = 32 << 20

type ingestResponse struct {
	DocumentID string       `json:"document_id"`
	Chunks     int          `json:"chunks"`
	Status     string       `json:"status"`
	Usage      models.Usage `json:"usage_stats"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	var req models.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Normalize()
	s.logger.Debug("query request",
		zap.String("client_id", clientID),
		zap.String("plan", req.Plan),
		zap.Int("top_k", req.TopK),
	)
	s.respondJSON(w, http.StatusOK, s.querier.Run(r.Context(), clientID, req.Query, req.Plan, req.TopK))
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	var req models.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = uuid.New().String()
	}
	s.logger.Debug("ingest request",
		zap.String("client_id", clientID),
		zap.String("document_id", req.DocumentID),
		zap.Int("chunks", len(req.Chunks)),
	)

	var (
		usage models.Usage
		err   error
	)
	raw := strings.TrimSpace(req.Text) != ""
	if raw {
		usage, err = s.ingester.IndexText(r.Context(), clientID, req.Filename, req.Text, req.DocumentID)
	} else {
		usage, err = s.ingester.EmbedAndIndex(r.Context(), clientID, req.Chunks, req.DocumentID)
	}
	if err != nil {
		s.logger.Error("ingest failed", zap.String("client_id", clientID), zap.Error(err))
		s.respondError(w, ingestStatus(err), err.Error())
		return
	}

	resp := ingestResponse{DocumentID: req.DocumentID, Chunks: len(req.Chunks), Status: "indexed", Usage: usage}
	if raw && s.catalog != nil {
		if doc, err := s.catalog.GetDocument(r.Context(), clientID, req.DocumentID); err == nil {
			resp.Chunks = doc.Chunks
		}
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

// ingestStatus maps ingest failures to HTTP status codes.
func ingestStatus(err error) int {
	switch {
	case errors.Is(err, embedding.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, indexstore.ErrModelMismatch), errors.Is(err, vector.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, indexstore.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog not enabled")
		return
	}
	clientID := chi.URLParam(r, "clientID")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	docs, err := s.catalog.ListDocuments(r.Context(), clientID, offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.String("client_id", clientID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []*storage.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReload drops the cached index so writes made by another process (ingest, watch)
// become visible on the next request.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	s.indexes.Evict(clientID)
	s.respondJSON(w, http.StatusOK, map[string]string{"client_id": clientID, "status": "reloaded"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := chi.URLParam(r, "clientID")

	stats, err := s.indexes.Stats(ctx, clientID)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "tenant has no index")
			return
		}
		s.logger.Error("status: load index failed", zap.String("client_id", clientID), zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := map[string]interface{}{"index": stats}

	if s.catalog != nil {
		docCount, err := s.catalog.CountDocuments(ctx, clientID)
		if err != nil {
			s.logger.Error("status: count documents failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		chunkCount, err := s.catalog.CountChunks(ctx, clientID)
		if err != nil {
			s.logger.Error("status: count chunks failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["documents"] = docCount
		resp["chunks"] = chunkCount
	}

	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"embedding_model":      s.config.Embedding.Model,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"embedding_fallback":   s.config.Embedding.FallbackPolicy,
			"index_type":           s.config.Storage.IndexType,
			"mirror_dir":           s.config.Storage.MirrorDir,
			"catalog_path":         s.config.Storage.CatalogPath,
			"mock_mode":            s.config.MockToggle().Enabled(),
		}
		diskBytes, err := storage.DiskUsageBytes(append(storage.CatalogFiles(s.config.Storage.CatalogPath), s.config.Storage.MirrorDir)...)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
