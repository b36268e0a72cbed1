// Package search turns a tenant query into scored chunks from the tenant's vector index.
package search

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cortexlayer/ragcore/internal/embedding"
	"github.com/cortexlayer/ragcore/internal/indexstore"
	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/telemetry"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

// DefaultTopK is used when Retrieve is called with topK <= 0.
const DefaultTopK = models.DefaultTopK

// Index is the part of the index store the retriever reads.
type Index interface {
	Search(ctx context.Context, clientID string, query []float32, k int) ([]indexstore.Hit, error)
}

// Retriever embeds queries and searches the tenant's index.
type Retriever struct {
	embedder embedding.Embedder
	index    Index
	logger   *zap.Logger
}

// NewRetriever creates a retriever. A nil logger is replaced by a no-op logger.
func NewRetriever(embedder embedding.Embedder, index Index, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   utils.OrNop(logger),
	}
}

// Retrieve returns up to topK chunks ordered by ascending distance. It never fails:
// blank queries, embedding failures and store failures all yield an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, clientID, query string, topK int) []models.RetrievedChunk {
	if strings.TrimSpace(query) == "" {
		r.logger.Warn("empty query received for retrieval", zap.String("client_id", clientID))
		return nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	ctx, span := telemetry.Tracer().Start(ctx, "search.retrieve")
	span.SetAttributes(attribute.String("client_id", clientID), attribute.Int("top_k", topK))
	defer span.End()

	vectors, _, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		if embedding.IsQuotaError(err) {
			r.logger.Error("embedding quota exhausted, returning empty context",
				zap.String("client_id", clientID), zap.Error(err))
		} else {
			r.logger.Error("query embedding failed", zap.String("client_id", clientID), zap.Error(err))
		}
		return nil
	}
	if len(vectors) != 1 {
		r.logger.Error("query embedding returned no vector", zap.String("client_id", clientID))
		return nil
	}

	hits, err := r.index.Search(ctx, clientID, vectors[0], topK)
	if err != nil {
		span.RecordError(err)
		r.logger.Error("index search failed", zap.String("client_id", clientID), zap.Error(err))
		return nil
	}

	chunks := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if h.Record.Text == "" || h.Record.Metadata == nil {
			continue
		}
		chunks = append(chunks, models.RetrievedChunk{
			Text:     h.Record.Text,
			Metadata: h.Record.Metadata,
			Score:    h.Score,
		})
	}
	span.SetAttributes(attribute.Int("retrieved", len(chunks)))
	r.logger.Info("retrieved chunks", zap.String("client_id", clientID), zap.Int("count", len(chunks)))
	return chunks
}
