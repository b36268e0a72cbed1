// Package indexer is the ingest entry point: it embeds pre-chunked text and appends it
// to the tenant's vector index, then records the document in the catalog.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cortexlayer/ragcore/internal/embedding"
	"github.com/cortexlayer/ragcore/internal/extract"
	"github.com/cortexlayer/ragcore/internal/indexstore"
	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/storage"
	"github.com/cortexlayer/ragcore/internal/telemetry"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

// IndexWriter is the part of the index store the indexer writes to.
type IndexWriter interface {
	Add(ctx context.Context, clientID, model string, embeddings [][]float32, records []models.ChunkRecord) error
}

// Indexer embeds chunks and appends them to tenant indexes.
type Indexer struct {
	store    IndexWriter
	embedder embedding.Embedder
	catalog  storage.Catalog
	chunker  *Chunker
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithCatalog records every ingested document in c.
func WithCatalog(c storage.Catalog) IndexerOption {
	return func(idx *Indexer) { idx.catalog = c }
}

// WithChunker sets the chunk window used by IndexText and IndexFile.
func WithChunker(size, overlap int) IndexerOption {
	return func(idx *Indexer) { idx.chunker = NewChunker(size, overlap) }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(store IndexWriter, embedder embedding.Embedder, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:    store,
		embedder: embedder,
		chunker:  NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		metrics:  telemetry.NewMetrics(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// EmbedAndIndex embeds chunks and appends them to clientID's index under documentID
// (a new UUID when empty). Each record keeps a copy of the chunk's metadata as given and
// stores its position in the batch in ChunkIndex. The returned usage is the embedding cost; it is returned
// even when indexing fails afterwards, since the provider already billed it.
// A failed remote replication is logged and not reported: the chunks are indexed
// locally and a retry would duplicate them.
func (idx *Indexer) EmbedAndIndex(ctx context.Context, clientID string, chunks []models.ChunkInput, documentID string) (models.Usage, error) {
	if len(chunks) == 0 {
		return models.ZeroUsage(), nil
	}
	if clientID == "" {
		return models.ZeroUsage(), fmt.Errorf("client id is required")
	}
	if documentID == "" {
		documentID = uuid.New().String()
	}

	ctx, span := telemetry.Tracer().Start(ctx, "indexer.embed_and_index")
	span.SetAttributes(
		attribute.String("client_id", clientID),
		attribute.String("document_id", documentID),
		attribute.Int("chunks", len(chunks)),
	)
	defer span.End()

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, usage, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return models.ZeroUsage(), fmt.Errorf("embed chunks: %w", err)
	}

	records := make([]models.ChunkRecord, len(chunks))
	for i, ch := range chunks {
		meta := make(map[string]interface{}, len(ch.Metadata))
		for k, v := range ch.Metadata {
			meta[k] = v
		}
		records[i] = models.ChunkRecord{
			Text:       ch.Text,
			Metadata:   meta,
			DocumentID: documentID,
			ChunkIndex: i,
		}
	}

	model := idx.embedder.Model()
	if err := idx.store.Add(ctx, clientID, model, vectors, records); err != nil {
		if !errors.Is(err, indexstore.ErrRemoteReplication) {
			span.RecordError(err)
			return usage, fmt.Errorf("index chunks: %w", err)
		}
		idx.logger.Warn("chunks indexed locally but remote replication failed",
			zap.String("client_id", clientID),
			zap.String("document_id", documentID),
			zap.Error(err),
		)
	}
	idx.metrics.IngestedChunks.Add(float64(len(chunks)))

	if idx.catalog != nil {
		doc := &storage.Document{
			ClientID:   clientID,
			DocumentID: documentID,
			Filename:   models.MetadataString(chunks[0].Metadata, "filename", ""),
			Chunks:     len(chunks),
			Model:      model,
			Dimension:  len(vectors[0]),
		}
		if err := idx.catalog.RecordDocument(ctx, doc); err != nil {
			idx.logger.Error("failed to record document in catalog",
				zap.String("client_id", clientID),
				zap.String("document_id", documentID),
				zap.Error(err),
			)
		}
	}

	idx.logger.Info("document indexed",
		zap.String("client_id", clientID),
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
		zap.String("model", model),
		zap.Int("tokens", usage.Tokens),
	)
	return usage, nil
}

// IndexText normalizes and chunks raw text, then ingests it.
func (idx *Indexer) IndexText(ctx context.Context, clientID, filename, text, documentID string) (models.Usage, error) {
	return idx.EmbedAndIndex(ctx, clientID, idx.chunker.Chunk(filename, Preprocess(text)), documentID)
}

// IndexFile ingests a file. A .json file holds either a list of chunks or an object
// {"document_id", "chunks"}; documents (PDF, Office, OpenDocument, RTF) and plain text
// files are extracted to text and chunked.
func (idx *Indexer) IndexFile(ctx context.Context, clientID, path, documentID string) (models.Usage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ZeroUsage(), fmt.Errorf("read file: %w", err)
	}
	ext := filepath.Ext(path)
	if !strings.EqualFold(ext, ".json") {
		text, err := extract.FromBytes(data, ext)
		if err != nil {
			return models.ZeroUsage(), err
		}
		return idx.IndexText(ctx, clientID, filepath.Base(path), text, documentID)
	}

	req, err := decodeChunks(data)
	if err != nil {
		return models.ZeroUsage(), fmt.Errorf("decode %s: %w", path, err)
	}
	if documentID == "" {
		documentID = req.DocumentID
	}
	if err := req.Validate(); err != nil {
		return models.ZeroUsage(), err
	}
	return idx.EmbedAndIndex(ctx, clientID, req.Chunks, documentID)
}

func decodeChunks(data []byte) (*models.IngestRequest, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var chunks []models.ChunkInput
		if err := json.Unmarshal(data, &chunks); err != nil {
			return nil, err
		}
		return &models.IngestRequest{Chunks: chunks}, nil
	}
	var req models.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
