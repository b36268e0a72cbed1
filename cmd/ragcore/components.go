package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cortexlayer/ragcore/internal/config"
	"github.com/cortexlayer/ragcore/internal/embedding"
	"github.com/cortexlayer/ragcore/internal/generation"
	"github.com/cortexlayer/ragcore/internal/indexer"
	"github.com/cortexlayer/ragcore/internal/indexstore"
	"github.com/cortexlayer/ragcore/internal/objectstore"
	"github.com/cortexlayer/ragcore/internal/pipeline"
	"github.com/cortexlayer/ragcore/internal/search"
	"github.com/cortexlayer/ragcore/internal/storage"
	"github.com/cortexlayer/ragcore/internal/vector"
)

// Components holds the wired core.
type Components struct {
	Store     *indexstore.Store
	Catalog   *storage.SQLiteCatalog
	Embedder  *embedding.Chain
	Generator *generation.Chain
	Retriever *search.Retriever
	Pipeline  *pipeline.Pipeline
	Indexer   *indexer.Indexer
}

// Close releases the catalog and embedders.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	mockToggle := cfg.MockToggle()

	mirror, err := indexstore.NewDiskMirror(cfg.Storage.MirrorDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index mirror: %w", err)
	}

	var remote objectstore.Store
	if cfg.ObjectStore.Bucket != "" {
		s3, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Bucket:    cfg.ObjectStore.Bucket,
			Region:    cfg.ObjectStore.Region,
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Prefix:    cfg.ObjectStore.Prefix,
		}, objectstore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object store: %w", err)
		}
		remote = s3
	} else {
		logger.Warn("no object store bucket configured; tenant indexes stay local")
	}

	indexType := cfg.Storage.IndexType
	if indexType == string(vector.IndexTypeFAISS) && !vector.IsFAISSAvailable() {
		logger.Warn("FAISS requested but not compiled in, falling back to hnsw")
		indexType = string(vector.IndexTypeHNSW)
	}
	store, err := indexstore.New(mirror, remote,
		indexstore.WithLogger(logger),
		indexstore.WithMockToggle(mockToggle),
		indexstore.WithIndexType(indexType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index store: %w", err)
	}
	logger.Info("index store initialized",
		zap.String("mirror_dir", cfg.Storage.MirrorDir),
		zap.String("index_type", indexType),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()),
		zap.Bool("remote", remote != nil),
	)

	chain, err := newEmbeddingChain(cfg, mockToggle, logger)
	if err != nil {
		return nil, err
	}

	generator, err := newGenerationChain(cfg, logger)
	if err != nil {
		_ = chain.Close()
		return nil, err
	}

	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
	if err != nil {
		_ = chain.Close()
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	retriever := search.NewRetriever(embedding.NewCachedEmbedder(chain, cfg.Embedding.CacheSize), store, logger)
	p := pipeline.New(retriever, generator, pipeline.Config{
		TopK:                cfg.Pipeline.TopK,
		EscalationThreshold: cfg.Pipeline.EscalationThreshold,
		MaxCitations:        cfg.Pipeline.MaxCitations,
		MaxTokens:           cfg.Generation.MaxTokens,
	}, logger)
	idx := indexer.NewIndexer(store, chain, indexer.WithCatalog(catalog), indexer.WithLogger(logger))

	return &Components{
		Store:     store,
		Catalog:   catalog,
		Embedder:  chain,
		Generator: generator,
		Retriever: retriever,
		Pipeline:  p,
		Indexer:   idx,
	}, nil
}

// newEmbeddingChain picks the primary embedder: OpenAI when a key is set, else the local
// ONNX model, else deterministic mock vectors. ONNX serves as the fail-open fallback only
// when its dimension matches the primary's; NewChain rejects anything else.
func newEmbeddingChain(cfg *config.Config, mockToggle config.Toggle, logger *zap.Logger) (*embedding.Chain, error) {
	ec := cfg.Embedding
	var (
		primary embedding.Embedder
		onnx    embedding.Embedder
	)
	if ec.ONNXModelPath != "" {
		e, err := embedding.NewONNXEmbedder(ec.ONNXModelPath, ec.ONNXDimensions, ec.MaxTokens)
		if err != nil {
			logger.Warn("ONNX embedder unavailable", zap.String("model_path", ec.ONNXModelPath), zap.Error(err))
		} else {
			onnx = e
		}
	}

	switch {
	case ec.APIKey != "":
		e, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:          ec.APIKey,
			BaseURL:         ec.BaseURL,
			Model:           ec.Model,
			Dimensions:      ec.Dimensions,
			PricePerMillion: ec.PricePerMillion,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		primary = e
	case onnx != nil:
		logger.Warn("no embedding API key; using local ONNX model as primary")
		primary, onnx = onnx, nil
	default:
		logger.Warn("no embedding provider configured; using mock embeddings")
		primary = embedding.NewMockEmbedder(ec.Dimensions)
	}

	opts := []embedding.ChainOption{
		embedding.WithLogger(logger),
		embedding.WithMock(embedding.NewMockEmbedder(primary.Dimensions()), mockToggle),
		embedding.WithConcurrency(ec.MaxConcurrent),
		embedding.WithRateLimit(ec.RequestsPerSecond, ec.MaxConcurrent),
	}
	policy := embedding.FallbackPolicy(ec.FallbackPolicy)
	if policy == embedding.FailOpen {
		opts = append(opts, embedding.WithFallback(onnx, policy))
	} else if onnx != nil {
		_ = onnx.Close()
	}

	chain, err := embedding.NewChain(primary, opts...)
	if err != nil {
		_ = primary.Close()
		if onnx != nil {
			_ = onnx.Close()
		}
		if errors.Is(err, embedding.ErrIncompatibleFallback) {
			return nil, fmt.Errorf("%w; use fallback_policy %q or a fallback with the primary's dimension", err, config.FallbackFailClosed)
		}
		return nil, fmt.Errorf("failed to initialize embedding chain: %w", err)
	}
	logger.Info("embedding chain initialized",
		zap.String("model", primary.Model()),
		zap.Int("dimensions", primary.Dimensions()),
		zap.String("fallback_policy", string(policy)),
	)
	return chain, nil
}

func newGenerationChain(cfg *config.Config, logger *zap.Logger) (*generation.Chain, error) {
	gc := cfg.Generation
	provider := func(pc config.ProviderConfig) (generation.Provider, error) {
		if pc.APIKey == "" {
			logger.Warn("generation provider has no API key; calls to it will fail", zap.String("provider", pc.Name))
			return generation.Unconfigured(pc.Name), nil
		}
		return generation.NewOpenAIProvider(pc, gc.Temperature)
	}
	cheap, err := provider(gc.Cheap)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cheap provider: %w", err)
	}
	premium, err := provider(gc.Premium)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize premium provider: %w", err)
	}
	return generation.NewChain(cheap, premium,
		generation.WithLogger(logger),
		generation.WithConcurrency(gc.MaxConcurrent),
		generation.WithRateLimit(gc.RequestsPerSecond, gc.MaxConcurrent),
	)
}
