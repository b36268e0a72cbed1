package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

// OpenAIConfig configures OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Dimensions      int
	PricePerMillion float64
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint (or a compatible one via BaseURL).
type OpenAIEmbedder struct {
	client          openai.Client
	model           string
	dimensions      int
	pricePerMillion float64
	logger          *zap.Logger
}

// NewOpenAIEmbedder creates an embedder for cfg.Model.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: api key is required")
	}
	if cfg.Model == "" || cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("openai embedder: model and dimensions are required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIEmbedder{
		client:          openai.NewClient(opts...),
		model:           cfg.Model,
		dimensions:      cfg.Dimensions,
		pricePerMillion: cfg.PricePerMillion,
		logger:          utils.OrNop(logger),
	}, nil
}

// Embed sends all texts in one request. Vectors are returned in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, models.Usage, error) {
	if len(texts) == 0 {
		return nil, models.Usage{Model: e.model}, nil
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, models.Usage{}, fmt.Errorf("openai embeddings: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, models.Usage{}, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		vectors[d.Index] = v
	}
	if err := checkVectors(vectors, len(texts), e.dimensions); err != nil {
		return nil, models.Usage{}, fmt.Errorf("openai embeddings: %w", err)
	}

	tokens := int(resp.Usage.TotalTokens)
	e.logger.Debug("openai embeddings",
		zap.String("model", e.model),
		zap.Int("texts", len(texts)),
		zap.Int("tokens", tokens),
	)
	return vectors, models.Usage{
		Tokens:      tokens,
		InputTokens: tokens,
		CostUSD:     Cost(tokens, e.pricePerMillion),
		Model:       e.model,
	}, nil
}

// Dimensions returns the configured output dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Close is a no-op; the HTTP client needs no teardown.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

// IsQuotaError reports whether err came from an exhausted provider quota or rate limit.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == "insufficient_quota" || apiErr.StatusCode == 429 {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "quota")
}
