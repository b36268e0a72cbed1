package embedding

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

// MockModel is the model name reported by MockEmbedder.
const MockModel = "mock-embedding"

// MockEmbedder is a deterministic, network-free embedder. Each text is hashed (FNV-64a)
// into a seed that drives a PRNG filling a unit-length vector, so the same text always
// yields the same vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding per text. Usage counts whitespace tokens at zero cost.
func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, models.Usage, error) {
	if err := ctx.Err(); err != nil {
		return nil, models.Usage{}, err
	}
	vectors := make([][]float32, len(texts))
	tokens := 0
	for i, text := range texts {
		vectors[i] = e.vector(text)
		tokens += CountTokens(text)
	}
	return vectors, models.Usage{Tokens: tokens, InputTokens: tokens, Model: MockModel}, nil
}

func (e *MockEmbedder) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	r := rand.New(rand.NewSource(int64(h.Sum64())))
	v := make([]float32, e.dimensions)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	utils.NormalizeL2(v)
	return v
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns MockModel.
func (e *MockEmbedder) Model() string {
	return MockModel
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
