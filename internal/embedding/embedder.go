// Package embedding turns text into fixed-dimension vectors through a primary provider,
// an optional same-dimension fallback, and a deterministic mock.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/cortexlayer/ragcore/internal/models"
)

var (
	// ErrEmbeddingUnavailable means no configured provider produced embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrIncompatibleFallback means a fail-open fallback was configured with a different dimension.
	ErrIncompatibleFallback = errors.New("fallback embedder dimension differs from primary")
)

// Embedder produces one vector per input text, all of length Dimensions().
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, models.Usage, error)
	Dimensions() int
	// Model identifies the vector space; vectors from different models must not share an index.
	Model() string
	Close() error
}

// Cost returns the USD cost of tokens at pricePerMillion.
func Cost(tokens int, pricePerMillion float64) float64 {
	return float64(tokens) / 1_000_000 * pricePerMillion
}

// checkVectors verifies a provider returned one vector of the right length per text.
func checkVectors(vectors [][]float32, n, dim int) error {
	if len(vectors) != n {
		return fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), n)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("provider returned vector %d with dimension %d, expected %d", i, len(v), dim)
		}
	}
	return nil
}
