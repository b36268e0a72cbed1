package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlayer/ragcore/internal/config"
	"github.com/cortexlayer/ragcore/internal/models"
)

// stubEmbedder returns constant vectors or a fixed error and counts calls.
type stubEmbedder struct {
	model string
	dim   int
	err   error
	short bool
	calls atomic.Int32
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, models.Usage, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, models.Usage{}, s.err
	}
	n := len(texts)
	if s.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, s.dim)
		out[i][0] = 1
	}
	return out, models.Usage{Tokens: len(texts), Model: s.model, CostUSD: 0.001}, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dim }
func (s *stubEmbedder) Model() string   { return s.model }
func (s *stubEmbedder) Close() error    { return nil }

var errProvider = errors.New("provider down")

func TestChainPrimary(t *testing.T) {
	primary := &stubEmbedder{model: "primary", dim: 8}
	chain, err := NewChain(primary)
	require.NoError(t, err)

	vectors, usage, err := chain.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, "primary", usage.Model)
	assert.Equal(t, 2, usage.Tokens)
	assert.Equal(t, "primary", chain.Model())
	assert.Equal(t, 8, chain.Dimensions())
}

func TestChainEmptyBatch(t *testing.T) {
	primary := &stubEmbedder{model: "primary", dim: 8}
	chain, err := NewChain(primary)
	require.NoError(t, err)

	vectors, usage, err := chain.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, usage.Tokens)
	assert.Zero(t, primary.calls.Load())
}

func TestChainFailClosed(t *testing.T) {
	primary := &stubEmbedder{model: "primary", dim: 8, err: errProvider}
	fallback := &stubEmbedder{model: "fallback", dim: 8}
	chain, err := NewChain(primary, WithFallback(fallback, FailClosed))
	require.NoError(t, err)

	_, _, err = chain.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, errProvider)
	assert.Zero(t, fallback.calls.Load())
}

func TestChainFailOpen(t *testing.T) {
	primary := &stubEmbedder{model: "primary", dim: 8, err: errProvider}
	fallback := &stubEmbedder{model: "fallback", dim: 8}
	chain, err := NewChain(primary, WithFallback(fallback, FailOpen))
	require.NoError(t, err)

	vectors, usage, err := chain.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, "fallback", usage.Model)
	assert.Equal(t, int32(1), fallback.calls.Load())
	assert.Equal(t, "primary", chain.Model())
}

func TestChainFailOpenBothFail(t *testing.T) {
	primary := &stubEmbedder{model: "primary", dim: 8, err: errProvider}
	fallback := &stubEmbedder{model: "fallback", dim: 8, err: errors.New("fallback down")}
	chain, err := NewChain(primary, WithFallback(fallback, FailOpen))
	require.NoError(t, err)

	_, _, err = chain.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestChainIncompatibleFallback(t *testing.T) {
	primary := &stubEmbedder{model: "text-embedding-3-small", dim: 1536}
	fallback := &stubEmbedder{model: ONNXModel, dim: 384}

	_, err := NewChain(primary, WithFallback(fallback, FailOpen))
	assert.ErrorIs(t, err, ErrIncompatibleFallback)

	// fail_closed never routes to the fallback, so the mismatch is allowed
	_, err = NewChain(primary, WithFallback(fallback, FailClosed))
	assert.NoError(t, err)
}

func TestChainFailOpenRequiresFallback(t *testing.T) {
	_, err := NewChain(&stubEmbedder{model: "p", dim: 4}, WithFallback(nil, FailOpen))
	assert.Error(t, err)
}

func TestChainUnknownPolicy(t *testing.T) {
	_, err := NewChain(&stubEmbedder{model: "p", dim: 4}, WithFallback(nil, FallbackPolicy("sometimes")))
	assert.Error(t, err)
}

func TestChainNilPrimary(t *testing.T) {
	_, err := NewChain(nil)
	assert.Error(t, err)
}

func TestChainMockMode(t *testing.T) {
	primary := &stubEmbedder{model: "primary", dim: 16, err: errProvider}
	chain, err := NewChain(primary, WithMock(nil, config.StaticToggle(true)))
	require.NoError(t, err)

	vectors, usage, err := chain.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Len(t, vectors[0], 16)
	assert.Equal(t, MockModel, usage.Model)
	assert.Zero(t, usage.CostUSD)
	assert.Zero(t, primary.calls.Load())
	assert.Equal(t, MockModel, chain.Model())
}

func TestChainMockToggleReadPerCall(t *testing.T) {
	t.Setenv(config.MockEnvVar, "false")
	primary := &stubEmbedder{model: "primary", dim: 4}
	chain, err := NewChain(primary, WithMock(nil, config.EnvToggle(config.MockEnvVar)))
	require.NoError(t, err)

	assert.Equal(t, "primary", chain.Model())
	t.Setenv(config.MockEnvVar, "TRUE")
	assert.Equal(t, MockModel, chain.Model())

	_, _, err = chain.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Zero(t, primary.calls.Load())
}

func TestChainRejectsShortResponse(t *testing.T) {
	primary := &stubEmbedder{model: "primary", dim: 4, short: true}
	chain, err := NewChain(primary)
	require.NoError(t, err)

	_, _, err = chain.Embed(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestChainCircuitOpens(t *testing.T) {
	primary := &stubEmbedder{model: "flaky", dim: 4, err: errProvider}
	chain, err := NewChain(primary)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err = chain.Embed(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	}
	// the breaker trips after three failures and short-circuits the rest
	assert.Equal(t, int32(3), primary.calls.Load())
}

func TestChainRateLimitCanceled(t *testing.T) {
	primary := &stubEmbedder{model: "primary", dim: 4}
	chain, err := NewChain(primary, WithRateLimit(0.001, 1), WithConcurrency(1))
	require.NoError(t, err)

	_, _, err = chain.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = chain.Embed(ctx, []string{"b"})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, int32(1), primary.calls.Load())
}
