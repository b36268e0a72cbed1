package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/cortexlayer/ragcore/internal/config"
	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/telemetry"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

// FallbackPolicy decides what happens when the primary embedder fails.
type FallbackPolicy string

const (
	// FailClosed reports ErrEmbeddingUnavailable without trying another provider.
	FailClosed FallbackPolicy = config.FallbackFailClosed
	// FailOpen retries on the fallback embedder. Only valid when both share a dimension.
	FailOpen FallbackPolicy = config.FallbackFailOpen
)

// Chain routes embedding requests to the mock, primary or fallback embedder.
// Provider calls are bounded in concurrency, paced by a rate limiter and guarded
// by a circuit breaker per provider.
type Chain struct {
	primary  Embedder
	fallback Embedder
	mock     Embedder
	policy   FallbackPolicy
	toggle   config.Toggle

	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	breakers map[Embedder]*gobreaker.CircuitBreaker
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// ChainOption configures Chain.
type ChainOption func(*Chain)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// WithFallback sets the secondary embedder and the policy governing it.
func WithFallback(e Embedder, policy FallbackPolicy) ChainOption {
	return func(c *Chain) {
		c.fallback = e
		c.policy = policy
	}
}

// WithMock sets the embedder used while toggle is enabled. By default a MockEmbedder
// with the primary's dimension is used.
func WithMock(e Embedder, toggle config.Toggle) ChainOption {
	return func(c *Chain) {
		if e != nil {
			c.mock = e
		}
		c.toggle = toggle
	}
}

// WithConcurrency bounds in-flight provider calls.
func WithConcurrency(n int) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRateLimit paces provider calls to rps with the given burst. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) ChainOption {
	return func(c *Chain) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewChain validates the configuration. A fail-open fallback whose dimension differs
// from the primary's is rejected with ErrIncompatibleFallback.
func NewChain(primary Embedder, opts ...ChainOption) (*Chain, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary embedder is required")
	}
	c := &Chain{
		primary: primary,
		policy:  FailClosed,
		toggle:  config.StaticToggle(false),
		sem:     semaphore.NewWeighted(8),
		metrics: telemetry.NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	if c.mock == nil {
		c.mock = NewMockEmbedder(primary.Dimensions())
	}
	if c.toggle == nil {
		c.toggle = config.StaticToggle(false)
	}

	switch c.policy {
	case FailClosed:
		if c.fallback != nil {
			c.logger.Info("embedding fallback configured but policy is fail_closed; fallback disabled",
				zap.String("fallback", c.fallback.Model()))
			c.fallback = nil
		}
	case FailOpen:
		if c.fallback == nil {
			return nil, fmt.Errorf("fail_open policy requires a fallback embedder")
		}
		if c.fallback.Dimensions() != primary.Dimensions() {
			return nil, fmt.Errorf("%w: primary %s has %d, fallback %s has %d", ErrIncompatibleFallback,
				primary.Model(), primary.Dimensions(), c.fallback.Model(), c.fallback.Dimensions())
		}
	default:
		return nil, fmt.Errorf("unknown embedding fallback policy %q", c.policy)
	}

	c.breakers = map[Embedder]*gobreaker.CircuitBreaker{
		primary: utils.NewCircuitBreaker("embedding:"+primary.Model(), c.logger),
	}
	if c.fallback != nil {
		c.breakers[c.fallback] = utils.NewCircuitBreaker("embedding:"+c.fallback.Model(), c.logger)
	}
	return c, nil
}

// Embed returns one vector per text. In mock mode the mock embedder answers without
// network access. Otherwise the primary is called, then the fallback under FailOpen.
// Failure of every eligible provider yields ErrEmbeddingUnavailable.
func (c *Chain) Embed(ctx context.Context, texts []string) ([][]float32, models.Usage, error) {
	if len(texts) == 0 {
		return nil, models.Usage{Model: c.Model()}, nil
	}
	if c.toggle.Enabled() {
		return c.mock.Embed(ctx, texts)
	}

	vectors, usage, err := c.call(ctx, c.primary, texts)
	if err == nil {
		return vectors, usage, nil
	}
	if c.fallback != nil && ctx.Err() == nil {
		c.logger.Warn("primary embedder failed, using fallback",
			zap.String("primary", c.primary.Model()),
			zap.String("fallback", c.fallback.Model()),
			zap.Error(err),
		)
		vectors, usage, ferr := c.call(ctx, c.fallback, texts)
		if ferr == nil {
			return vectors, usage, nil
		}
		err = errors.Join(err, ferr)
	}
	return nil, models.Usage{}, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
}

func (c *Chain) call(ctx context.Context, e Embedder, texts []string) ([][]float32, models.Usage, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "embedding.embed")
	span.SetAttributes(attribute.String("embedding.model", e.Model()), attribute.Int("embedding.texts", len(texts)))
	defer span.End()

	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, models.Usage{}, err
		}
		defer c.sem.Release(1)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, models.Usage{}, err
		}
	}

	type result struct {
		vectors [][]float32
		usage   models.Usage
	}
	start := time.Now()
	out, err := c.breakers[e].Execute(func() (interface{}, error) {
		vectors, usage, err := e.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if err := checkVectors(vectors, len(texts), e.Dimensions()); err != nil {
			return nil, err
		}
		return result{vectors, usage}, nil
	})
	c.metrics.ProviderDuration.WithLabelValues("embedding", e.Model()).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "circuit_open"
		}
		c.metrics.ProviderCallsTotal.WithLabelValues("embedding", e.Model(), outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, models.Usage{}, fmt.Errorf("%s: %w", e.Model(), err)
	}
	res := out.(result)
	c.metrics.ProviderCallsTotal.WithLabelValues("embedding", e.Model(), "ok").Inc()
	c.metrics.RecordUsage("embedding", res.usage.Model, res.usage.Tokens, res.usage.CostUSD)
	span.SetAttributes(attribute.Int("embedding.tokens", res.usage.Tokens))
	return res.vectors, res.usage, nil
}

// Dimensions returns the dimension of the embedder currently in effect.
func (c *Chain) Dimensions() int {
	if c.toggle.Enabled() {
		return c.mock.Dimensions()
	}
	return c.primary.Dimensions()
}

// Model returns the vector-space identity of the embedder currently in effect. Under
// FailOpen the fallback shares the primary's identity because it shares its dimension.
func (c *Chain) Model() string {
	if c.toggle.Enabled() {
		return c.mock.Model()
	}
	return c.primary.Model()
}

// Close closes every configured embedder.
func (c *Chain) Close() error {
	errs := []error{c.primary.Close()}
	if c.fallback != nil {
		errs = append(errs, c.fallback.Close())
	}
	return errors.Join(errs...)
}
