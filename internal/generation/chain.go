package generation

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

	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/telemetry"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

// Chain routes prompts to the cheap or premium provider according to a Policy.
type Chain struct {
	cheap   Provider
	premium Provider

	cheapBreaker   *gobreaker.CircuitBreaker
	premiumBreaker *gobreaker.CircuitBreaker
	sem            *semaphore.Weighted
	limiter        *rate.Limiter
	logger         *zap.Logger
	metrics        *telemetry.Metrics
}

// Option configures Chain.
type Option func(*Chain)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Chain) { c.logger = l }
}

// WithConcurrency bounds in-flight provider calls across both tiers.
func WithConcurrency(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRateLimit paces provider calls. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
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

// NewChain returns a chain over the two provider tiers. Both are required.
func NewChain(cheap, premium Provider, opts ...Option) (*Chain, error) {
	if cheap == nil || premium == nil {
		return nil, fmt.Errorf("cheap and premium providers are required")
	}
	c := &Chain{
		cheap:   cheap,
		premium: premium,
		sem:     semaphore.NewWeighted(16),
		metrics: telemetry.NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	c.cheapBreaker = utils.NewCircuitBreaker("generation:"+cheap.Name(), c.logger, ErrProviderNotConfigured)
	c.premiumBreaker = utils.NewCircuitBreaker("generation:"+premium.Name(), c.logger, ErrProviderNotConfigured)
	return c, nil
}

// Generate answers prompt under policy. CheapWithFallback makes exactly one premium
// attempt after a cheap failure. Every failure is reported as ErrGenerationFailed.
func (c *Chain) Generate(ctx context.Context, prompt string, policy Policy, maxTokens int) (string, models.Usage, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "generation.generate")
	span.SetAttributes(attribute.String("generation.policy", policy.String()))
	defer span.End()

	var (
		answer string
		usage  models.Usage
		err    error
	)
	switch policy {
	case PremiumOnly:
		answer, usage, err = c.call(ctx, c.premium, c.premiumBreaker, prompt, maxTokens)
	case CheapWithFallback:
		answer, usage, err = c.call(ctx, c.cheap, c.cheapBreaker, prompt, maxTokens)
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("cheap provider failed, falling back to premium",
				zap.String("cheap", c.cheap.Name()),
				zap.String("premium", c.premium.Name()),
				zap.Error(err),
			)
			c.metrics.GenerationFallbacks.Inc()
			var perr error
			answer, usage, perr = c.call(ctx, c.premium, c.premiumBreaker, prompt, maxTokens)
			if perr != nil {
				err = errors.Join(err, perr)
			} else {
				err = nil
			}
		}
	default:
		answer, usage, err = c.call(ctx, c.cheap, c.cheapBreaker, prompt, maxTokens)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		c.logger.Error("generation failed", zap.String("policy", policy.String()), zap.Error(err))
		return "", models.ZeroUsage(), fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	span.SetAttributes(attribute.String("generation.model", usage.Model))
	return answer, usage, nil
}

func (c *Chain) call(ctx context.Context, p Provider, cb *gobreaker.CircuitBreaker, prompt string, maxTokens int) (string, models.Usage, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", models.Usage{}, err
		}
		defer c.sem.Release(1)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", models.Usage{}, err
		}
	}

	type result struct {
		answer string
		usage  models.Usage
	}
	start := time.Now()
	out, err := cb.Execute(func() (interface{}, error) {
		answer, usage, err := p.Generate(ctx, prompt, maxTokens)
		if err != nil {
			return nil, err
		}
		return result{answer, usage}, nil
	})
	c.metrics.ProviderDuration.WithLabelValues("generation", p.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "circuit_open"
		}
		c.metrics.ProviderCallsTotal.WithLabelValues("generation", p.Name(), outcome).Inc()
		return "", models.Usage{}, fmt.Errorf("%s: %w", p.Name(), err)
	}
	res := out.(result)
	c.metrics.ProviderCallsTotal.WithLabelValues("generation", p.Name(), "ok").Inc()
	c.metrics.RecordUsage("generation", res.usage.Model, res.usage.Tokens, res.usage.CostUSD)
	c.logger.Debug("generation complete",
		zap.String("provider", p.Name()),
		zap.String("model", res.usage.Model),
		zap.Int("input_tokens", res.usage.InputTokens),
		zap.Int("output_tokens", res.usage.OutputTokens),
	)
	return res.answer, res.usage, nil
}
