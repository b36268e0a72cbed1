// Package pipeline answers one tenant query: retrieve, build a prompt, generate, then
// score confidence and decide escalation. It persists nothing.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cortexlayer/ragcore/internal/generation"
	"github.com/cortexlayer/ragcore/internal/models"
	"github.com/cortexlayer/ragcore/internal/prompt"
	"github.com/cortexlayer/ragcore/internal/telemetry"
	"github.com/cortexlayer/ragcore/pkg/utils"
)

const (
	// InvalidQueryAnswer is returned for blank queries.
	InvalidQueryAnswer = "Please provide a valid question."
	// ApologyAnswer replaces the answer when generation fails.
	ApologyAnswer = "I'm sorry, I'm experiencing technical issues."

	DefaultEscalationThreshold = 0.3
	DefaultMaxCitations        = 3
	DefaultMaxTokens           = 500
)

// Retriever fetches scored chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, clientID, query string, topK int) []models.RetrievedChunk
}

// Generator answers a prompt under a generation policy.
type Generator interface {
	Generate(ctx context.Context, prompt string, policy generation.Policy, maxTokens int) (string, models.Usage, error)
}

// Config tunes the pipeline. Zero values take the defaults.
type Config struct {
	TopK                int
	EscalationThreshold float64
	MaxCitations        int
	MaxTokens           int
}

// Pipeline composes a Retriever and a Generator.
type Pipeline struct {
	retriever Retriever
	generator Generator
	cfg       Config
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

// New creates a pipeline.
func New(retriever Retriever, generator Generator, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = models.DefaultTopK
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = DefaultEscalationThreshold
	}
	if cfg.MaxCitations <= 0 {
		cfg.MaxCitations = DefaultMaxCitations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Pipeline{
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		logger:    utils.OrNop(logger),
		metrics:   telemetry.NewMetrics(),
	}
}

// Run answers query for clientID. It always returns a result: retrieval problems degrade
// to an ungrounded answer and generation problems to a fixed apology with zero usage.
func (p *Pipeline) Run(ctx context.Context, clientID, query, plan string, topK int) *models.PipelineResult {
	if strings.TrimSpace(query) == "" {
		p.logger.Warn("empty query received", zap.String("client_id", clientID))
		return &models.PipelineResult{
			Answer:     InvalidQueryAnswer,
			Citations:  []models.Citation{},
			UsageStats: models.ZeroUsage(),
		}
	}
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	span.SetAttributes(attribute.String("client_id", clientID), attribute.String("plan", plan))
	defer span.End()

	start := time.Now()
	chunks := p.retrieve(ctx, clientID, query, topK)

	var (
		text       string
		confidence float64
	)
	if len(chunks) > 0 {
		text = prompt.BuildGrounded(query, chunks)
		confidence = math.Min(chunks[0].Score, 1.0)
	} else {
		p.metrics.EmptyRetrievals.Inc()
		text = prompt.BuildFallback(query)
	}

	policy := generation.PolicyForPlan(plan)
	answer, usage, err := p.generator.Generate(ctx, text, policy, p.cfg.MaxTokens)
	if err != nil {
		p.logger.Error("generation failed",
			zap.String("client_id", clientID),
			zap.String("policy", policy.String()),
			zap.Error(err),
		)
		answer = ApologyAnswer
		usage = models.ZeroUsage()
	}

	n := len(chunks)
	if n > p.cfg.MaxCitations {
		n = p.cfg.MaxCitations
	}
	citations := make([]models.Citation, 0, n)
	for _, ch := range chunks[:n] {
		citations = append(citations, models.Citation{
			Document:       ch.Filename(),
			ChunkIndex:     models.MetadataInt(ch.Metadata, "chunk_index", 0),
			RelevanceScore: utils.Round(ch.Score, 3),
		})
	}

	elapsed := time.Since(start)
	p.metrics.PipelineDuration.Observe(elapsed.Seconds())

	result := &models.PipelineResult{
		Answer:         answer,
		Citations:      citations,
		Confidence:     utils.Round(confidence, 3),
		LatencyMs:      elapsed.Milliseconds(),
		UsageStats:     usage,
		ShouldEscalate: confidence < p.cfg.EscalationThreshold,
	}
	if result.ShouldEscalate {
		reason := fmt.Sprintf("Low confidence (%.2f)", confidence)
		result.EscalationReason = &reason
		p.metrics.EscalationsTotal.Inc()
	}
	span.SetAttributes(
		attribute.Int("chunks", len(chunks)),
		attribute.Float64("confidence", confidence),
		attribute.Bool("escalate", result.ShouldEscalate),
	)
	p.logger.Info("query answered",
		zap.String("client_id", clientID),
		zap.Int("chunks", len(chunks)),
		zap.Float64("confidence", result.Confidence),
		zap.String("model", usage.Model),
		zap.Int64("latency_ms", result.LatencyMs),
	)
	return result
}

// retrieve recovers from a panicking retriever and treats it as an empty retrieval.
func (p *Pipeline) retrieve(ctx context.Context, clientID, query string, topK int) (chunks []models.RetrievedChunk) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("retrieval panicked", zap.String("client_id", clientID), zap.Any("panic", r))
			chunks = nil
		}
	}()
	return p.retriever.Retrieve(ctx, clientID, query, topK)
}
