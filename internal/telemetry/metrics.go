// Package telemetry holds the process-wide Prometheus metrics and the tracer used by ragcore.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the retrieval/generation core.
type Metrics struct {
	// Index store
	IndexLoadsTotal *prometheus.CounterVec
	IndexSavesTotal *prometheus.CounterVec
	CachedTenants   prometheus.Gauge

	// Providers
	ProviderCallsTotal   *prometheus.CounterVec
	ProviderDuration     *prometheus.HistogramVec
	GenerationFallbacks  prometheus.Counter
	ProviderTokensTotal  *prometheus.CounterVec
	ProviderCostUSDTotal *prometheus.CounterVec

	// Pipeline
	PipelineDuration prometheus.Histogram
	EscalationsTotal prometheus.Counter
	EmptyRetrievals  prometheus.Counter
	IngestedChunks   prometheus.Counter
}

// NewMetrics creates and registers the metrics once per process.
//
// Metrics:
//   - ragcore_index_loads_total{tier} - resolutions by tier: cache, mock, mirror, remote, error
//   - ragcore_index_saves_total{outcome} - saves: ok, mirror_error, remote_error
//   - ragcore_cached_tenants - tenants held in the process-local cache
//   - ragcore_provider_calls_total{kind,provider,outcome} - embedding/generation provider calls
//   - ragcore_provider_duration_seconds{kind,provider} - provider call latency
//   - ragcore_generation_fallbacks_total - cheap failures retried on the premium provider
//   - ragcore_provider_tokens_total{kind,model} - tokens billed by providers
//   - ragcore_provider_cost_usd_total{kind,model} - estimated provider spend
//   - ragcore_pipeline_duration_seconds - end-to-end query latency
//   - ragcore_escalations_total - answers flagged for human escalation
//   - ragcore_empty_retrievals_total - queries answered without grounding
//   - ragcore_ingested_chunks_total - chunks added to tenant indexes
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			IndexLoadsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragcore_index_loads_total",
					Help: "Tenant index resolutions by tier",
				},
				[]string{"tier"},
			),
			IndexSavesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragcore_index_saves_total",
					Help: "Tenant index saves by outcome",
				},
				[]string{"outcome"},
			),
			CachedTenants: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "ragcore_cached_tenants",
				Help: "Tenants held in the process-local index cache",
			}),
			ProviderCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragcore_provider_calls_total",
					Help: "Provider calls by kind, provider and outcome",
				},
				[]string{"kind", "provider", "outcome"},
			),
			ProviderDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ragcore_provider_duration_seconds",
					Help:    "Provider call latency",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"kind", "provider"},
			),
			GenerationFallbacks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragcore_generation_fallbacks_total",
				Help: "Cheap generation failures retried on the premium provider",
			}),
			ProviderTokensTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragcore_provider_tokens_total",
					Help: "Tokens billed by providers",
				},
				[]string{"kind", "model"},
			),
			ProviderCostUSDTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ragcore_provider_cost_usd_total",
					Help: "Estimated provider spend in USD",
				},
				[]string{"kind", "model"},
			),
			PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "ragcore_pipeline_duration_seconds",
				Help:    "End-to-end query latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			}),
			EscalationsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragcore_escalations_total",
				Help: "Answers flagged for human escalation",
			}),
			EmptyRetrievals: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragcore_empty_retrievals_total",
				Help: "Queries answered without retrieved context",
			}),
			IngestedChunks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ragcore_ingested_chunks_total",
				Help: "Chunks added to tenant indexes",
			}),
		}
	})
	return globalMetrics
}

// RecordUsage adds provider token and cost counters.
func (m *Metrics) RecordUsage(kind, model string, tokens int, costUSD float64) {
	if tokens > 0 {
		m.ProviderTokensTotal.WithLabelValues(kind, model).Add(float64(tokens))
	}
	if costUSD > 0 {
		m.ProviderCostUSDTotal.WithLabelValues(kind, model).Add(costUSD)
	}
}
