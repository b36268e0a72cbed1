package models

// ModelNone is reported as the model of a call that never reached a provider.
const ModelNone = "none"

// Usage is the token and cost accounting produced by a provider call.
// Billing consumes it; the core never mutates it after returning.
type Usage struct {
	Tokens       int     `json:"tokens"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Model        string  `json:"model_used"`
}

// ZeroUsage returns usage for a call that was never made or whose result was discarded.
func ZeroUsage() Usage {
	return Usage{Model: ModelNone}
}

// Citation references one chunk that grounded an answer.
type Citation struct {
	Document       string  `json:"document"`
	ChunkIndex     int     `json:"chunk_index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// PipelineResult is the full response of one query.
type PipelineResult struct {
	Answer           string     `json:"answer"`
	Citations        []Citation `json:"citations"`
	Confidence       float64    `json:"confidence"`
	LatencyMs        int64      `json:"latency_ms"`
	UsageStats       Usage      `json:"usage_stats"`
	ShouldEscalate   bool       `json:"should_escalate"`
	EscalationReason *string    `json:"escalation_reason"`
}
