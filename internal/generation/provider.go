// Package generation turns prompts into answers through a cheap and a premium
// chat-completion provider selected by the tenant's plan.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/cortexlayer/ragcore/internal/config"
	"github.com/cortexlayer/ragcore/internal/models"
)

// ErrGenerationFailed means no eligible provider produced an answer.
var ErrGenerationFailed = errors.New("generation failed")

// Provider produces a completion for a single user prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, models.Usage, error)
	Name() string
}

// Rates are USD prices per million tokens.
type Rates struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost prices a call. A symmetric provider has equal input and output rates.
func (r Rates) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*r.InputPerMillion +
		float64(outputTokens)/1_000_000*r.OutputPerMillion
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint. Groq is reached
// through its OpenAI-compatible base URL.
type OpenAIProvider struct {
	client      openai.Client
	name        string
	model       string
	temperature float64
	rates       Rates
}

// NewOpenAIProvider builds a provider from cfg. Extra request options are appended to the
// client options (retries, HTTP client).
func NewOpenAIProvider(cfg config.ProviderConfig, temperature float64, opts ...option.RequestOption) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s provider: api key is required", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s provider: model is required", cfg.Name)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	name := cfg.Name
	if name == "" {
		name = cfg.Model
	}
	return &OpenAIProvider{
		client:      openai.NewClient(clientOpts...),
		name:        name,
		model:       cfg.Model,
		temperature: temperature,
		rates: Rates{
			InputPerMillion:  cfg.InputPricePerMillion,
			OutputPerMillion: cfg.OutputPricePerMillion,
		},
	}, nil
}

// Generate sends prompt as a single user message.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, models.Usage, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(p.model),
		Temperature: openai.Float(p.temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", models.Usage{}, fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", models.Usage{}, fmt.Errorf("%s chat completion: no choices returned", p.name)
	}

	in := int(resp.Usage.PromptTokens)
	out := int(resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, models.Usage{
		Tokens:       in + out,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      p.rates.Cost(in, out),
		Model:        p.model,
	}, nil
}

// Name returns the provider name used in logs and metrics.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// ErrProviderNotConfigured is returned by a tier that has no credentials.
var ErrProviderNotConfigured = errors.New("provider not configured")

type unconfigured string

// Unconfigured returns a provider that always fails with ErrProviderNotConfigured.
// It stands in for a tier whose API key is missing so the other tier keeps working.
func Unconfigured(name string) Provider {
	return unconfigured(name)
}

func (u unconfigured) Generate(ctx context.Context, prompt string, maxTokens int) (string, models.Usage, error) {
	return "", models.Usage{}, fmt.Errorf("%s: %w", string(u), ErrProviderNotConfigured)
}

func (u unconfigured) Name() string { return string(u) }
