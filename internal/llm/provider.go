package llm

import (
	"context"
	"fmt"

	"github.com/ramin-sadeghi/briefer/config"
)

// Provider is the contract for text generation collaborators.
type Provider interface {
	// Generate generates text using the given model
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)

	// GenerateWithTokens generates text and returns prompt/completion token usage
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)

	// GetAvailableModels returns configured models
	GetAvailableModels() []string

	// GetModelInfo returns information about a specific model
	GetModelInfo(model string) (ModelInfo, error)

	// CalculateCost calculates the cost for a given number of tokens
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// ModelInfo contains information about an LLM model
type ModelInfo struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"`
	MaxTokens       int     `json:"max_tokens"`
	CostPer1KInput  float64 `json:"cost_per_1k_input"`
	CostPer1KOutput float64 `json:"cost_per_1k_output"`
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai", "":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}

	return nil, fmt.Errorf("no valid LLM providers found")
}

// ModelFor resolves the routed model for a stage, falling back to the
// routing fallback entry.
func ModelFor(routing config.LLMRoutingConfig, stage string) string {
	var model string
	switch stage {
	case "summarize_context":
		model = routing.ContextSummary
	case "plan":
		model = routing.Planning
	case "summarize_source":
		model = routing.SourceSummary
	case "synthesize":
		model = routing.Synthesis
	}
	if model == "" {
		model = routing.Fallback
	}
	return model
}
