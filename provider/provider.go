// Package provider abstracts the generation and embedding backends. All
// non-deterministic model behavior sits behind this interface so every
// guardrail in the pipeline can be tested against mocked output.
package provider

import (
	"context"
	"errors"

	"clinsight/config"
	"clinsight/models"
	openai_provider "clinsight/provider/openai"
)

// Provider is the contract every LLM backend must satisfy.
type Provider interface {
	Summarize(ctx context.Context, note string, evidence []models.EvidenceHit) (models.SummaryResult, error)
	Translate(ctx context.Context, text, lang string) (string, error)
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
}

// NewProvider builds the configured backend.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set (CLINSIGHT_LLM_API_KEY)")
		}
		return openai_provider.NewClient(
			cfg.APIKey,
			cfg.CompletionModel,
			cfg.EmbeddingModel,
			cfg.Temperature,
			cfg.MaxTokens,
			cfg.Timeout,
		), nil
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.Provider)
	}
}
