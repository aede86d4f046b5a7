package llm

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
	"github.com/ghonijee/money-tracker-ai-agent/internal/config"
)

// NewProvider builds the raw provider client selected by cfg.Provider.
func NewProvider(cfg config.LLMConfig, logger zerolog.Logger) (framework.LanguageModel, error) {
	var first string
	if len(cfg.Models) > 0 {
		first = cfg.Models[0]
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "openrouter":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey, first)
	case "anthropic":
		return NewAnthropicClient(cfg.BaseURL, cfg.APIKey, first)
	case "ollama":
		endpoint := cfg.BaseURL
		if endpoint == DefaultOpenRouterURL {
			endpoint = ""
		}
		client, err := NewOllamaClient(endpoint, first, nil)
		if err != nil {
			return nil, err
		}
		client.Logger = logger
		client.Debug = logger.GetLevel() <= zerolog.DebugLevel
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown LLM provider %q", framework.ErrConfiguration, cfg.Provider)
	}
}

// New wires provider, router and instrumentation for cfg.
func New(cfg *config.Config, telemetry framework.Telemetry, log MessageLogger, logger zerolog.Logger) (framework.LanguageModel, error) {
	provider, err := NewProvider(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	router, err := NewRouter(provider, cfg.LLM.Models, cfg.LLMTimeout(), cfg.LLM.MaxRetries, logger)
	if err != nil {
		return nil, err
	}
	return NewInstrumentedModel(router, telemetry, log, logger, logger.GetLevel() <= zerolog.DebugLevel), nil
}
