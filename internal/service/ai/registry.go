package ai

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"llmexperimenter/internal/config"
	"llmexperimenter/internal/metrics"
)

type constructor func(ctx context.Context, opts Options) (*ModelAdapter, error)

var constructors = map[Provider]constructor{
	ProviderOpenAI:    NewOpenAIAdapter,
	ProviderAnthropic: NewAnthropicAdapter,
	ProviderGemini:    NewGeminiAdapter,
	ProviderGroq:      NewGroqAdapter,
}

// ModelLister is implemented by adapters that can ask their vendor which
// models are available.
type ModelLister interface {
	AvailableModels(ctx context.Context) ([]string, error)
}

// NewAdapters builds one adapter per provider listed in cfg.Models. A
// provider whose credential is missing is logged and left out; the call
// fails only when no adapter could be built.
func NewAdapters(ctx context.Context, cfg *config.Config, pm *metrics.ProviderMetrics) (map[Provider]Adapter, error) {
	adapters := make(map[Provider]Adapter)
	for _, name := range cfg.ProviderNames() {
		provider, err := ParseProvider(name)
		if err != nil {
			return nil, err
		}
		if _, dup := adapters[provider]; dup {
			continue
		}
		pc, ok := cfg.Providers[name]
		if !ok {
			pc = cfg.Providers[string(provider)]
		}
		opts := Options{
			APIKeyEnv: pc.APIKeyEnv,
			BaseURL:   pc.BaseURL,
			Timeout:   pc.Timeout(),
			Stream:    pc.Stream,
			Metrics:   pm,
		}
		adapter, err := constructors[provider](ctx, opts)
		if err != nil {
			pm.SetAvailable(string(provider), false)
			log.Error().Err(err).Str("provider", string(provider)).Msg("provider disabled")
			continue
		}
		adapters[provider] = adapter
	}
	if len(adapters) == 0 {
		return nil, errors.New("no provider could be initialized, check API key environment variables")
	}
	return adapters, nil
}

// CatalogueModels returns the configured model names for provider, matching
// catalogue keys by alias ("claude" lists anthropic models).
func CatalogueModels(catalogue map[string][]string, provider Provider) []string {
	for name, models := range catalogue {
		if p, err := ParseProvider(name); err == nil && p == provider {
			return append([]string(nil), models...)
		}
	}
	return nil
}
