package ai

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
)

const anthropicKeyEnv = "ANTHROPIC_API_KEY"

// NewAnthropicAdapter reads ANTHROPIC_API_KEY and returns an adapter that
// sends temperature, max_tokens, top_p and stop sequences. Penalties are
// not part of the Messages API and are dropped.
func NewAnthropicAdapter(ctx context.Context, opts Options) (*ModelAdapter, error) {
	apiKey, err := opts.apiKey(ProviderAnthropic, anthropicKeyEnv)
	if err != nil {
		return nil, err
	}
	baseURL := opts.BaseURL

	factory := func(ctx context.Context, req *Request) (model.BaseChatModel, error) {
		return claude.NewChatModel(ctx, anthropicChatConfig(apiKey, baseURL, req))
	}
	lister := func(ctx context.Context) ([]string, error) {
		return listAnthropicModels(ctx, apiKey, baseURL)
	}
	adapter := newModelAdapter(ProviderAnthropic, opts, factory, lister)
	adapter.probe(ctx)
	return adapter, nil
}

func anthropicChatConfig(apiKey, baseURL string, req *Request) *claude.Config {
	cfg := &claude.Config{
		APIKey:      apiKey,
		Model:       req.Model,
		MaxTokens:   req.Parameters.MaxTokens,
		Temperature: float32Ptr(req.Parameters.Temperature),
	}
	if baseURL != "" {
		cfg.BaseURL = &baseURL
	}
	if v := req.Parameters.TopP; v != nil {
		cfg.TopP = float32Ptr(*v)
	}
	if len(req.Stop) > 0 {
		cfg.StopSequences = append([]string(nil), req.Stop...)
	}
	return cfg
}

func listAnthropicModels(ctx context.Context, apiKey, baseURL string) ([]string, error) {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(reqOpts...)
	page, err := client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return names, nil
}
