package ai

import (
	"context"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	goopenai "github.com/sashabaranov/go-openai"
)

const (
	openAIKeyEnv  = "OPENAI_API_KEY"
	openAIBaseURL = "https://api.openai.com/v1"
)

// NewOpenAIAdapter reads OPENAI_API_KEY (or opts.APIKeyEnv), probes the
// models endpoint and returns an adapter sending all five tunables.
func NewOpenAIAdapter(ctx context.Context, opts Options) (*ModelAdapter, error) {
	return newOpenAICompatible(ctx, ProviderOpenAI, openAIKeyEnv, openAIBaseURL, opts)
}

// newOpenAICompatible serves every vendor speaking the OpenAI chat
// completions protocol.
func newOpenAICompatible(ctx context.Context, provider Provider, keyEnv, defaultBaseURL string, opts Options) (*ModelAdapter, error) {
	apiKey, err := opts.apiKey(provider, keyEnv)
	if err != nil {
		return nil, err
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	factory := func(ctx context.Context, req *Request) (model.BaseChatModel, error) {
		return openai.NewChatModel(ctx, openAIChatConfig(apiKey, baseURL, req))
	}
	lister := func(ctx context.Context) ([]string, error) {
		return listOpenAICompatibleModels(ctx, apiKey, baseURL)
	}
	adapter := newModelAdapter(provider, opts, factory, lister)
	adapter.probe(ctx)
	return adapter, nil
}

// openAIChatConfig maps a request onto the chat completions parameters.
func openAIChatConfig(apiKey, baseURL string, req *Request) *openai.ChatModelConfig {
	maxTokens := req.Parameters.MaxTokens
	cfg := &openai.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       req.Model,
		MaxTokens:   &maxTokens,
		Temperature: float32Ptr(req.Parameters.Temperature),
	}
	if v := req.Parameters.TopP; v != nil {
		cfg.TopP = float32Ptr(*v)
	}
	if v := req.Parameters.PresencePenalty; v != nil {
		cfg.PresencePenalty = float32Ptr(*v)
	}
	if v := req.Parameters.FrequencyPenalty; v != nil {
		cfg.FrequencyPenalty = float32Ptr(*v)
	}
	if len(req.Stop) > 0 {
		cfg.Stop = append([]string(nil), req.Stop...)
	}
	return cfg
}

func listOpenAICompatibleModels(ctx context.Context, apiKey, baseURL string) ([]string, error) {
	clientCfg := goopenai.DefaultConfig(apiKey)
	clientCfg.BaseURL = baseURL
	list, err := goopenai.NewClientWithConfig(clientCfg).ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}
