package ai

import (
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

const geminiKeyEnv = "GOOGLE_LLM_API_KEY"

// NewGeminiAdapter reads GOOGLE_LLM_API_KEY. Gemini only receives
// temperature and max_tokens; every other tunable is dropped.
func NewGeminiAdapter(ctx context.Context, opts Options) (*ModelAdapter, error) {
	apiKey, err := opts.apiKey(ProviderGemini, geminiKeyEnv)
	if err != nil {
		return nil, err
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, Classify(ProviderGemini, err)
	}

	factory := func(ctx context.Context, req *Request) (model.BaseChatModel, error) {
		return gemini.NewChatModel(ctx, geminiChatConfig(client, req))
	}
	lister := func(ctx context.Context) ([]string, error) {
		page, err := client.Models.List(ctx, nil)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(page.Items))
		for _, m := range page.Items {
			names = append(names, strings.TrimPrefix(m.Name, "models/"))
		}
		return names, nil
	}
	adapter := newModelAdapter(ProviderGemini, opts, factory, lister)
	adapter.probe(ctx)
	return adapter, nil
}

func geminiChatConfig(client *genai.Client, req *Request) *gemini.Config {
	maxTokens := req.Parameters.MaxTokens
	return &gemini.Config{
		Client:      client,
		Model:       req.Model,
		MaxTokens:   &maxTokens,
		Temperature: float32Ptr(req.Parameters.Temperature),
	}
}
