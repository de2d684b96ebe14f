package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmexperimenter/internal/config"
	"llmexperimenter/internal/metrics"
	"llmexperimenter/internal/models"
)

func envWith(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func availableGauge(t *testing.T, pm *metrics.ProviderMetrics, provider string) float64 {
	t.Helper()
	families, err := pm.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "test_provider_available" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "provider" && l.GetValue() == provider {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("no availability series for %s", provider)
	return 0
}

func TestOpenAIProbeListsModels(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"gpt-4o","object":"model"},{"id":"gpt-4o-mini","object":"model"}]}`)
	}))
	defer srv.Close()

	pm := metrics.New("test")
	adapter, err := NewOpenAIAdapter(context.Background(), Options{
		BaseURL:   srv.URL,
		Metrics:   pm,
		LookupEnv: envWith(map[string]string{"OPENAI_API_KEY": "sk-test"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, 1.0, availableGauge(t, pm, "openai"))

	names, err := adapter.AvailableModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, names)
}

func TestAnthropicRejectedKeyStillConstructs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	pm := metrics.New("test")
	adapter, err := NewAnthropicAdapter(context.Background(), Options{
		BaseURL:   srv.URL,
		Metrics:   pm,
		LookupEnv: envWith(map[string]string{"ANTHROPIC_API_KEY": "bad"}),
	})
	require.NoError(t, err)
	require.NotNil(t, adapter)
	assert.Equal(t, 0.0, availableGauge(t, pm, "anthropic"))

	_, err = adapter.AvailableModels(context.Background())
	assert.True(t, IsKind(err, KindAuthentication), "got %v", err)
}

func TestOpenAIChatCompletionRoundTrip(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/models":
			_, _ = io.WriteString(w, `{"object":"list","data":[]}`)
		case "/chat/completions":
			_ = json.NewDecoder(r.Body).Decode(&body)
			_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",`+
				`"choices":[{"index":0,"message":{"role":"assistant","content":"Hi there!"},"finish_reason":"stop"}],`+
				`"usage":{"prompt_tokens":3,"completion_tokens":3,"total_tokens":6}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter, err := NewOpenAIAdapter(context.Background(), Options{
		BaseURL:   srv.URL,
		LookupEnv: envWith(map[string]string{"OPENAI_API_KEY": "sk-test"}),
	})
	require.NoError(t, err)

	text, err := adapter.Generate(context.Background(), sayHi())
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", text)
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Contains(t, body, "messages")
}

func TestOpenAIEmptyChoicesIsEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/models":
			_, _ = io.WriteString(w, `{"object":"list","data":[]}`)
		case "/chat/completions":
			_, _ = io.WriteString(w, `{"id":"chatcmpl-2","object":"chat.completion","created":1,"model":"gpt-4o",`+
				`"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":0,"total_tokens":3}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter, err := NewOpenAIAdapter(context.Background(), Options{
		BaseURL:   srv.URL,
		LookupEnv: envWith(map[string]string{"OPENAI_API_KEY": "sk-test"}),
	})
	require.NoError(t, err)

	text, err := adapter.Generate(context.Background(), sayHi())
	assert.Empty(t, text)
	perr, ok := AsError(err)
	require.True(t, ok, "expected *Error, got %T", err)
	assert.Equal(t, KindEmptyResponse, perr.Kind)
	assert.Equal(t, ProviderOpenAI, perr.Provider)
}

func TestOpenAIChatCompletionUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	adapter, err := NewOpenAIAdapter(context.Background(), Options{
		BaseURL:   srv.URL,
		LookupEnv: envWith(map[string]string{"OPENAI_API_KEY": "sk-bad"}),
	})
	require.NoError(t, err)

	_, err = adapter.Generate(context.Background(), sayHi())
	assert.True(t, IsKind(err, KindAuthentication), "got %v", err)
}

func TestOpenAIChatConfigSendsAllTunables(t *testing.T) {
	req := sayHi()
	req.Stop = []string{"END"}
	cfg := openAIChatConfig("key", openAIBaseURL, req)

	assert.Equal(t, "gpt-4o", cfg.Model)
	require.NotNil(t, cfg.MaxTokens)
	assert.Equal(t, 50, *cfg.MaxTokens)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.7, *cfg.Temperature, 1e-6)
	assert.NotNil(t, cfg.TopP)
	assert.NotNil(t, cfg.PresencePenalty)
	assert.NotNil(t, cfg.FrequencyPenalty)
	assert.Equal(t, []string{"END"}, cfg.Stop)
}

func TestOpenAIChatConfigOmitsUnsetTunables(t *testing.T) {
	req := sayHi()
	req.Parameters = models.Parameters{Temperature: 0.2, MaxTokens: 10}
	cfg := openAIChatConfig("key", openAIBaseURL, req)

	assert.Nil(t, cfg.TopP)
	assert.Nil(t, cfg.PresencePenalty)
	assert.Nil(t, cfg.FrequencyPenalty)
	assert.Empty(t, cfg.Stop)
}

func TestAnthropicChatConfigDropsPenalties(t *testing.T) {
	req := sayHi()
	req.Model = "claude-3-haiku"
	req.Stop = []string{"\n\nHuman:"}
	cfg := anthropicChatConfig("key", "", req)

	assert.Equal(t, 50, cfg.MaxTokens)
	require.NotNil(t, cfg.TopP)
	assert.InDelta(t, 1.0, *cfg.TopP, 1e-6)
	assert.Equal(t, []string{"\n\nHuman:"}, cfg.StopSequences)
	assert.Nil(t, cfg.BaseURL)

	withURL := anthropicChatConfig("key", "http://localhost:9999", req)
	require.NotNil(t, withURL.BaseURL)
	assert.Equal(t, "http://localhost:9999", *withURL.BaseURL)
}

func TestGeminiChatConfigSendsOnlyTemperatureAndMaxTokens(t *testing.T) {
	req := sayHi()
	req.Model = "gemini-1.5-flash"
	req.Stop = []string{"END"}
	cfg := geminiChatConfig(nil, req)

	assert.Equal(t, "gemini-1.5-flash", cfg.Model)
	require.NotNil(t, cfg.MaxTokens)
	assert.Equal(t, 50, *cfg.MaxTokens)
	require.NotNil(t, cfg.Temperature)
	assert.Nil(t, cfg.TopP)
}

func TestNewAdaptersFailsWithoutAnyKey(t *testing.T) {
	for _, name := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_LLM_API_KEY", "GROQ_API_KEY"} {
		t.Setenv(name, "")
	}
	cfg := &config.Config{Models: map[string][]string{
		"openai": {"gpt-4o"},
		"claude": {"claude-3-haiku"},
		"google": {"gemini-1.5-flash"},
		"llama":  {"llama-3.1-8b-instant"},
	}}
	pm := metrics.New("test")

	adapters, err := NewAdapters(context.Background(), cfg, pm)
	assert.Error(t, err)
	assert.Nil(t, adapters)
	assert.Equal(t, 0.0, availableGauge(t, pm, "groq"))
}

func TestNewAdaptersSkipsMissingProviders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[]}`)
	}))
	defer srv.Close()

	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("TEST_GROQ_KEY", "gsk-test")
	cfg := &config.Config{
		Models: map[string][]string{
			"openai": {"gpt-4o"},
			"claude": {"claude-3-haiku"},
			"llama":  {"llama-3.1-8b-instant"},
		},
		Providers: map[string]config.ProviderConfig{
			"llama": {BaseURL: srv.URL, APIKeyEnv: "TEST_GROQ_KEY"},
		},
	}

	adapters, err := NewAdapters(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	assert.Equal(t, ProviderGroq, adapters[ProviderGroq].Provider())
}

func TestCatalogueModelsMatchesAliases(t *testing.T) {
	catalogue := map[string][]string{
		"claude": {"claude-3-haiku", "claude-3-5-sonnet"},
		"openai": {"gpt-4o"},
	}
	assert.Equal(t, []string{"claude-3-haiku", "claude-3-5-sonnet"}, CatalogueModels(catalogue, ProviderAnthropic))
	assert.Nil(t, CatalogueModels(catalogue, ProviderGemini))
}
