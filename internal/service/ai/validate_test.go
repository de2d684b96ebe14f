package ai

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmexperimenter/internal/models"
)

func ptr(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	valid := func() *Request {
		return &Request{
			Model:   "m",
			History: []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
			Parameters: models.Parameters{
				Temperature: 0.7,
				MaxTokens:   512,
			},
		}
	}

	tests := []struct {
		name     string
		provider Provider
		mutate   func(*Request)
		kind     ErrorKind
		field    string
	}{
		{"ok openai", ProviderOpenAI, func(*Request) {}, "", ""},
		{"missing model", ProviderOpenAI, func(r *Request) { r.Model = " " }, KindInvalidInput, ""},
		{"empty history", ProviderGroq, func(r *Request) { r.History = nil }, KindInvalidInput, ""},
		{"bad role", ProviderAnthropic, func(r *Request) {
			r.History = append(r.History, models.ChatMessage{Role: "tool", Content: "x"})
		}, KindInvalidInput, "role"},
		{"temperature low", ProviderGemini, func(r *Request) { r.Parameters.Temperature = -0.1 }, KindInvalidParameter, "temperature"},
		{"temperature high", ProviderOpenAI, func(r *Request) { r.Parameters.Temperature = 2.01 }, KindInvalidParameter, "temperature"},
		{"temperature bounds inclusive", ProviderOpenAI, func(r *Request) { r.Parameters.Temperature = 2 }, "", ""},
		{"temperature NaN", ProviderOpenAI, func(r *Request) { r.Parameters.Temperature = math.NaN() }, KindInvalidParameter, "temperature"},
		{"top_p NaN", ProviderGroq, func(r *Request) { r.Parameters.TopP = ptr(math.NaN()) }, KindInvalidParameter, "top_p"},
		{"presence penalty NaN", ProviderOpenAI, func(r *Request) { r.Parameters.PresencePenalty = ptr(math.NaN()) }, KindInvalidParameter, "presence_penalty"},
		{"frequency penalty NaN", ProviderGroq, func(r *Request) { r.Parameters.FrequencyPenalty = ptr(math.NaN()) }, KindInvalidParameter, "frequency_penalty"},
		{"max tokens zero", ProviderOpenAI, func(r *Request) { r.Parameters.MaxTokens = 0 }, KindInvalidParameter, "max_tokens"},
		{"openai max tokens ceiling", ProviderOpenAI, func(r *Request) { r.Parameters.MaxTokens = 128000 }, "", ""},
		{"anthropic max tokens ceiling", ProviderAnthropic, func(r *Request) { r.Parameters.MaxTokens = 4097 }, KindInvalidParameter, "max_tokens"},
		{"gemini max tokens ceiling", ProviderGemini, func(r *Request) { r.Parameters.MaxTokens = 8193 }, KindInvalidParameter, "max_tokens"},
		{"groq max tokens ceiling", ProviderGroq, func(r *Request) { r.Parameters.MaxTokens = 32768 }, "", ""},
		{"top_p out of range", ProviderOpenAI, func(r *Request) { r.Parameters.TopP = ptr(1.5) }, KindInvalidParameter, "top_p"},
		{"top_p ignored by gemini", ProviderGemini, func(r *Request) { r.Parameters.TopP = ptr(1.5) }, "", ""},
		{"presence penalty", ProviderGroq, func(r *Request) { r.Parameters.PresencePenalty = ptr(-2.5) }, KindInvalidParameter, "presence_penalty"},
		{"frequency penalty", ProviderOpenAI, func(r *Request) { r.Parameters.FrequencyPenalty = ptr(3) }, KindInvalidParameter, "frequency_penalty"},
		{"penalties ignored by anthropic", ProviderAnthropic, func(r *Request) { r.Parameters.FrequencyPenalty = ptr(3) }, "", ""},
		{"first violation wins", ProviderOpenAI, func(r *Request) {
			r.Parameters.Temperature = 5
			r.Parameters.MaxTokens = 0
		}, KindInvalidParameter, "temperature"},
		{"unknown provider", Provider("cohere"), func(*Request) {}, KindInvalidInput, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			err := Validate(tt.provider, req)
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			perr, ok := AsError(err)
			require.True(t, ok, "expected *Error, got %v", err)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Equal(t, tt.field, perr.Field)
			assert.False(t, perr.Retryable())
		})
	}
}

func TestInvalidParameterMessageNamesValue(t *testing.T) {
	err := Validate(ProviderAnthropic, &Request{
		Model:      "claude-3-haiku",
		History:    []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
		Parameters: models.Parameters{Temperature: 0.5, MaxTokens: 5000},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens must be between 1 and 4096, got 5000")
}

func TestParseProviderAliases(t *testing.T) {
	cases := map[string]Provider{
		"openai":    ProviderOpenAI,
		"Claude":    ProviderAnthropic,
		"anthropic": ProviderAnthropic,
		"google":    ProviderGemini,
		" gemini ":  ProviderGemini,
		"llama":     ProviderGroq,
		"groq":      ProviderGroq,
	}
	for in, want := range cases {
		got, err := ParseProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseProvider("mistral")
	assert.Error(t, err)
}
