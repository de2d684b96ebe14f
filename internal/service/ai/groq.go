package ai

import "context"

const (
	groqKeyEnv  = "GROQ_API_KEY"
	groqBaseURL = "https://api.groq.com/openai/v1"
)

// NewGroqAdapter reads GROQ_API_KEY and talks to Groq's OpenAI-compatible
// endpoint. It is the only adapter that honours streaming.
func NewGroqAdapter(ctx context.Context, opts Options) (*ModelAdapter, error) {
	return newOpenAICompatible(ctx, ProviderGroq, groqKeyEnv, groqBaseURL, opts)
}
