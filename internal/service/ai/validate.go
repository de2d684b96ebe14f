package ai

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"llmexperimenter/internal/models"
)

// Request is a single generation call handed to an adapter.
type Request struct {
	Provider   Provider
	Model      string
	History    []models.ChatMessage
	Parameters models.Parameters
	// Stop sequences are sent only to providers that accept them.
	Stop []string
	// Stream asks for a streamed completion; providers without streaming
	// support ignore it. The result is always the joined text.
	Stream bool
	// Timeout bounds the call; zero uses the adapter default.
	Timeout time.Duration
}

// Limits describes which tunables a provider accepts and its token ceiling.
type Limits struct {
	MaxTokens int
	TopP      bool
	Penalties bool
	Stop      bool
	Stream    bool
}

var providerLimits = map[Provider]Limits{
	ProviderOpenAI:    {MaxTokens: 128000, TopP: true, Penalties: true, Stop: true},
	ProviderAnthropic: {MaxTokens: 4096, TopP: true, Stop: true},
	ProviderGemini:    {MaxTokens: 8192},
	ProviderGroq:      {MaxTokens: 32768, TopP: true, Penalties: true, Stop: true, Stream: true},
}

// LimitsFor returns the parameter support of provider.
func LimitsFor(provider Provider) (Limits, bool) {
	l, ok := providerLimits[provider]
	return l, ok
}

// Validate checks req against provider's shape rules and bounds before
// anything goes on the wire. It stops at the first violation. Tunables the
// provider does not support are ignored, not checked.
func Validate(provider Provider, req *Request) error {
	limits, ok := providerLimits[provider]
	if !ok {
		return invalidInput(provider, "unsupported provider")
	}
	if req == nil {
		return invalidInput(provider, "request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return invalidInput(provider, "model name is required")
	}
	if len(req.History) == 0 {
		return invalidInput(provider, "chat history must not be empty")
	}
	for i, msg := range req.History {
		if !msg.Role.Valid() {
			e := invalidInput(provider, fmt.Sprintf("invalid role %q at index %d, must be system, user or assistant", msg.Role, i))
			e.Field = "role"
			e.Value = string(msg.Role)
			return e
		}
	}

	p := req.Parameters
	if !within(p.Temperature, 0, 2) {
		return invalidParameter(provider, "temperature", p.Temperature, "must be between 0.0 and 2.0")
	}
	if p.MaxTokens < 1 || p.MaxTokens > limits.MaxTokens {
		return invalidParameter(provider, "max_tokens", p.MaxTokens, "must be between 1 and "+strconv.Itoa(limits.MaxTokens))
	}
	if limits.TopP && p.TopP != nil && !within(*p.TopP, 0, 1) {
		return invalidParameter(provider, "top_p", *p.TopP, "must be between 0.0 and 1.0")
	}
	if limits.Penalties {
		if v := p.PresencePenalty; v != nil && !within(*v, -2, 2) {
			return invalidParameter(provider, "presence_penalty", *v, "must be between -2.0 and 2.0")
		}
		if v := p.FrequencyPenalty; v != nil && !within(*v, -2, 2) {
			return invalidParameter(provider, "frequency_penalty", *v, "must be between -2.0 and 2.0")
		}
	}
	return nil
}

// within is false for NaN.
func within(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}
