package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"llmexperimenter/internal/metrics"
	"llmexperimenter/internal/models"
)

const (
	// DefaultTimeout bounds a generation call when neither the request nor
	// the provider configuration sets one.
	DefaultTimeout = 30 * time.Second
	slowCall       = 10 * time.Second
	probeTimeout   = 10 * time.Second
)

// Adapter turns a chat history into generated text for one provider.
// Every error it returns is an *Error; a nil error always comes with
// non-empty text.
type Adapter interface {
	Provider() Provider
	Generate(ctx context.Context, req *Request) (string, error)
}

// Options configure an adapter at construction time. Zero values fall back
// to the provider defaults.
type Options struct {
	// APIKeyEnv overrides the environment variable holding the API key.
	APIKeyEnv string
	BaseURL   string
	Timeout   time.Duration
	// Stream makes streaming the default for providers that support it.
	Stream  bool
	Metrics *metrics.ProviderMetrics
	// LookupEnv replaces os.LookupEnv, mainly for tests.
	LookupEnv func(string) (string, bool)
}

func (o Options) apiKey(provider Provider, fallbackEnv string) (string, error) {
	name := o.APIKeyEnv
	if name == "" {
		name = fallbackEnv
	}
	lookup := o.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	key, ok := lookup(name)
	if !ok || strings.TrimSpace(key) == "" {
		return "", &Error{
			Provider: provider,
			Kind:     KindCredentialMissing,
			Field:    name,
			Message:  name + " not found in environment variables",
		}
	}
	return strings.TrimSpace(key), nil
}

// chatModelFactory builds the vendor chat model for a single request.
type chatModelFactory func(ctx context.Context, req *Request) (model.BaseChatModel, error)

// modelLister asks the vendor which models the API key can use.
type modelLister func(ctx context.Context) ([]string, error)

// ModelAdapter is the shared Adapter implementation. Vendor constructors
// differ only in how they build the underlying eino chat model.
type ModelAdapter struct {
	provider   Provider
	newModel   chatModelFactory
	listModels modelLister
	timeout    time.Duration
	stream     bool
	metrics    *metrics.ProviderMetrics
}

func newModelAdapter(provider Provider, opts Options, factory chatModelFactory, lister modelLister) *ModelAdapter {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limits := providerLimits[provider]
	return &ModelAdapter{
		provider:   provider,
		newModel:   factory,
		listModels: lister,
		timeout:    timeout,
		stream:     opts.Stream && limits.Stream,
		metrics:    opts.Metrics,
	}
}

// Provider reports which vendor the adapter talks to.
func (a *ModelAdapter) Provider() Provider {
	return a.provider
}

// Generate validates req, issues one call to the provider and returns the
// generated text. No retries are attempted.
func (a *ModelAdapter) Generate(ctx context.Context, req *Request) (string, error) {
	if err := Validate(a.provider, req); err != nil {
		return "", err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	text, err := a.call(callCtx, req)
	elapsed := time.Since(start)
	if elapsed > slowCall {
		log.Info().
			Str("provider", string(a.provider)).
			Str("model", req.Model).
			Dur("elapsed", elapsed).
			Msg("slow provider response")
	}

	if err != nil {
		perr := Classify(a.provider, err)
		a.metrics.ObserveRequest(string(a.provider), req.Model, string(perr.Kind), elapsed.Seconds())
		log.Warn().
			Err(err).
			Str("provider", string(a.provider)).
			Str("model", req.Model).
			Str("kind", string(perr.Kind)).
			Dur("elapsed", elapsed).
			Msg("generation failed")
		return "", perr
	}
	if strings.TrimSpace(text) == "" {
		a.metrics.ObserveRequest(string(a.provider), req.Model, string(KindEmptyResponse), elapsed.Seconds())
		return "", &Error{Provider: a.provider, Kind: KindEmptyResponse, Message: "empty response received"}
	}
	a.metrics.ObserveRequest(string(a.provider), req.Model, "", elapsed.Seconds())
	return text, nil
}

func (a *ModelAdapter) call(ctx context.Context, req *Request) (string, error) {
	chatModel, err := a.newModel(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create %s chat model: %w", a.provider, err)
	}
	input := toSchemaMessages(req.History)

	if a.stream || (req.Stream && providerLimits[a.provider].Stream) {
		return consumeStream(ctx, chatModel, input)
	}
	msg, err := chatModel.Generate(ctx, input)
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}

// consumeStream reads the whole stream and joins the chunks.
func consumeStream(ctx context.Context, chatModel model.BaseChatModel, input []*schema.Message) (string, error) {
	reader, err := chatModel.Stream(ctx, input)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var full strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if chunk != nil {
			full.WriteString(chunk.Content)
		}
	}
	return full.String(), nil
}

func toSchemaMessages(history []models.ChatMessage) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		var role schema.RoleType
		switch msg.Role {
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{
			Role:    role,
			Content: msg.Content,
		})
	}
	return messages
}

func float32Ptr(v float64) *float32 {
	f := float32(v)
	return &f
}

// AvailableModels asks the provider which models the configured key can use.
func (a *ModelAdapter) AvailableModels(ctx context.Context) ([]string, error) {
	if a.listModels == nil {
		return nil, &Error{Provider: a.provider, Kind: KindUnknown, Message: "model listing not supported"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	names, err := a.listModels(ctx)
	if err != nil {
		return nil, Classify(a.provider, err)
	}
	return names, nil
}

// probe checks the credential right after construction. A failed probe is
// logged and recorded but never fails construction.
func (a *ModelAdapter) probe(ctx context.Context) {
	_, err := a.AvailableModels(ctx)
	a.metrics.SetAvailable(string(a.provider), err == nil)
	if err != nil {
		kind := KindUnknown
		if perr, ok := AsError(err); ok {
			kind = perr.Kind
		}
		log.Warn().
			Err(err).
			Str("provider", string(a.provider)).
			Str("kind", string(kind)).
			Msg("failed to validate API key")
		return
	}
	log.Info().Str("provider", string(a.provider)).Msg("client initialized successfully")
}
