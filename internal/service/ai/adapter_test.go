package ai

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmexperimenter/internal/models"
)

type fakeChatModel struct {
	mu        sync.Mutex
	reply     string
	chunks    []string
	err       error
	block     bool
	generated int
	streamed  int
	lastInput []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.generated++
	f.lastInput = input
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.mu.Lock()
	f.streamed++
	f.lastInput = input
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

// newFakeAdapter returns an adapter whose model factory hands out fake and
// counts how often it was asked for a model.
func newFakeAdapter(provider Provider, opts Options, fake *fakeChatModel) (*ModelAdapter, *int) {
	built := 0
	factory := func(ctx context.Context, req *Request) (model.BaseChatModel, error) {
		built++
		return fake, nil
	}
	return newModelAdapter(provider, opts, factory, nil), &built
}

func sayHi() *Request {
	topP := 1.0
	zero := 0.0
	return &Request{
		Model:   "gpt-4o",
		History: []models.ChatMessage{{Role: models.RoleUser, Content: "Say hi"}},
		Parameters: models.Parameters{
			Temperature:      0.7,
			MaxTokens:        50,
			TopP:             &topP,
			PresencePenalty:  &zero,
			FrequencyPenalty: &zero,
		},
	}
}

func TestGenerateReturnsProviderText(t *testing.T) {
	fake := &fakeChatModel{reply: "Hi!"}
	adapter, built := newFakeAdapter(ProviderOpenAI, Options{}, fake)

	text, err := adapter.Generate(context.Background(), sayHi())
	require.NoError(t, err)
	assert.Equal(t, "Hi!", text)
	assert.Equal(t, 1, *built)
	require.Len(t, fake.lastInput, 1)
	assert.Equal(t, schema.User, fake.lastInput[0].Role)
	assert.Equal(t, "Say hi", fake.lastInput[0].Content)
}

func TestGenerateRejectsInvalidParameterWithoutCalling(t *testing.T) {
	fake := &fakeChatModel{reply: "unused"}
	adapter, built := newFakeAdapter(ProviderOpenAI, Options{}, fake)

	req := sayHi()
	req.Parameters.Temperature = 2.5
	_, err := adapter.Generate(context.Background(), req)

	perr, ok := AsError(err)
	require.True(t, ok, "expected *Error, got %T", err)
	assert.Equal(t, KindInvalidParameter, perr.Kind)
	assert.Equal(t, "temperature", perr.Field)
	assert.Equal(t, 2.5, perr.Value)
	assert.Zero(t, *built, "no model may be built for an invalid request")
	assert.Zero(t, fake.generated)
}

func TestGenerateRejectsNaNParameters(t *testing.T) {
	nan := math.NaN()
	fake := &fakeChatModel{reply: "unused"}
	adapter, built := newFakeAdapter(ProviderOpenAI, Options{}, fake)

	req := sayHi()
	req.Parameters.Temperature = nan
	_, err := adapter.Generate(context.Background(), req)
	assert.True(t, IsKind(err, KindInvalidParameter), "got %v", err)

	req = sayHi()
	req.Parameters.TopP = &nan
	_, err = adapter.Generate(context.Background(), req)
	perr, ok := AsError(err)
	require.True(t, ok, "expected *Error, got %T", err)
	assert.Equal(t, "top_p", perr.Field)

	assert.Zero(t, *built)
	assert.Zero(t, fake.generated)
}

func TestGenerateRejectsEmptyHistory(t *testing.T) {
	for _, provider := range Providers {
		t.Run(string(provider), func(t *testing.T) {
			fake := &fakeChatModel{reply: "unused"}
			adapter, built := newFakeAdapter(provider, Options{}, fake)
			req := sayHi()
			req.History = nil

			_, err := adapter.Generate(context.Background(), req)
			assert.True(t, IsKind(err, KindInvalidInput), "got %v", err)
			assert.Zero(t, *built)
		})
	}
}

func TestGenerateEmptyCompletionIsAnError(t *testing.T) {
	fake := &fakeChatModel{reply: "   "}
	adapter, _ := newFakeAdapter(ProviderAnthropic, Options{}, fake)
	req := sayHi()
	req.Model = "claude-3-haiku"

	text, err := adapter.Generate(context.Background(), req)
	assert.Empty(t, text)
	assert.True(t, IsKind(err, KindEmptyResponse), "got %v", err)
}

func TestGenerateClassifiesAuthenticationFailures(t *testing.T) {
	cases := map[Provider]error{
		ProviderOpenAI:    errors.New("error, status code: 401, status: 401 Unauthorized, message: Incorrect API key provided"),
		ProviderGroq:      errors.New("error, status code: 401, status: 401 Unauthorized, message: Invalid API Key"),
		ProviderAnthropic: errors.New(`POST "https://api.anthropic.com/v1/messages": 401 Unauthorized {"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`),
		ProviderGemini:    errors.New("Error 400, Message: API key not valid. Please pass a valid API key., Status: INVALID_ARGUMENT, Details: []"),
	}
	for provider, cause := range cases {
		t.Run(string(provider), func(t *testing.T) {
			fake := &fakeChatModel{err: cause}
			adapter, _ := newFakeAdapter(provider, Options{}, fake)

			text, err := adapter.Generate(context.Background(), sayHi())
			assert.Empty(t, text)
			perr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, KindAuthentication, perr.Kind)
			assert.Equal(t, provider, perr.Provider)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestGenerateTimesOut(t *testing.T) {
	fake := &fakeChatModel{block: true}
	adapter, _ := newFakeAdapter(ProviderOpenAI, Options{}, fake)
	req := sayHi()
	req.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := adapter.Generate(context.Background(), req)
	assert.True(t, IsKind(err, KindTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGenerateUsesAdapterTimeoutByDefault(t *testing.T) {
	fake := &fakeChatModel{block: true}
	adapter, _ := newFakeAdapter(ProviderGroq, Options{Timeout: 15 * time.Millisecond}, fake)

	_, err := adapter.Generate(context.Background(), sayHi())
	assert.True(t, IsKind(err, KindTimeout), "got %v", err)
}

func TestGroqStreamingJoinsChunks(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"Hel", "lo", " there"}}
	adapter, _ := newFakeAdapter(ProviderGroq, Options{}, fake)
	req := sayHi()
	req.Model = "llama-3.1-8b-instant"
	req.Stream = true

	text, err := adapter.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)
	assert.Equal(t, 1, fake.streamed)
	assert.Zero(t, fake.generated)
}

func TestGroqStreamingFromProviderConfig(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"a", "b"}}
	adapter, _ := newFakeAdapter(ProviderGroq, Options{Stream: true}, fake)

	text, err := adapter.Generate(context.Background(), sayHi())
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestStreamFlagIgnoredWithoutStreamingSupport(t *testing.T) {
	fake := &fakeChatModel{reply: "single", chunks: []string{"x"}}
	adapter, _ := newFakeAdapter(ProviderOpenAI, Options{Stream: true}, fake)
	req := sayHi()
	req.Stream = true

	text, err := adapter.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "single", text)
	assert.Zero(t, fake.streamed)
}

func TestEmptyStreamIsAnError(t *testing.T) {
	fake := &fakeChatModel{}
	adapter, _ := newFakeAdapter(ProviderGroq, Options{}, fake)
	req := sayHi()
	req.Stream = true

	_, err := adapter.Generate(context.Background(), req)
	assert.True(t, IsKind(err, KindEmptyResponse), "got %v", err)
}

func TestHistoryRolesAreMapped(t *testing.T) {
	fake := &fakeChatModel{reply: "ok"}
	adapter, _ := newFakeAdapter(ProviderOpenAI, Options{}, fake)
	req := sayHi()
	req.History = []models.ChatMessage{
		{Role: models.RoleSystem, Content: "be brief"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleUser, Content: "again"},
	}

	_, err := adapter.Generate(context.Background(), req)
	require.NoError(t, err)
	roles := make([]schema.RoleType, 0, len(fake.lastInput))
	for _, m := range fake.lastInput {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []schema.RoleType{schema.System, schema.User, schema.Assistant, schema.User}, roles)
}

func TestMissingCredentialFailsConstruction(t *testing.T) {
	noEnv := func(string) (string, bool) { return "", false }
	ctors := map[Provider]constructor{
		ProviderOpenAI:    NewOpenAIAdapter,
		ProviderAnthropic: NewAnthropicAdapter,
		ProviderGemini:    NewGeminiAdapter,
		ProviderGroq:      NewGroqAdapter,
	}
	for provider, ctor := range ctors {
		t.Run(string(provider), func(t *testing.T) {
			adapter, err := ctor(context.Background(), Options{LookupEnv: noEnv})
			assert.Nil(t, adapter)
			perr, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, KindCredentialMissing, perr.Kind)
		})
	}
}

func TestAPIKeyEnvOverride(t *testing.T) {
	var asked string
	lookup := func(name string) (string, bool) {
		asked = name
		return "", false
	}
	_, err := NewGroqAdapter(context.Background(), Options{APIKeyEnv: "MY_GROQ_KEY", LookupEnv: lookup})
	assert.Error(t, err)
	assert.Equal(t, "MY_GROQ_KEY", asked)
}
