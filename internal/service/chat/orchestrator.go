package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"llmexperimenter/internal/models"
	"llmexperimenter/internal/service/ai"
)

var (
	// ErrTurnInFlight is returned when a conversation already has a turn running.
	ErrTurnInFlight = errors.New("a chat turn is already in progress")
	// ErrUnknownProvider is returned for providers without a constructed adapter.
	ErrUnknownProvider = errors.New("provider is not available")
)

// Recorder persists a finished exchange.
type Recorder interface {
	Record(ctx context.Context, user, sessionID, model, prompt, response string) (*models.HistoryRecord, error)
}

// Turn is one user submission.
type Turn struct {
	Provider   ai.Provider
	Model      string
	Prompt     string
	Parameters models.Parameters
	Stop       []string
	Stream     bool
	Timeout    time.Duration
}

// TurnResult is the outcome of a successful turn. Record is nil when the
// answer could not be persisted.
type TurnResult struct {
	ID       string
	Provider ai.Provider
	Model    string
	Text     string
	Elapsed  time.Duration
	Record   *models.HistoryRecord
}

// Orchestrator routes turns to provider adapters and records the results.
type Orchestrator struct {
	adapters map[ai.Provider]ai.Adapter
	recorder Recorder

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewOrchestrator builds an orchestrator over the constructed adapters.
func NewOrchestrator(adapters map[ai.Provider]ai.Adapter, recorder Recorder) *Orchestrator {
	return &Orchestrator{
		adapters:      adapters,
		recorder:      recorder,
		conversations: make(map[string]*Conversation),
	}
}

// Providers lists the providers with a usable adapter, sorted by name.
func (o *Orchestrator) Providers() []ai.Provider {
	out := make([]ai.Provider, 0, len(o.adapters))
	for p := range o.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Adapter returns the adapter for provider.
func (o *Orchestrator) Adapter(provider ai.Provider) (ai.Adapter, bool) {
	a, ok := o.adapters[provider]
	return a, ok
}

// Generate dispatches a single stateless request. Nothing is recorded.
func (o *Orchestrator) Generate(ctx context.Context, provider ai.Provider, model string, history []models.ChatMessage, params models.Parameters) (string, error) {
	adapter, ok := o.adapters[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return adapter.Generate(ctx, &ai.Request{
		Provider:   provider,
		Model:      model,
		History:    models.CloneHistory(history),
		Parameters: params,
	})
}

// Conversation returns the conversation for sessionID, creating it on first use.
func (o *Orchestrator) Conversation(user, sessionID string) *Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	conv, ok := o.conversations[sessionID]
	if !ok {
		conv = newConversation(user, sessionID)
		o.conversations[sessionID] = conv
	}
	return conv
}

// Active reports how many conversations are held in memory.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.conversations)
}

// Drop forgets the conversation of sessionID.
func (o *Orchestrator) Drop(sessionID string) {
	o.mu.Lock()
	delete(o.conversations, sessionID)
	o.mu.Unlock()
}

// Submit runs one turn on conv. On failure the user prompt stays in the
// conversation without an assistant reply and nothing is recorded. A
// recording failure is logged and does not fail the turn.
func (o *Orchestrator) Submit(ctx context.Context, conv *Conversation, turn Turn) (*TurnResult, error) {
	if err := conv.begin(); err != nil {
		return nil, err
	}
	defer conv.transition(StateIdle)

	turnID := uuid.NewString()
	logger := log.With().
		Str("turn_id", turnID).
		Str("user", conv.User()).
		Str("session_id", conv.SessionID()).
		Str("provider", string(turn.Provider)).
		Str("model", turn.Model).
		Logger()

	adapter, ok := o.adapters[turn.Provider]
	if !ok {
		conv.transition(StateFailed)
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, turn.Provider)
	}
	prompt := models.ChatMessage{Role: models.RoleUser, Content: strings.TrimSpace(turn.Prompt)}
	if prompt.Content == "" {
		conv.transition(StateFailed)
		return nil, &ai.Error{Provider: turn.Provider, Kind: ai.KindInvalidInput, Message: "prompt must not be empty"}
	}
	req := &ai.Request{
		Provider:   turn.Provider,
		Model:      turn.Model,
		History:    conv.pending(prompt),
		Parameters: turn.Parameters,
		Stop:       turn.Stop,
		Stream:     turn.Stream,
		Timeout:    turn.Timeout,
	}
	if err := ai.Validate(turn.Provider, req); err != nil {
		conv.transition(StateFailed)
		return nil, err
	}

	req.History = conv.append(prompt)
	conv.transition(StateDispatching)
	start := time.Now()
	text, err := adapter.Generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		conv.transition(StateFailed)
		logger.Warn().Err(err).Dur("elapsed", elapsed).Msg("chat turn failed")
		return nil, err
	}

	conv.append(models.ChatMessage{Role: models.RoleAssistant, Content: text})
	conv.transition(StateSucceeded)
	result := &TurnResult{
		ID:       turnID,
		Provider: turn.Provider,
		Model:    turn.Model,
		Text:     text,
		Elapsed:  elapsed,
	}
	if o.recorder != nil {
		rec, err := o.recorder.Record(ctx, conv.User(), conv.SessionID(), turn.Model, prompt.Content, text)
		if err != nil {
			logger.Error().Err(err).Msg("failed to record chat turn")
		} else {
			result.Record = rec
		}
	}
	logger.Info().Dur("elapsed", elapsed).Msg("chat turn completed")
	return result, nil
}
