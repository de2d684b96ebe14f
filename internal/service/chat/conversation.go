package chat

import (
	"sync"

	"llmexperimenter/internal/models"
)

// State is the position of a conversation in its turn cycle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateDispatching
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateDispatching:
		return "dispatching"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Conversation is the chat history of one login session. At most one turn
// runs at a time.
type Conversation struct {
	mu        sync.Mutex
	user      string
	sessionID string
	state     State
	messages  []models.ChatMessage
}

func newConversation(user, sessionID string) *Conversation {
	return &Conversation{user: user, sessionID: sessionID}
}

func (c *Conversation) User() string      { return c.user }
func (c *Conversation) SessionID() string { return c.sessionID }

// State reports the current turn state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the conversation so far.
func (c *Conversation) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := models.CloneHistory(c.messages)
	if out == nil {
		out = []models.ChatMessage{}
	}
	return out
}

// Reset clears the history. It fails while a turn is in flight.
func (c *Conversation) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrTurnInFlight
	}
	c.messages = nil
	return nil
}

func (c *Conversation) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrTurnInFlight
	}
	c.state = StateValidating
	return nil
}

func (c *Conversation) transition(to State) {
	c.mu.Lock()
	c.state = to
	c.mu.Unlock()
}

func (c *Conversation) append(msg models.ChatMessage) []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return models.CloneHistory(c.messages)
}

func (c *Conversation) pending(msg models.ChatMessage) []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, 0, len(c.messages)+1)
	out = append(out, c.messages...)
	return append(out, msg)
}
