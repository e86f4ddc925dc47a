package chatstream

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/mayurmacwan/chatstream-go/internal/sliceutils"
	"github.com/mayurmacwan/chatstream-go/thinking"
	"go.uber.org/zap"
)

// Exchange is one answered question.
type Exchange struct {
	Question string
	Answer   Answer
}

// Conversation holds the state shared by the turns of one chat: the answered
// history, the trace classifier and the turn in flight. Starting a turn
// cancels the previous one, so at most one turn runs at a time.
type Conversation struct {
	mu         sync.Mutex
	history    []Exchange
	classifier *thinking.Classifier
	logger     *zap.Logger

	turnID string
	cancel context.CancelFunc
}

type ConversationOption func(*Conversation)

func WithClassifier(classifier *thinking.Classifier) ConversationOption {
	return func(c *Conversation) { c.classifier = classifier }
}

func WithConversationLogger(logger *zap.Logger) ConversationOption {
	return func(c *Conversation) { c.logger = logger }
}

func NewConversation(opts ...ConversationOption) *Conversation {
	c := &Conversation{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.classifier == nil {
		c.classifier = thinking.NewClassifier(thinking.WithLogger(c.logger))
	}
	return c
}

// BeginTurn cancels the turn in flight, if any, and returns the context of
// the new turn. The returned cancel func must be called when the turn ends.
func (c *Conversation) BeginTurn(ctx context.Context) (context.Context, context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.logger.Debug("superseding turn", zap.String("turn_id", c.turnID))
		c.cancel()
	}

	turnCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	c.turnID = id
	c.cancel = cancel
	c.classifier.BeginTurn()

	return turnCtx, func() {
		cancel()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.turnID == id {
			c.turnID = ""
			c.cancel = nil
		}
	}
}

// NewRequest builds the request for question: prior exchanges as alternating
// user and assistant messages, then the question itself. The session state of
// the last answer is carried over.
func (c *Conversation) NewRequest(question string, overrides Overrides) ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := sliceutils.FlatMap(c.history, func(ex Exchange) []ResponseMessage {
		return []ResponseMessage{
			{Content: ex.Question, Role: RoleUser},
			{Content: ex.Answer.Message.Content, Role: RoleAssistant},
		}
	})
	messages = append(messages, ResponseMessage{Content: question, Role: RoleUser})

	req := ChatRequest{
		Messages: messages,
		Context:  RequestContext{Overrides: overrides},
	}
	if n := len(c.history); n > 0 && c.history[n-1].Answer.SessionState != nil {
		state := *c.history[n-1].Answer.SessionState
		req.SessionState = &state
	}
	return req
}

// Record appends an answered question to the history.
func (c *Conversation) Record(question string, answer *Answer) {
	if answer == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, Exchange{Question: question, Answer: answer.Clone()})
}

// History returns a copy of the answered exchanges.
func (c *Conversation) History() []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// LastAnswer returns the most recent answer.
func (c *Conversation) LastAnswer() (Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return Answer{}, false
	}
	return c.history[len(c.history)-1].Answer, true
}

func (c *Conversation) Classifier() *thinking.Classifier {
	return c.classifier
}

// Clear cancels the turn in flight and forgets the history, cards and
// citations.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.turnID = ""
	}
	c.history = nil
	c.classifier.Reset()
}
