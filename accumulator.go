package chatstream

import (
	"strings"
)

// TurnState is the state of an AnswerAccumulator.
type TurnState int

const (
	StateIdle TurnState = iota
	StateStreaming
	StateFinalized
	StateFailed
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AnswerAccumulator folds the events of one turn into an Answer.
//
// It is not safe for concurrent use; one goroutine owns it for the lifetime
// of a turn and hands out copies through Snapshot and ComputeAnswer.
type AnswerAccumulator struct {
	state        TurnState
	hasBase      bool
	role         string
	context      map[string]any
	text         strings.Builder
	sessionState *string
	deltas       int
	err          error
}

// NewAnswerAccumulator creates a new AnswerAccumulator
func NewAnswerAccumulator() *AnswerAccumulator {
	return &AnswerAccumulator{}
}

// AddEvent applies one event. It reports whether the visible answer changed.
// A server error moves the accumulator to StateFailed and is returned; any
// event after a terminal state is rejected.
func (a *AnswerAccumulator) AddEvent(event *StreamEvent) (bool, error) {
	switch a.state {
	case StateFailed:
		return false, a.err
	case StateFinalized:
		return false, NewInvariantError("event received after the turn was finalized")
	}
	if event == nil {
		return false, nil
	}

	if event.Error != nil {
		a.Fail(NewServerError(event.Error.Message))
		return false, a.err
	}

	changed := false
	if event.SessionState != nil {
		state := *event.SessionState
		a.sessionState = &state
		changed = true
	}

	if init := event.ContextInit; init != nil {
		a.processContextInit(init)
		changed = true
	}

	if patch := event.ContextPatch; patch != nil {
		a.mergeContext(patch.Fields)
		changed = true
	}

	if delta := event.Delta; delta != nil && delta.Content != "" {
		a.text.WriteString(delta.Content)
		a.deltas++
		changed = true
	}

	if changed && a.state == StateIdle {
		a.state = StateStreaming
	}
	return changed, nil
}

// Fail moves the accumulator to StateFailed with err unless it already
// reached a terminal state.
func (a *AnswerAccumulator) Fail(err error) {
	if a.state == StateFailed || a.state == StateFinalized {
		return
	}
	a.state = StateFailed
	a.err = err
}

// Snapshot returns a copy of the answer accumulated so far.
func (a *AnswerAccumulator) Snapshot() Answer {
	answer := Answer{
		Message: ResponseMessage{
			Content: a.text.String(),
			Role:    a.role,
		},
		Context:      a.context,
		SessionState: a.sessionState,
	}.Clone()
	if answer.Context == nil {
		answer.Context = map[string]any{}
	}
	return answer
}

// ComputeAnswer finalizes the turn and returns the definitive answer, or the
// error that failed the turn.
func (a *AnswerAccumulator) ComputeAnswer() (*Answer, error) {
	if a.state == StateFailed {
		return nil, a.err
	}
	a.state = StateFinalized
	answer := a.Snapshot()
	return &answer, nil
}

// State returns the current state.
func (a *AnswerAccumulator) State() TurnState {
	return a.state
}

// HasBase reports whether a context-init record was received.
func (a *AnswerAccumulator) HasBase() bool {
	return a.hasBase
}

// DeltaCount returns the number of non-empty deltas applied.
func (a *AnswerAccumulator) DeltaCount() int {
	return a.deltas
}

// Err returns the error that failed the turn, if any.
func (a *AnswerAccumulator) Err() error {
	return a.err
}

// Clear resets the accumulator to StateIdle.
func (a *AnswerAccumulator) Clear() {
	*a = AnswerAccumulator{}
}

// processContextInit installs the base answer. A second init record does not
// replace the base; its context is merged like a patch. Merging the first one
// too keeps any keys patched in before it arrived.
func (a *AnswerAccumulator) processContextInit(init *ContextInitEvent) {
	if !a.hasBase {
		a.hasBase = true
		a.role = init.Message.Role
	}
	a.mergeContext(init.Context)
	if init.Message.Content != "" {
		a.text.WriteString(init.Message.Content)
		a.deltas++
	}
}

// mergeContext shallow-merges fields into the working context. Keys absent
// from fields are kept; present keys are overwritten.
func (a *AnswerAccumulator) mergeContext(fields map[string]any) {
	if a.context == nil {
		a.context = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		a.context[k] = cloneJSONValue(v)
	}
}
