package chatstream

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Role values used by the backend.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ResponseMessage is the message part of an answer.
type ResponseMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// UnmarshalJSON accepts both the object form {"content","role"} and the bare
// string form some non-streaming backends send for "message".
func (m *ResponseMessage) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = ResponseMessage{Content: s, Role: RoleAssistant}
		return nil
	}
	type plain ResponseMessage
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("message: %w", err)
	}
	*m = ResponseMessage(p)
	return nil
}

// Answer is the assembled response of one turn.
//
// Message.Content only ever grows while a turn streams and Context only gains
// or overwrites keys. Values handed out by the assembler are copies.
type Answer struct {
	Message      ResponseMessage `json:"message"`
	Context      map[string]any  `json:"context"`
	SessionState *string         `json:"session_state,omitempty"`
}

// Clone returns a copy of the answer that shares no mutable state with a.
func (a Answer) Clone() Answer {
	out := a
	out.Context = cloneJSONMap(a.Context)
	if a.SessionState != nil {
		s := *a.SessionState
		out.SessionState = &s
	}
	return out
}

// DataPoints returns the raw "data_points" entry of the context.
func (a Answer) DataPoints() any {
	return a.Context["data_points"]
}

// Thought is one entry of the "thoughts" context key.
type Thought struct {
	Title       string         `json:"title"`
	Description any            `json:"description"`
	Props       map[string]any `json:"props,omitempty"`
}

// Thoughts decodes the "thoughts" context key. Entries that are not objects
// are skipped.
func (a Answer) Thoughts() []Thought {
	raw, ok := a.Context["thoughts"].([]any)
	if !ok {
		return nil
	}
	var thoughts []Thought
	for _, item := range raw {
		if _, ok := item.(map[string]any); !ok {
			continue
		}
		b, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var t Thought
		if err := json.Unmarshal(b, &t); err != nil {
			continue
		}
		thoughts = append(thoughts, t)
	}
	return thoughts
}

// FollowupQuestions returns the "followup_questions" context key.
func (a Answer) FollowupQuestions() []string {
	raw, ok := a.Context["followup_questions"].([]any)
	if !ok {
		return nil
	}
	questions := make([]string, 0, len(raw))
	for _, q := range raw {
		if s, ok := q.(string); ok && strings.TrimSpace(s) != "" {
			questions = append(questions, s)
		}
	}
	return questions
}

// ChatRequest is the body of a /chat or /chat/stream call.
type ChatRequest struct {
	Messages     []ResponseMessage `json:"messages"`
	Context      RequestContext    `json:"context"`
	SessionState *string           `json:"session_state,omitempty"`
}

type RequestContext struct {
	Overrides Overrides `json:"overrides"`
}

// Overrides tune answer generation on the backend.
type Overrides struct {
	PromptTemplate           *string  `json:"prompt_template,omitempty"`
	Temperature              *float64 `json:"temperature,omitempty"`
	Seed                     *int64   `json:"seed,omitempty"`
	SuggestFollowupQuestions bool     `json:"suggest_followup_questions"`
}

// cloneJSONMap deep-copies a decoded JSON object.
func cloneJSONMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = cloneJSONValue(v)
	}
	return out
}

func cloneJSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneJSONMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneJSONValue(item)
		}
		return out
	default:
		return v
	}
}
