package chatstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// StreamEvent is one decoded record of a streamed turn.
//
// A record normally populates a single variant. Records that carry more than
// one (a context patch next to a delta, say) populate each of them, and the
// assembler applies them in the order Error, ContextInit, ContextPatch, Delta.
type StreamEvent struct {
	ContextInit  *ContextInitEvent
	ContextPatch *ContextPatchEvent
	Delta        *DeltaEvent
	Error        *ErrorEvent
	// SessionState is the record's "session_state" value when it is a string.
	SessionState *string
}

// ContextInitEvent carries the full context of a turn. It is detected by the
// presence of both "context" and "context.data_points".
type ContextInitEvent struct {
	Context map[string]any
	// Message is the record's "delta" (or "message") and defines the role.
	Message ResponseMessage
}

// ContextPatchEvent holds keys to shallow-merge into the accumulated context.
type ContextPatchEvent struct {
	Fields map[string]any
}

// DeltaEvent is a content fragment to append to the answer text.
type DeltaEvent struct {
	Content string
	Role    string
}

// ErrorEvent terminates the turn with a backend-reported message.
type ErrorEvent struct {
	Message string
}

// IsEmpty reports whether the record carried nothing the assembler acts on.
func (e *StreamEvent) IsEmpty() bool {
	return e.ContextInit == nil && e.ContextPatch == nil && e.Delta == nil && e.Error == nil && e.SessionState == nil
}

var errNotObject = errors.New("record is not a JSON object")

// ParseStreamEvent classifies a raw NDJSON record.
func ParseStreamEvent(raw json.RawMessage) (*StreamEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, errNotObject
	}

	event := &StreamEvent{}

	if msg, ok := parseErrorField(fields["error"]); ok {
		event.Error = &ErrorEvent{Message: msg}
	}

	if rawState, ok := fields["session_state"]; ok && !isNull(rawState) {
		var state string
		if err := json.Unmarshal(rawState, &state); err == nil {
			event.SessionState = &state
		}
	}

	var delta *ResponseMessage
	if rawDelta, ok := fields["delta"]; ok && !isNull(rawDelta) {
		var d struct {
			Content any    `json:"content"`
			Role    string `json:"role"`
		}
		if err := json.Unmarshal(rawDelta, &d); err != nil {
			return nil, fmt.Errorf("delta: %w", err)
		}
		content, _ := d.Content.(string)
		delta = &ResponseMessage{Content: content, Role: d.Role}
	}

	if rawContext, ok := fields["context"]; ok && !isNull(rawContext) {
		var ctx map[string]any
		if err := json.Unmarshal(rawContext, &ctx); err != nil {
			return nil, fmt.Errorf("context must be an object: %w", err)
		}

		if dataPoints, ok := ctx["data_points"]; ok && dataPoints != nil {
			init := &ContextInitEvent{Context: ctx}
			switch {
			case delta != nil:
				init.Message = *delta
			case fields["message"] != nil && !isNull(fields["message"]):
				if err := json.Unmarshal(fields["message"], &init.Message); err != nil {
					return nil, err
				}
			}
			event.ContextInit = init
			// The delta of an init record is its message, not a separate fragment.
			delta = nil
		} else {
			event.ContextPatch = &ContextPatchEvent{Fields: ctx}
		}
	}

	if delta != nil && delta.Content != "" {
		event.Delta = &DeltaEvent{Content: delta.Content, Role: delta.Role}
	}

	return event, nil
}

func parseErrorField(raw json.RawMessage) (string, bool) {
	if raw == nil || isNull(raw) {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg, msg != ""
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("false")) {
		return "", false
	}
	return string(bytes.TrimSpace(raw)), true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
