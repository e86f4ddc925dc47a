package chatstream_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	chatstream "github.com/mayurmacwan/chatstream-go"
	"github.com/mayurmacwan/chatstream-go/utils/ptr"
)

func TestParseStreamEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *chatstream.StreamEvent
	}{
		{
			name: "context init with delta",
			raw:  `{"context":{"data_points":["d1"]},"delta":{"content":"Hel","role":"assistant"}}`,
			want: &chatstream.StreamEvent{
				ContextInit: &chatstream.ContextInitEvent{
					Context: map[string]any{"data_points": []any{"d1"}},
					Message: chatstream.ResponseMessage{Content: "Hel", Role: "assistant"},
				},
			},
		},
		{
			name: "context init with message",
			raw:  `{"context":{"data_points":{"text":[]}},"message":{"content":"","role":"assistant"}}`,
			want: &chatstream.StreamEvent{
				ContextInit: &chatstream.ContextInitEvent{
					Context: map[string]any{"data_points": map[string]any{"text": []any{}}},
					Message: chatstream.ResponseMessage{Role: "assistant"},
				},
			},
		},
		{
			name: "context without data_points is a patch",
			raw:  `{"context":{"followup_questions":["why?"]}}`,
			want: &chatstream.StreamEvent{
				ContextPatch: &chatstream.ContextPatchEvent{
					Fields: map[string]any{"followup_questions": []any{"why?"}},
				},
			},
		},
		{
			name: "null data_points is a patch",
			raw:  `{"context":{"data_points":null,"a":1}}`,
			want: &chatstream.StreamEvent{
				ContextPatch: &chatstream.ContextPatchEvent{
					Fields: map[string]any{"data_points": nil, "a": float64(1)},
				},
			},
		},
		{
			name: "delta",
			raw:  `{"delta":{"content":"lo"}}`,
			want: &chatstream.StreamEvent{
				Delta: &chatstream.DeltaEvent{Content: "lo"},
			},
		},
		{
			name: "empty delta is ignored",
			raw:  `{"delta":{"content":"","role":"assistant"}}`,
			want: &chatstream.StreamEvent{},
		},
		{
			name: "non-string delta content is ignored",
			raw:  `{"delta":{"content":null}}`,
			want: &chatstream.StreamEvent{},
		},
		{
			name: "error",
			raw:  `{"error":"rate limited"}`,
			want: &chatstream.StreamEvent{
				Error: &chatstream.ErrorEvent{Message: "rate limited"},
			},
		},
		{
			name: "empty error is ignored",
			raw:  `{"error":"","delta":{"content":"x"}}`,
			want: &chatstream.StreamEvent{
				Delta: &chatstream.DeltaEvent{Content: "x"},
			},
		},
		{
			name: "structured error keeps raw json",
			raw:  `{"error":{"code":429}}`,
			want: &chatstream.StreamEvent{
				Error: &chatstream.ErrorEvent{Message: `{"code":429}`},
			},
		},
		{
			name: "session state next to delta",
			raw:  `{"delta":{"content":"a"},"session_state":"s1"}`,
			want: &chatstream.StreamEvent{
				Delta:        &chatstream.DeltaEvent{Content: "a"},
				SessionState: ptr.To("s1"),
			},
		},
		{
			name: "patch next to delta",
			raw:  `{"context":{"k":"v"},"delta":{"content":"a"}}`,
			want: &chatstream.StreamEvent{
				ContextPatch: &chatstream.ContextPatchEvent{Fields: map[string]any{"k": "v"}},
				Delta:        &chatstream.DeltaEvent{Content: "a"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chatstream.ParseStreamEvent(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("ParseStreamEvent: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("event mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseStreamEventRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"text"`, `42`, `null`, `{"context":[1]}`} {
		if _, err := chatstream.ParseStreamEvent(json.RawMessage(raw)); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestStreamEventIsEmpty(t *testing.T) {
	ev, err := chatstream.ParseStreamEvent(json.RawMessage(`{"unrelated":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if !ev.IsEmpty() {
		t.Errorf("expected empty event, got %+v", ev)
	}
}
