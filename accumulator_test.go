package chatstream_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	chatstream "github.com/mayurmacwan/chatstream-go"
	"github.com/mayurmacwan/chatstream-go/utils/ptr"
)

func initEvent(role, content string, ctx map[string]any) *chatstream.StreamEvent {
	return &chatstream.StreamEvent{
		ContextInit: &chatstream.ContextInitEvent{
			Context: ctx,
			Message: chatstream.ResponseMessage{Content: content, Role: role},
		},
	}
}

func deltaEvent(content string) *chatstream.StreamEvent {
	return &chatstream.StreamEvent{Delta: &chatstream.DeltaEvent{Content: content}}
}

func patchEvent(fields map[string]any) *chatstream.StreamEvent {
	return &chatstream.StreamEvent{ContextPatch: &chatstream.ContextPatchEvent{Fields: fields}}
}

func TestAnswerAccumulatorDeltasConcatenate(t *testing.T) {
	acc := chatstream.NewAnswerAccumulator()
	if _, err := acc.AddEvent(initEvent("assistant", "", map[string]any{"data_points": []any{}})); err != nil {
		t.Fatal(err)
	}

	parts := []string{"The ", "quick ", "brown ", "", "fox"}
	for _, p := range parts {
		if _, err := acc.AddEvent(deltaEvent(p)); err != nil {
			t.Fatal(err)
		}
	}

	answer, err := acc.ComputeAnswer()
	if err != nil {
		t.Fatal(err)
	}
	if answer.Message.Content != "The quick brown fox" {
		t.Errorf("content = %q", answer.Message.Content)
	}
	if answer.Message.Role != "assistant" {
		t.Errorf("role = %q", answer.Message.Role)
	}
	if acc.DeltaCount() != 4 {
		t.Errorf("delta count = %d, want 4", acc.DeltaCount())
	}
}

func TestAnswerAccumulatorPatchLastWriteWins(t *testing.T) {
	acc := chatstream.NewAnswerAccumulator()
	events := []*chatstream.StreamEvent{
		initEvent("assistant", "", map[string]any{"data_points": []any{"d1"}}),
		patchEvent(map[string]any{"a": 1}),
		patchEvent(map[string]any{"a": 2, "b": 3}),
	}
	for _, ev := range events {
		if _, err := acc.AddEvent(ev); err != nil {
			t.Fatal(err)
		}
	}

	answer, err := acc.ComputeAnswer()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"data_points": []any{"d1"}, "a": 2, "b": 3}
	if diff := cmp.Diff(want, answer.Context); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestAnswerAccumulatorPatchBeforeInitIsKept(t *testing.T) {
	acc := chatstream.NewAnswerAccumulator()
	events := []*chatstream.StreamEvent{
		patchEvent(map[string]any{"early": true}),
		initEvent("assistant", "x", map[string]any{"data_points": []any{}}),
		initEvent("user", "y", map[string]any{"data_points": []any{"late"}}),
	}
	for _, ev := range events {
		if _, err := acc.AddEvent(ev); err != nil {
			t.Fatal(err)
		}
	}

	answer := acc.Snapshot()
	want := chatstream.Answer{
		Message: chatstream.ResponseMessage{Content: "xy", Role: "assistant"},
		Context: map[string]any{"early": true, "data_points": []any{"late"}},
	}
	if diff := cmp.Diff(want, answer); diff != "" {
		t.Errorf("answer mismatch (-want +got):\n%s", diff)
	}
}

func TestAnswerAccumulatorErrorIsTerminal(t *testing.T) {
	acc := chatstream.NewAnswerAccumulator()
	if _, err := acc.AddEvent(initEvent("assistant", "a", map[string]any{"data_points": []any{}})); err != nil {
		t.Fatal(err)
	}

	_, err := acc.AddEvent(&chatstream.StreamEvent{Error: &chatstream.ErrorEvent{Message: "rate limited"}})
	if !chatstream.IsKind(err, chatstream.Server) {
		t.Fatalf("expected server error, got %v", err)
	}
	if err.Error() != "rate limited" {
		t.Errorf("error message = %q", err.Error())
	}
	if acc.State() != chatstream.StateFailed {
		t.Errorf("state = %s", acc.State())
	}

	if _, err2 := acc.AddEvent(deltaEvent("more")); !errors.Is(err2, err) {
		t.Errorf("expected stored error after failure, got %v", err2)
	}
	if got := acc.Snapshot().Message.Content; got != "a" {
		t.Errorf("content after failure = %q", got)
	}
	if _, err := acc.ComputeAnswer(); err == nil {
		t.Error("expected ComputeAnswer to return the failure")
	}
}

func TestAnswerAccumulatorRejectsEventsAfterFinalize(t *testing.T) {
	acc := chatstream.NewAnswerAccumulator()
	if _, err := acc.ComputeAnswer(); err != nil {
		t.Fatal(err)
	}
	_, err := acc.AddEvent(deltaEvent("late"))
	if !chatstream.IsKind(err, chatstream.Invariant) {
		t.Errorf("expected invariant error, got %v", err)
	}
}

func TestAnswerAccumulatorWithoutBase(t *testing.T) {
	acc := chatstream.NewAnswerAccumulator()
	if _, err := acc.AddEvent(deltaEvent("orphan")); err != nil {
		t.Fatal(err)
	}
	answer, err := acc.ComputeAnswer()
	if err != nil {
		t.Fatal(err)
	}
	if acc.HasBase() {
		t.Error("HasBase should be false")
	}
	want := &chatstream.Answer{
		Message: chatstream.ResponseMessage{Content: "orphan"},
		Context: map[string]any{},
	}
	if diff := cmp.Diff(want, answer); diff != "" {
		t.Errorf("answer mismatch (-want +got):\n%s", diff)
	}
}

func TestAnswerAccumulatorSnapshotIsolation(t *testing.T) {
	acc := chatstream.NewAnswerAccumulator()
	ctx := map[string]any{"data_points": []any{"d1"}, "nested": map[string]any{"k": "v"}}
	if _, err := acc.AddEvent(initEvent("assistant", "", ctx)); err != nil {
		t.Fatal(err)
	}

	ctx["data_points"].([]any)[0] = "mutated input"
	snap := acc.Snapshot()
	snap.Context["nested"].(map[string]any)["k"] = "mutated snapshot"

	again := acc.Snapshot()
	want := map[string]any{"data_points": []any{"d1"}, "nested": map[string]any{"k": "v"}}
	if diff := cmp.Diff(want, again.Context); diff != "" {
		t.Errorf("context leaked (-want +got):\n%s", diff)
	}
}

func TestAnswerAccumulatorSessionState(t *testing.T) {
	acc := chatstream.NewAnswerAccumulator()
	for _, s := range []string{"s1", "s2"} {
		if _, err := acc.AddEvent(&chatstream.StreamEvent{SessionState: ptr.To(s)}); err != nil {
			t.Fatal(err)
		}
	}
	if got := ptr.Deref(acc.Snapshot().SessionState); got != "s2" {
		t.Errorf("session state = %q", got)
	}
}

func TestAnswerAccumulatorClear(t *testing.T) {
	acc := chatstream.NewAnswerAccumulator()
	acc.Fail(errors.New("boom"))
	acc.Clear()
	if acc.State() != chatstream.StateIdle || acc.Err() != nil {
		t.Errorf("Clear did not reset: state=%s err=%v", acc.State(), acc.Err())
	}
}
