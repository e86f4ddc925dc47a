package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	chatstream "github.com/mayurmacwan/chatstream-go"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := tracer
	tracer = provider.Tracer("test")
	t.Cleanup(func() { tracer = prev })
	return recorder
}

func TestTraceRequest(t *testing.T) {
	recorder := withRecorder(t)

	got, err := TraceRequest(context.Background(), "config", http.MethodGet, "http://x/config", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("TraceRequest = %d, %v", got, err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "chatstream.http.config" {
		t.Fatalf("unexpected spans %v", spans)
	}
}

func TestTraceRequestError(t *testing.T) {
	recorder := withRecorder(t)

	_, err := TraceRequest(context.Background(), "chat", http.MethodPost, "http://x/chat", func(ctx context.Context) (*struct{}, error) {
		return nil, chatstream.NewStatusCodeError(502, "bad gateway")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("status = %v", spans[0].Status())
	}
	var found bool
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "http.response.status_code" && attr.Value.AsInt64() == 502 {
			found = true
		}
	}
	if !found {
		t.Error("status code attribute missing")
	}
}

func TestTraceStream(t *testing.T) {
	recorder := withRecorder(t)

	_, err := TraceStream(context.Background(), "chat_stream", "http://x/chat/stream", func(ctx context.Context) (*http.Response, error) {
		return nil, errors.New("dial failed")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(recorder.Ended()) != 1 {
		t.Errorf("expected one ended span")
	}
}
