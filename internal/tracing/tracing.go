package tracing

import (
	"context"
	"errors"
	"net/http"
	"time"

	chatstream "github.com/mayurmacwan/chatstream-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mayurmacwan/chatstream-go/chatapi")

type httpSpan struct {
	Operation string
	Method    string
	URL       string
	StartTime time.Time
	Status    int

	span trace.Span
}

// TraceRequest runs fn inside a "chatstream.http.<operation>" span.
func TraceRequest[T any](
	ctx context.Context,
	operation string,
	method string,
	url string,
	fn func(context.Context) (T, error),
) (T, error) {
	ctx, span := newHTTPSpan(ctx, operation, method, url)
	defer span.OnEnd()

	result, err := fn(ctx)
	if err != nil {
		span.OnError(err)
	}
	return result, err
}

// TraceStream traces the request that opens a stream. The span ends once the
// response headers arrived; reading the body belongs to the turn span.
func TraceStream(
	ctx context.Context,
	operation string,
	url string,
	fn func(context.Context) (*http.Response, error),
) (*http.Response, error) {
	ctx, span := newHTTPSpan(ctx, operation, http.MethodPost, url)
	defer span.OnEnd()

	resp, err := fn(ctx)
	if err != nil {
		span.OnError(err)
		return nil, err
	}
	span.Status = resp.StatusCode
	return resp, nil
}

func newHTTPSpan(ctx context.Context, operation, method, url string) (context.Context, *httpSpan) {
	spanCtx, otelSpan := tracer.Start(ctx, "chatstream.http."+operation,
		trace.WithSpanKind(trace.SpanKindClient))

	return spanCtx, &httpSpan{
		Operation: operation,
		Method:    method,
		URL:       url,
		StartTime: time.Now(),
		span:      otelSpan,
	}
}

func (s *httpSpan) OnError(err error) {
	if err == nil {
		return
	}
	var chatErr *chatstream.ChatError
	if errors.As(err, &chatErr) {
		s.span.SetAttributes(attribute.String("chatstream.error.kind", string(chatErr.Kind)))
		if chatErr.Kind == chatstream.StatusCode {
			s.Status = chatErr.Status
		}
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *httpSpan) OnEnd() {
	s.span.SetAttributes(
		attribute.String("http.request.method", s.Method),
		attribute.String("url.full", s.URL),
		attribute.Float64("chatstream.http.duration", time.Since(s.StartTime).Seconds()),
	)
	if s.Status != 0 {
		s.span.SetAttributes(attribute.Int("http.response.status_code", s.Status))
	}
	s.span.End()
}
