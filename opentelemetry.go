package chatstream

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/mayurmacwan/chatstream-go"
)

var tracer = otel.Tracer(tracerName)

// TurnSpan records one turn as an OpenTelemetry span.
type TurnSpan struct {
	mode             string
	startTime        time.Time
	span             trace.Span
	snapshots        int
	timeToFirstDelta *float64
}

// NewTurnSpan starts a span for a turn. mode is "stream" or "json".
func NewTurnSpan(ctx context.Context, mode string) (context.Context, *TurnSpan) {
	spanCtx, span := tracer.Start(ctx, "chatstream.turn",
		trace.WithAttributes(
			attribute.String("chatstream.turn.mode", mode),
		))

	return spanCtx, &TurnSpan{
		mode:      mode,
		startTime: time.Now(),
		span:      span,
	}
}

// OnDelta marks that answer text arrived.
func (s *TurnSpan) OnDelta() {
	if s.timeToFirstDelta == nil {
		ttfd := time.Since(s.startTime).Seconds()
		s.timeToFirstDelta = &ttfd
	}
}

// OnSnapshot counts a snapshot delivered to the caller.
func (s *TurnSpan) OnSnapshot() {
	s.snapshots++
}

// OnEnd ends the span with the outcome of the turn.
func (s *TurnSpan) OnEnd(answer *Answer, deltas int, err error) {
	attrs := []attribute.KeyValue{
		attribute.Int("chatstream.turn.deltas", deltas),
		attribute.Int("chatstream.turn.snapshots", s.snapshots),
	}
	if s.timeToFirstDelta != nil {
		attrs = append(attrs, attribute.Float64("chatstream.turn.time_to_first_delta", *s.timeToFirstDelta))
	}
	if answer != nil {
		attrs = append(attrs,
			attribute.Int("chatstream.answer.length", len(answer.Message.Content)),
			attribute.String("chatstream.answer.role", answer.Message.Role),
		)
	}
	if err != nil {
		attrs = append(attrs, attribute.String("chatstream.error.kind", errorKind(err)))
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}

	s.span.SetAttributes(attrs...)
	s.span.End()
}

func errorKind(err error) string {
	for _, kind := range []Kind{Decode, Server, Transport, StatusCode, InvalidInput, Invariant} {
		if IsKind(err, kind) {
			return string(kind)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "unknown"
}
