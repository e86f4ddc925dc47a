package chatstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mayurmacwan/chatstream-go/internal/ndjson"
	"github.com/mayurmacwan/chatstream-go/internal/sliceutils"
	"github.com/mayurmacwan/chatstream-go/utils/stream"
	"go.uber.org/zap"
)

// DefaultSnapshotInterval is how long snapshot delivery is coalesced, so a
// renderer is not forced to redraw once per character.
const DefaultSnapshotInterval = 33 * time.Millisecond

// TurnOptions configures RunTurn.
type TurnOptions struct {
	// SnapshotInterval coalesces snapshots. Zero means
	// DefaultSnapshotInterval; a negative value emits on every change.
	SnapshotInterval time.Duration
	// OnSnapshot receives a copy of the answer each time it changes. It is
	// called from the goroutine running RunTurn, never concurrently.
	OnSnapshot func(Answer)
	Logger     *zap.Logger
}

func (o TurnOptions) interval() time.Duration {
	if o.SnapshotInterval == 0 {
		return DefaultSnapshotInterval
	}
	return o.SnapshotInterval
}

func (o TurnOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// DecodeStream decodes an NDJSON body into stream events on a background
// goroutine. The stream ends at the first decode, transport or context
// error. If body implements io.Closer it is closed when the stream ends or
// ctx is done, which also unblocks a pending read.
func DecodeStream(ctx context.Context, body io.Reader) *stream.Stream[*StreamEvent] {
	eventCh := make(chan *StreamEvent)
	errCh := make(chan error, 1)

	var closeOnce sync.Once
	closeBody := func() {
		if c, ok := body.(io.Closer); ok {
			closeOnce.Do(func() { _ = c.Close() })
		}
	}
	stop := context.AfterFunc(ctx, closeBody)

	go func() {
		defer close(eventCh)
		defer close(errCh)
		defer func() {
			stop()
			closeBody()
		}()

		decoder := ndjson.NewDecoder(body)
		for decoder.Next() {
			event, err := ParseStreamEvent(decoder.Current())
			if err != nil {
				errCh <- NewDecodeError(decoder.Line(), err)
				return
			}
			// A superseded turn must not emit anything further.
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			select {
			case eventCh <- event:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := decoder.Err(); err != nil {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			var lineErr *ndjson.LineError
			if errors.As(err, &lineErr) {
				errCh <- NewDecodeError(lineErr.Line, lineErr.Err)
				return
			}
			errCh <- NewTransportError(err)
		}
	}()

	return stream.New(eventCh, errCh)
}

// RunTurn consumes a streamed NDJSON body and assembles the answer.
//
// Events are applied strictly in arrival order. Snapshots are delivered to
// opts.OnSnapshot at most once per snapshot interval, and a pending snapshot
// is flushed before RunTurn returns the final answer. A server error, a
// malformed record, a transport failure or ctx cancellation fail the turn;
// nothing after the failing record is applied.
func RunTurn(ctx context.Context, body io.Reader, opts TurnOptions) (answer *Answer, err error) {
	logger := opts.logger()
	interval := opts.interval()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, span := NewTurnSpan(ctx, "stream")
	acc := NewAnswerAccumulator()
	defer func() {
		span.OnEnd(answer, acc.DeltaCount(), err)
	}()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	emit := func() {
		pending = false
		timerC = nil
		if opts.OnSnapshot == nil {
			return
		}
		span.OnSnapshot()
		opts.OnSnapshot(acc.Snapshot())
	}

	fail := func(err error) (*Answer, error) {
		acc.Fail(err)
		logger.Warn("turn failed",
			zap.Error(err),
			zap.Int("deltas", acc.DeltaCount()),
		)
		return nil, err
	}

	events := DecodeStream(ctx, body)
	logger.Debug("turn started", zap.Duration("snapshot_interval", interval))

	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())

		case <-timerC:
			emit()

		case event, ok := <-events.C:
			if !ok {
				// Collect the terminal error, if any.
				events.Next()
				if err := events.Err(); err != nil {
					return fail(err)
				}
				if err := ctx.Err(); err != nil {
					return fail(err)
				}
				answer, err := acc.ComputeAnswer()
				if err != nil {
					return fail(err)
				}
				if pending {
					emit()
				}
				if !acc.HasBase() {
					logger.Warn("turn finished without a context record")
				}
				logger.Debug("turn finished",
					zap.Int("deltas", acc.DeltaCount()),
					zap.Int("length", len(answer.Message.Content)),
				)
				return answer, nil
			}

			changed, err := acc.AddEvent(event)
			if err != nil {
				return fail(err)
			}
			if event.Delta != nil || (event.ContextInit != nil && event.ContextInit.Message.Content != "") {
				span.OnDelta()
			}
			if !changed {
				continue
			}

			pending = true
			if interval < 0 {
				emit()
				continue
			}
			if timerC == nil {
				if timer == nil {
					timer = time.NewTimer(interval)
				} else {
					timer.Reset(interval)
				}
				timerC = timer.C
			}
		}
	}
}

// Response is a non-streamed backend response.
type Response struct {
	Answer Answer
	// ThinkingLogs holds the trace records some backends attach to the
	// response, in emission order.
	ThinkingLogs []map[string]any
}

// ParseResponse reads a non-streamed JSON body. The whole body is the one and
// only record; an "error" field fails the turn exactly like a streamed one.
func ParseResponse(ctx context.Context, body io.Reader) (resp *Response, err error) {
	_, span := NewTurnSpan(ctx, "json")
	defer func() {
		if resp != nil {
			span.OnEnd(&resp.Answer, 1, err)
			return
		}
		span.OnEnd(nil, 0, err)
	}()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, NewTransportError(err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, NewDecodeError(0, err)
	}
	if fields == nil {
		return nil, NewDecodeError(0, errNotObject)
	}

	if msg, ok := parseErrorField(fields["error"]); ok {
		return nil, NewServerError(msg)
	}

	base := &ContextInitEvent{}
	if raw, ok := fields["message"]; ok {
		if err := json.Unmarshal(raw, &base.Message); err != nil {
			return nil, NewDecodeError(0, err)
		}
	}
	if raw, ok := fields["context"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &base.Context); err != nil {
			return nil, NewDecodeError(0, fmt.Errorf("context must be an object: %w", err))
		}
	}
	event := &StreamEvent{ContextInit: base}
	if raw, ok := fields["session_state"]; ok && !isNull(raw) {
		var state string
		if err := json.Unmarshal(raw, &state); err == nil {
			event.SessionState = &state
		}
	}

	acc := NewAnswerAccumulator()
	if _, err := acc.AddEvent(event); err != nil {
		return nil, err
	}
	answer, err := acc.ComputeAnswer()
	if err != nil {
		return nil, err
	}

	resp = &Response{Answer: *answer}
	if raw, ok := fields["thinking_logs"]; ok && !isNull(raw) {
		var logs []any
		if err := json.Unmarshal(raw, &logs); err != nil {
			return nil, NewDecodeError(0, fmt.Errorf("thinking_logs: %w", err))
		}
		resp.ThinkingLogs = sliceutils.FilterMap(logs, sliceutils.AsObject)
	}
	return resp, nil
}

// ParseAnswer is ParseResponse without the trace records.
func ParseAnswer(ctx context.Context, body io.Reader) (*Answer, error) {
	resp, err := ParseResponse(ctx, body)
	if err != nil {
		return nil, err
	}
	return &resp.Answer, nil
}
