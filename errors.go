package chatstream

import (
	"errors"
	"fmt"
)

// Kind is a classification of error type.
type Kind string

const (
	// Decode is a malformed record in the response body. Fatal to the turn.
	Decode Kind = "decode"
	// Server is an "error" field reported by the backend. Fatal to the turn.
	Server Kind = "server"
	// Transport is a network failure before or while streaming.
	Transport    Kind = "transport"
	StatusCode   Kind = "status_code"
	InvalidInput Kind = "invalid_input"
	Invariant    Kind = "invariant"
)

// ChatError represents errors surfaced while running a turn.
type ChatError struct {
	Kind    Kind
	Message string
	Err     error
	// The status for the StatusCode error kind
	Status int
	// The 1-based body line for the Decode error kind, 0 when unknown
	Line int
}

func (e *ChatError) Error() string {
	switch e.Kind {
	case Decode:
		if e.Line > 0 {
			return fmt.Sprintf("decode error at line %d: %s", e.Line, e.Message)
		}
		return fmt.Sprintf("decode error: %s", e.Message)
	case Server:
		// Surfaced verbatim so callers can show it to users as is.
		return e.Message
	case Transport:
		return fmt.Sprintf("transport error: %v", e.Err)
	case StatusCode:
		return fmt.Sprintf("status error: %s (status %d)", e.Message, e.Status)
	case InvalidInput:
		return fmt.Sprintf("invalid input: %s", e.Message)
	case Invariant:
		return fmt.Sprintf("invariant: %s", e.Message)
	default:
		return e.Message
	}
}

// Unwrap allows errors.Is / errors.As to work with wrapped errors.
func (e *ChatError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is, or wraps, a ChatError of the given kind.
func IsKind(err error, kind Kind) bool {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr.Kind == kind
	}
	return false
}

// Helper constructors
func NewDecodeError(line int, err error) *ChatError {
	return &ChatError{Kind: Decode, Message: err.Error(), Err: err, Line: line}
}

func NewServerError(msg string) *ChatError {
	return &ChatError{Kind: Server, Message: msg}
}

func NewTransportError(err error) *ChatError {
	return &ChatError{Kind: Transport, Err: err}
}

func NewStatusCodeError(status int, body string) *ChatError {
	return &ChatError{Kind: StatusCode, Message: body, Status: status}
}

func NewInvalidInputError(msg string) *ChatError {
	return &ChatError{Kind: InvalidInput, Message: msg}
}

func NewInvariantError(msg string) *ChatError {
	return &ChatError{Kind: Invariant, Message: msg}
}
