package upload

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	chatstream "github.com/mayurmacwan/chatstream-go"
)

// Class tells whether an upload failure is worth retrying.
type Class int

const (
	ClassNone Class = iota
	Transient
	Permanent
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Error is a classified upload failure.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient upload failure.
func IsTransient(err error) bool {
	return Classify(err) == Transient
}

// Classify sorts err into Transient (the request never completed at the
// transport level) or Permanent (anything else, including cancellation and
// non-success statuses). A nil error is ClassNone.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var uploadErr *Error
	if errors.As(err, &uploadErr) {
		return uploadErr.Class
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Permanent
	}

	var chatErr *chatstream.ChatError
	if errors.As(err, &chatErr) {
		if chatErr.Kind == chatstream.Transport {
			return Transient
		}
		return Permanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return Transient
	}

	msg := err.Error()
	if strings.Contains(msg, "Failed to fetch") || strings.Contains(msg, "NetworkError") {
		return Transient
	}
	return Permanent
}
