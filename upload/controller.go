// Package upload runs a file upload with a small, bounded number of retries
// on transport failures and reports progress as user-facing notices.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	chatstream "github.com/mayurmacwan/chatstream-go"
	"go.uber.org/zap"
)

const (
	DefaultRetryDelay = 2 * time.Second
	// MaxAttempts counts the first try.
	MaxAttempts = 3
	// DefaultMaxBytes is the largest file accepted before any network call.
	DefaultMaxBytes int64 = 10 * 1024 * 1024
)

// Response is the backend's answer to an upload.
type Response struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	FileID      string `json:"file_id,omitempty"`
	AssistantID string `json:"assistant_id,omitempty"`
}

// applyDefaults fills in what older backends leave out.
func (r *Response) applyDefaults() {
	if r.Status == "" {
		r.Status = "success"
	}
	if r.Message == "" {
		r.Message = "File uploaded successfully"
	}
}

// Operation performs one upload attempt.
type Operation func(ctx context.Context) (*Response, error)

// RetryState is the progress of the upload in flight. It is back to zero
// once the upload succeeds or fails for good.
type RetryState struct {
	// Attempt is the number of retries issued so far, 0..MaxAttempts-1.
	Attempt   int
	LastClass Class
}

// Controller wraps an upload Operation with bounded retries.
type Controller struct {
	retryDelay    time.Duration
	maxBytes      int64
	notify        func(string)
	successNotice func(filename string, resp *Response) string
	logger        *zap.Logger

	mu    sync.Mutex
	state RetryState
}

type Option func(*Controller)

// WithRetryDelay sets the fixed delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Controller) { c.retryDelay = d }
}

// WithMaxBytes sets the size limit checked before uploading. Zero or less
// disables the check.
func WithMaxBytes(n int64) Option {
	return func(c *Controller) { c.maxBytes = n }
}

// WithNotify receives every notice, in order.
func WithNotify(fn func(string)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.notify = fn
		}
	}
}

// WithSuccessNotice replaces StatusNotice.
func WithSuccessNotice(fn func(filename string, resp *Response) string) Option {
	return func(c *Controller) { c.successNotice = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func NewController(opts ...Option) *Controller {
	c := &Controller{
		retryDelay:    DefaultRetryDelay,
		maxBytes:      DefaultMaxBytes,
		notify:        func(string) {},
		successNotice: StatusNotice,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current retry state.
func (c *Controller) State() RetryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Upload runs op until it succeeds, fails permanently or has been tried
// MaxAttempts times. Transient failures are retried after the retry delay.
// The returned error, if any, is an *Error.
func (c *Controller) Upload(ctx context.Context, filename string, size int64, op Operation) (*Response, error) {
	defer c.setState(RetryState{})

	if c.maxBytes > 0 && size > c.maxBytes {
		err := &Error{
			Class: Permanent,
			Err:   chatstream.NewInvalidInputError(fmt.Sprintf("File size exceeds %dMB limit", c.maxBytes/(1024*1024))),
		}
		c.notify("Error: " + noticeMessage(err))
		return nil, err
	}

	c.notify(fmt.Sprintf("Uploading %s...", filename))
	c.logger.Debug("upload started", zap.String("filename", filename), zap.Int64("size", size))

	attempt := func() (*Response, error) {
		resp, err := op(ctx)
		if err == nil {
			if resp == nil {
				resp = &Response{}
			}
			resp.applyDefaults()
			return resp, nil
		}
		class := Classify(err)
		c.mu.Lock()
		c.state.LastClass = class
		c.mu.Unlock()

		if class == Permanent {
			return nil, backoff.Permanent(&Error{Class: Permanent, Err: err})
		}
		return nil, &Error{Class: Transient, Err: err}
	}

	resp, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.mu.Lock()
			c.state.Attempt++
			n := c.state.Attempt
			c.mu.Unlock()

			c.logger.Warn("upload failed, retrying",
				zap.String("filename", filename),
				zap.Int("attempt", n),
				zap.Duration("delay", next),
				zap.Error(err),
			)
			c.notify(fmt.Sprintf("Network error during upload. Retrying (%d/%d)...", n, MaxAttempts))
		}),
	)
	if err != nil {
		var uploadErr *Error
		if !errors.As(err, &uploadErr) {
			uploadErr = &Error{Class: Permanent, Err: err}
		}
		c.logger.Warn("upload failed",
			zap.String("filename", filename),
			zap.Stringer("class", uploadErr.Class),
			zap.Error(uploadErr.Err),
		)
		c.notify("Error: " + noticeMessage(uploadErr))
		return nil, uploadErr
	}

	c.logger.Info("upload finished",
		zap.String("filename", filename),
		zap.String("status", resp.Status),
		zap.String("file_id", resp.FileID),
	)
	c.notify(c.successNotice(filename, resp))
	return resp, nil
}

func (c *Controller) setState(s RetryState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// noticeMessage prefers the bare message of a ChatError over its formatted
// Error text.
func noticeMessage(err error) string {
	var chatErr *chatstream.ChatError
	if errors.As(err, &chatErr) && chatErr.Message != "" {
		return chatErr.Message
	}
	return err.Error()
}

// StatusNotice describes a completed upload according to its status.
func StatusNotice(filename string, resp *Response) string {
	switch resp.Status {
	case "success":
		return filename + " uploaded successfully! Document processing has started. " +
			"This can take 2-5 minutes before the document is available for questions."
	case "warning":
		return fmt.Sprintf("%s uploaded, but with a warning: %s. The file may need manual processing.", filename, resp.Message)
	default:
		return fmt.Sprintf("%s uploaded with status: %s. %s", filename, resp.Status, resp.Message)
	}
}
