package upload_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	chatstream "github.com/mayurmacwan/chatstream-go"
	"github.com/mayurmacwan/chatstream-go/upload"
)

type recorder struct {
	notices []string
}

func (r *recorder) notify(s string) { r.notices = append(r.notices, s) }

func newController(r *recorder, opts ...upload.Option) *upload.Controller {
	opts = append([]upload.Option{
		upload.WithRetryDelay(time.Millisecond),
		upload.WithNotify(r.notify),
	}, opts...)
	return upload.NewController(opts...)
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	rec := &recorder{}
	c := newController(rec)

	var calls int
	var statesSeen []upload.RetryState
	resp, err := c.Upload(context.Background(), "notes.pdf", 1024, func(ctx context.Context) (*upload.Response, error) {
		calls++
		statesSeen = append(statesSeen, c.State())
		if calls <= 2 {
			return nil, errors.New("TypeError: Failed to fetch")
		}
		return &upload.Response{Status: "success", FileID: "f1"}, nil
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.FileID != "f1" || resp.Message != "File uploaded successfully" {
		t.Errorf("unexpected response %+v", resp)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	wantStates := []upload.RetryState{
		{},
		{Attempt: 1, LastClass: upload.Transient},
		{Attempt: 2, LastClass: upload.Transient},
	}
	if diff := cmp.Diff(wantStates, statesSeen); diff != "" {
		t.Errorf("retry states mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"Uploading notes.pdf...",
		"Network error during upload. Retrying (1/3)...",
		"Network error during upload. Retrying (2/3)...",
		upload.StatusNotice("notes.pdf", &upload.Response{Status: "success"}),
	}
	if diff := cmp.Diff(want, rec.notices); diff != "" {
		t.Errorf("notices mismatch (-want +got):\n%s", diff)
	}
	if got := c.State(); got != (upload.RetryState{}) {
		t.Errorf("state not reset: %+v", got)
	}
}

func TestUploadGivesUpAfterThreeAttempts(t *testing.T) {
	rec := &recorder{}
	c := newController(rec)

	var calls int
	_, err := c.Upload(context.Background(), "a.txt", 1, func(ctx context.Context) (*upload.Response, error) {
		calls++
		return nil, chatstream.NewTransportError(io.ErrUnexpectedEOF)
	})
	if calls != upload.MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, upload.MaxAttempts)
	}

	var uploadErr *upload.Error
	if !errors.As(err, &uploadErr) || uploadErr.Class != upload.Transient {
		t.Fatalf("expected transient upload error, got %v", err)
	}
	if last := rec.notices[len(rec.notices)-1]; last != "Error: transport error: unexpected EOF" {
		t.Errorf("last notice = %q", last)
	}
	if got := c.State(); got != (upload.RetryState{}) {
		t.Errorf("state not reset: %+v", got)
	}
}

func TestUploadPermanentFailureIsNotRetried(t *testing.T) {
	rec := &recorder{}
	c := newController(rec)

	var calls int
	_, err := c.Upload(context.Background(), "a.txt", 1, func(ctx context.Context) (*upload.Response, error) {
		calls++
		return nil, chatstream.NewStatusCodeError(415, "Unsupported file type")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if upload.Classify(err) != upload.Permanent {
		t.Errorf("expected permanent error, got %v", err)
	}
	want := []string{"Uploading a.txt...", "Error: Unsupported file type"}
	if diff := cmp.Diff(want, rec.notices); diff != "" {
		t.Errorf("notices mismatch (-want +got):\n%s", diff)
	}
}

func TestUploadRejectsLargeFiles(t *testing.T) {
	rec := &recorder{}
	c := newController(rec)

	_, err := c.Upload(context.Background(), "big.bin", upload.DefaultMaxBytes+1, func(ctx context.Context) (*upload.Response, error) {
		t.Fatal("operation must not run")
		return nil, nil
	})
	if !chatstream.IsKind(err, chatstream.InvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if diff := cmp.Diff([]string{"Error: File size exceeds 10MB limit"}, rec.notices); diff != "" {
		t.Errorf("notices mismatch (-want +got):\n%s", diff)
	}
}

func TestUploadCanceledDuringDelay(t *testing.T) {
	rec := &recorder{}
	c := newController(rec, upload.WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.Upload(ctx, "a.txt", 1, func(ctx context.Context) (*upload.Response, error) {
		cancel()
		return nil, errors.New("NetworkError when attempting to fetch resource.")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStatusNotice(t *testing.T) {
	tests := []struct {
		resp upload.Response
		want string
	}{
		{
			upload.Response{Status: "success"},
			"f.pdf uploaded successfully! Document processing has started. This can take 2-5 minutes before the document is available for questions.",
		},
		{
			upload.Response{Status: "warning", Message: "OCR unavailable"},
			"f.pdf uploaded, but with a warning: OCR unavailable. The file may need manual processing.",
		},
		{
			upload.Response{Status: "queued", Message: "later"},
			"f.pdf uploaded with status: queued. later",
		},
	}
	for _, tt := range tests {
		if got := upload.StatusNotice("f.pdf", &tt.resp); got != tt.want {
			t.Errorf("StatusNotice(%q) = %q, want %q", tt.resp.Status, got, tt.want)
		}
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want upload.Class
	}{
		{nil, upload.ClassNone},
		{errors.New("Failed to fetch"), upload.Transient},
		{errors.New("NetworkError"), upload.Transient},
		{fmt.Errorf("read: %w", io.ErrUnexpectedEOF), upload.Transient},
		{timeoutError{}, upload.Transient},
		{chatstream.NewTransportError(errors.New("reset")), upload.Transient},
		{chatstream.NewStatusCodeError(500, "boom"), upload.Permanent},
		{context.Canceled, upload.Permanent},
		{errors.New("File size exceeds 10MB limit"), upload.Permanent},
		{&upload.Error{Class: upload.Transient, Err: errors.New("x")}, upload.Transient},
	}
	for _, tt := range tests {
		if got := upload.Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
