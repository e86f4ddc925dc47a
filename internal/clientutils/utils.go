package clientutils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	chatstream "github.com/mayurmacwan/chatstream-go"
)

// JSONRequestConfig holds configuration for JSON requests. A nil Body sends
// no request body.
type JSONRequestConfig struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// StreamRequestConfig holds configuration for requests whose body the caller
// reads itself. Accept defaults to NDJSON.
type StreamRequestConfig struct {
	URL     string
	Headers map[string]string
	Body    any
	Accept  string
}

// MultipartRequestConfig holds configuration for single-file form uploads
type MultipartRequestConfig struct {
	URL       string
	Headers   map[string]string
	FieldName string
	FileName  string
	File      io.Reader
}

// DoJSON performs a JSON request and unmarshals the response
func DoJSON[T any](ctx context.Context, client *http.Client, config JSONRequestConfig) (*T, error) {
	method := config.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if config.Body != nil {
		reqBody, err := json.Marshal(config.Body)
		if err != nil {
			return nil, chatstream.NewInvalidInputError(fmt.Sprintf("failed to marshal request: %v", err))
		}
		body = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, config.URL, body)
	if err != nil {
		return nil, chatstream.NewInvalidInputError(fmt.Sprintf("failed to create request: %v", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	setHeaders(req, config.Headers)

	resp, err := do(ctx, client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeJSON[T](ctx, resp)
}

// DoStream performs a POST request and checks its status. The caller owns the
// returned response body.
func DoStream(ctx context.Context, client *http.Client, config StreamRequestConfig) (*http.Response, error) {
	reqBody, err := json.Marshal(config.Body)
	if err != nil {
		return nil, chatstream.NewInvalidInputError(fmt.Sprintf("failed to marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, chatstream.NewInvalidInputError(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	accept := config.Accept
	if accept == "" {
		accept = "application/x-ndjson"
	}
	req.Header.Set("Accept", accept)
	setHeaders(req, config.Headers)

	resp, err := do(ctx, client, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError(resp.StatusCode, respBody)
	}

	return resp, nil
}

// DoMultipart uploads one file as multipart/form-data and unmarshals the
// response
func DoMultipart[T any](ctx context.Context, client *http.Client, config MultipartRequestConfig) (*T, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(config.FieldName, config.FileName)
	if err != nil {
		return nil, chatstream.NewInvalidInputError(fmt.Sprintf("failed to create form file: %v", err))
	}
	if _, err := io.Copy(part, config.File); err != nil {
		return nil, chatstream.NewInvalidInputError(fmt.Sprintf("failed to read file: %v", err))
	}
	if err := writer.Close(); err != nil {
		return nil, chatstream.NewInvalidInputError(fmt.Sprintf("failed to encode form: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, &buf)
	if err != nil {
		return nil, chatstream.NewInvalidInputError(fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	setHeaders(req, config.Headers)

	resp, err := do(ctx, client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeJSON[T](ctx, resp)
}

func setHeaders(req *http.Request, headers map[string]string) {
	for key, value := range headers {
		req.Header.Set(key, value)
	}
}

func do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, chatstream.NewTransportError(err)
	}
	return resp, nil
}

func decodeJSON[T any](ctx context.Context, resp *http.Response) (*T, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, chatstream.NewTransportError(err)
	}

	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode, respBody)
	}

	var result T
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, chatstream.NewDecodeError(0, err)
	}
	return &result, nil
}

// statusError prefers the "message" or "error" field of a JSON error body
// over the raw body text.
func statusError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Error != nil:
			if s, ok := payload.Error.(string); ok {
				msg = s
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return chatstream.NewStatusCodeError(status, msg)
}

// IsStatus reports whether err is a status code error with the given status.
func IsStatus(err error, status int) bool {
	var chatErr *chatstream.ChatError
	return errors.As(err, &chatErr) && chatErr.Kind == chatstream.StatusCode && chatErr.Status == status
}
