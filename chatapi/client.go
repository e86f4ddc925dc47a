// Package chatapi is an HTTP client for the answer-serving backend.
package chatapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	chatstream "github.com/mayurmacwan/chatstream-go"
	"github.com/mayurmacwan/chatstream-go/internal/clientutils"
	"github.com/mayurmacwan/chatstream-go/internal/tracing"
	"github.com/mayurmacwan/chatstream-go/thinking"
	"github.com/mayurmacwan/chatstream-go/upload"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Headers    map[string]string
	Logger     *zap.Logger
	// SnapshotInterval is passed to RunTurn for streamed answers.
	SnapshotInterval time.Duration
	// Documents is refreshed by ListDocuments and Bootstrap.
	Documents *thinking.DocumentIndex
	// Uploader runs uploads. Defaults to upload.NewController().
	Uploader *upload.Controller
}

type Client struct {
	baseURL          string
	client           *http.Client
	headers          map[string]string
	logger           *zap.Logger
	snapshotInterval time.Duration
	documents        *thinking.DocumentIndex
	uploader         *upload.Controller
}

func NewClient(options ClientOptions) *Client {
	c := &Client{
		baseURL:          strings.TrimSuffix(options.BaseURL, "/"),
		client:           options.HTTPClient,
		headers:          options.Headers,
		logger:           options.Logger,
		snapshotInterval: options.SnapshotInterval,
		documents:        options.Documents,
		uploader:         options.Uploader,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.documents == nil {
		c.documents = thinking.NewDocumentIndex()
	}
	if c.uploader == nil {
		c.uploader = upload.NewController(upload.WithLogger(c.logger))
	}
	return c
}

// Documents returns the document index kept by the client.
func (c *Client) Documents() *thinking.DocumentIndex {
	return c.documents
}

// NewConversation starts a conversation whose classifier resolves document
// citations against the client's document index.
func (c *Client) NewConversation() *chatstream.Conversation {
	classifier := thinking.NewClassifier(
		thinking.WithDocuments(c.documents),
		thinking.WithLogger(c.logger),
	)
	return chatstream.NewConversation(
		chatstream.WithClassifier(classifier),
		chatstream.WithConversationLogger(c.logger),
	)
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// ChatStream posts req to /chat/stream and assembles the streamed answer.
// Snapshots go to onSnapshot as the answer grows.
func (c *Client) ChatStream(ctx context.Context, req chatstream.ChatRequest, onSnapshot func(chatstream.Answer)) (*chatstream.Answer, error) {
	url := c.url("/chat/stream")
	resp, err := tracing.TraceStream(ctx, "chat_stream", url, func(ctx context.Context) (*http.Response, error) {
		return clientutils.DoStream(ctx, c.client, clientutils.StreamRequestConfig{
			URL:     url,
			Headers: c.headers,
			Body:    req,
		})
	})
	if err != nil {
		c.logger.Warn("chat stream request failed", zap.Error(err))
		return nil, err
	}

	return chatstream.RunTurn(ctx, resp.Body, chatstream.TurnOptions{
		SnapshotInterval: c.snapshotInterval,
		OnSnapshot:       onSnapshot,
		Logger:           c.logger,
	})
}

// Chat posts req to /chat and returns the whole answer with its trace
// records.
func (c *Client) Chat(ctx context.Context, req chatstream.ChatRequest) (*chatstream.Response, error) {
	url := c.url("/chat")
	return tracing.TraceRequest(ctx, "chat", http.MethodPost, url, func(ctx context.Context) (*chatstream.Response, error) {
		resp, err := clientutils.DoStream(ctx, c.client, clientutils.StreamRequestConfig{
			URL:     url,
			Headers: c.headers,
			Body:    req,
			Accept:  "application/json",
		})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return chatstream.ParseResponse(ctx, resp.Body)
	})
}

// AskOptions configures Ask.
type AskOptions struct {
	Overrides chatstream.Overrides
	// Stream selects /chat/stream over /chat.
	Stream     bool
	OnSnapshot func(chatstream.Answer)
}

// Ask runs one turn of conv: it supersedes the turn in flight, sends the
// question with the conversation history, records the answer and feeds any
// trace records to the conversation's classifier.
func (c *Client) Ask(ctx context.Context, conv *chatstream.Conversation, question string, opts AskOptions) (*chatstream.Answer, error) {
	ctx, done := conv.BeginTurn(ctx)
	defer done()

	req := conv.NewRequest(question, opts.Overrides)

	if opts.Stream {
		answer, err := c.ChatStream(ctx, req, opts.OnSnapshot)
		if err != nil {
			return nil, err
		}
		conv.Record(question, answer)
		return answer, nil
	}

	resp, err := c.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.ThinkingLogs) > 0 {
		cards := conv.Classifier().Update(resp.ThinkingLogs)
		c.logger.Debug("classified trace records",
			zap.Int("records", len(resp.ThinkingLogs)),
			zap.Int("cards", len(cards)),
		)
	}
	if opts.OnSnapshot != nil {
		opts.OnSnapshot(resp.Answer.Clone())
	}
	conv.Record(question, &resp.Answer)
	return &resp.Answer, nil
}

// Upload sends one file to /upload_no_auth through the client's upload
// controller, retrying transport failures. The file is read once and kept in
// memory so retries can resend it. A successful upload is added to the
// document index.
func (c *Client) Upload(ctx context.Context, filename string, file io.Reader) (*upload.Response, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, chatstream.NewInvalidInputError("failed to read file: " + err.Error())
	}

	url := c.url("/upload_no_auth")
	resp, err := c.uploader.Upload(ctx, filename, int64(len(data)), func(ctx context.Context) (*upload.Response, error) {
		return tracing.TraceRequest(ctx, "upload", http.MethodPost, url, func(ctx context.Context) (*upload.Response, error) {
			return clientutils.DoMultipart[upload.Response](ctx, c.client, clientutils.MultipartRequestConfig{
				URL:       url,
				Headers:   c.headers,
				FieldName: "file",
				FileName:  filename,
				File:      bytes.NewReader(data),
			})
		})
	})
	if err != nil {
		return nil, err
	}
	// Citations to the new file resolve before the next ListDocuments.
	if resp.FileID != "" {
		if _, ok := c.documents.Get(resp.FileID); !ok {
			c.documents.Add(thinking.Document{DocID: resp.FileID, Filename: filename})
		}
	}
	return resp, nil
}

type listDocumentsResponse struct {
	Documents []thinking.Document `json:"documents"`
}

// ListDocuments fetches the uploaded documents and refreshes the client's
// document index with them.
func (c *Client) ListDocuments(ctx context.Context) ([]thinking.Document, error) {
	url := c.url("/list_documents")
	resp, err := tracing.TraceRequest(ctx, "list_documents", http.MethodGet, url, func(ctx context.Context) (*listDocumentsResponse, error) {
		return clientutils.DoJSON[listDocumentsResponse](ctx, c.client, clientutils.JSONRequestConfig{
			Method:  http.MethodGet,
			URL:     url,
			Headers: c.headers,
		})
	})
	if err != nil {
		return nil, err
	}
	c.documents.Replace(resp.Documents)
	return resp.Documents, nil
}

// Config holds the backend feature flags.
type Config struct {
	StreamingEnabled bool `json:"streamingEnabled"`
	// Raw keeps every flag, including those without a field.
	Raw map[string]any `json:"-"`
}

// Config fetches the backend feature flags.
func (c *Client) Config(ctx context.Context) (*Config, error) {
	url := c.url("/config")
	raw, err := tracing.TraceRequest(ctx, "config", http.MethodGet, url, func(ctx context.Context) (*map[string]any, error) {
		return clientutils.DoJSON[map[string]any](ctx, c.client, clientutils.JSONRequestConfig{
			Method:  http.MethodGet,
			URL:     url,
			Headers: c.headers,
		})
	})
	if err != nil {
		return nil, err
	}
	config := &Config{Raw: *raw}
	config.StreamingEnabled, _ = config.Raw["streamingEnabled"].(bool)
	return config, nil
}

// Bootstrap fetches the feature flags and the document list concurrently. A
// backend without /config falls back to non-streaming.
func (c *Client) Bootstrap(ctx context.Context) (*Config, []thinking.Document, error) {
	var (
		config    *Config
		documents []thinking.Document
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg, err := c.Config(ctx)
		if clientutils.IsStatus(err, http.StatusNotFound) {
			c.logger.Info("backend has no /config, streaming disabled")
			config = &Config{Raw: map[string]any{}}
			return nil
		}
		config = cfg
		return err
	})
	g.Go(func() error {
		docs, err := c.ListDocuments(ctx)
		documents = docs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	c.logger.Debug("bootstrap finished",
		zap.Bool("streaming", config.StreamingEnabled),
		zap.Int("documents", len(documents)),
	)
	return config, documents, nil
}
