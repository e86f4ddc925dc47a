package chatstreamtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// Request is a request received by a Backend.
type Request struct {
	Method string
	Path   string
	Body   []byte
	// FileName is the name of the uploaded file for upload requests.
	FileName string
}

// Backend is a fake answer-serving backend on an httptest server.
type Backend struct {
	server *httptest.Server

	mu             sync.Mutex
	streamRecords  []any
	chatResponse   any
	documents      []any
	config         map[string]any
	uploadFailures int
	uploadStatus   int
	uploadResponse any
	requests       []Request
}

// NewBackend starts a Backend. Call Close when done.
func NewBackend() *Backend {
	b := &Backend{
		config:       map[string]any{"streamingEnabled": true},
		uploadStatus: http.StatusOK,
		uploadResponse: map[string]any{
			"status":       "success",
			"message":      "File uploaded successfully",
			"file_id":      "file-1",
			"assistant_id": "asst-1",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/stream", b.handleStream)
	mux.HandleFunc("POST /chat", b.handleChat)
	mux.HandleFunc("POST /upload_no_auth", b.handleUpload)
	mux.HandleFunc("GET /list_documents", b.handleDocuments)
	mux.HandleFunc("GET /config", b.handleConfig)
	b.server = httptest.NewServer(mux)
	return b
}

func (b *Backend) URL() string {
	return b.server.URL
}

func (b *Backend) Client() *http.Client {
	return b.server.Client()
}

func (b *Backend) Close() {
	b.server.Close()
}

// SetStream sets the records written by /chat/stream, one line each and
// flushed one by one. Strings are written verbatim.
func (b *Backend) SetStream(records ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamRecords = records
}

// SetChat sets the JSON body returned by /chat.
func (b *Backend) SetChat(response any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatResponse = response
}

func (b *Backend) SetDocuments(documents ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.documents = documents
}

func (b *Backend) SetConfig(config map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = config
}

// FailUploads makes the next n uploads fail at the transport level: the
// connection is closed without a response.
func (b *Backend) FailUploads(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadFailures = n
}

// SetUploadResponse sets the status and JSON body returned by uploads.
func (b *Backend) SetUploadResponse(status int, body any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadStatus = status
	b.uploadResponse = body
}

// Requests returns every request received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

func (b *Backend) record(r *http.Request, body []byte, fileName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Body:     body,
		FileName: fileName,
	})
}

func (b *Backend) handleStream(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.record(r, body, "")

	b.mu.Lock()
	records := b.streamRecords
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	for _, record := range records {
		if _, err := io.WriteString(w, NDJSON(record)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.record(r, body, "")

	b.mu.Lock()
	response := b.chatResponse
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, response)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	var fileName string
	if _, header, err := r.FormFile("file"); err == nil {
		fileName = header.Filename
	}
	b.record(r, nil, fileName)

	b.mu.Lock()
	fail := b.uploadFailures > 0
	if fail {
		b.uploadFailures--
	}
	status, response := b.uploadStatus, b.uploadResponse
	b.mu.Unlock()

	if fail {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		panic(http.ErrAbortHandler)
	}

	if fileName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "No file part"})
		return
	}
	writeJSON(w, status, response)
}

func (b *Backend) handleDocuments(w http.ResponseWriter, r *http.Request) {
	b.record(r, nil, "")

	b.mu.Lock()
	documents := b.documents
	b.mu.Unlock()
	if documents == nil {
		documents = []any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documents})
}

func (b *Backend) handleConfig(w http.ResponseWriter, r *http.Request) {
	b.record(r, nil, "")

	b.mu.Lock()
	config := b.config
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, config)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
