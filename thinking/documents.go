package thinking

import (
	"slices"
	"sync"
	"time"
)

// Document describes an uploaded document known to the backend.
type Document struct {
	DocID      string `json:"doc_id"`
	Filename   string `json:"filename"`
	NumChunks  int    `json:"num_chunks"`
	UploadedAt string `json:"uploaded_at"`
}

// DocumentIndex is an in-memory list of documents, used to resolve the
// document ids found in trace records. It is safe for concurrent use.
type DocumentIndex struct {
	mu   sync.RWMutex
	docs []Document
	now  func() time.Time
}

func NewDocumentIndex() *DocumentIndex {
	return &DocumentIndex{now: time.Now}
}

// Add appends doc. UploadedAt defaults to the current time.
func (x *DocumentIndex) Add(doc Document) {
	if doc.UploadedAt == "" {
		doc.UploadedAt = x.now().Format(time.RFC3339)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs = append(x.docs, doc)
}

// Get returns the first document with the given id.
func (x *DocumentIndex) Get(docID string) (Document, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	i := slices.IndexFunc(x.docs, func(d Document) bool { return d.DocID == docID })
	if i < 0 {
		return Document{}, false
	}
	return x.docs[i], true
}

// All returns a copy of every document in insertion order.
func (x *DocumentIndex) All() []Document {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.docs)
}

// Remove deletes the first document with the given id and reports whether
// one was found.
func (x *DocumentIndex) Remove(docID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	i := slices.IndexFunc(x.docs, func(d Document) bool { return d.DocID == docID })
	if i < 0 {
		return false
	}
	x.docs = slices.Delete(x.docs, i, i+1)
	return true
}

// Replace swaps the whole list, as after a fresh listing from the backend.
func (x *DocumentIndex) Replace(docs []Document) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.docs = slices.Clone(docs)
}

// Len returns the number of documents.
func (x *DocumentIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}
