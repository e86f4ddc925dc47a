// Package thinking turns the agent trace records attached to backend
// responses into display cards and citations.
package thinking

import (
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CardKind string

const (
	KindSystemPrompt   CardKind = "system_prompt"
	KindToolInvocation CardKind = "tool_invocation"
	KindToolResult     CardKind = "tool_result"
	KindSearch         CardKind = "search"
	KindDocument       CardKind = "document"
)

// Card is one step of the agent's reasoning, ready for display.
type Card struct {
	ID      string   `json:"id"`
	Kind    CardKind `json:"type"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
}

type CitationKind string

const (
	CitationWeb      CitationKind = "web"
	CitationDocument CitationKind = "document"
)

// Citation is a source the answer relied on.
type Citation struct {
	Kind  CitationKind `json:"type"`
	Title string       `json:"title"`
	URL   string       `json:"url,omitempty"`
	DocID string       `json:"docId,omitempty"`
}

const documentContentTool = "DocumentContent"

// Classifier accumulates cards and citations over a conversation.
//
// Trace records of a turn arrive as a growing list. Update only looks at the
// records past its cursor, so handing it the same list again after new
// records were appended never produces duplicate cards. BeginTurn rewinds the
// cursor for the record list of a new turn.
type Classifier struct {
	mu sync.Mutex

	docs   *DocumentIndex
	logger *zap.Logger
	newID  func() string

	systemPrompt *Card
	cards        []Card
	citations    []Citation
	cursor       int
}

type Option func(*Classifier)

// WithDocuments resolves document citations against docs.
func WithDocuments(docs *DocumentIndex) Option {
	return func(c *Classifier) { c.docs = docs }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		logger: zap.NewNop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update classifies the records past the cursor and returns the cards they
// produced. A list no longer than the cursor is a no-op.
//
// The system prompt is searched for in the whole list until one is found.
func (c *Classifier) Update(records []map[string]any) []Card {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.systemPrompt == nil {
		c.captureSystemPrompt(records)
	}

	if len(records) <= c.cursor {
		return nil
	}

	var batch []Card
	for _, raw := range records[c.cursor:] {
		record := Normalize(raw)
		if !record.IsKnown() {
			c.logger.Debug("skipping trace record", zap.String("type", record.Type()))
			continue
		}
		batch = c.classify(record, batch)
		c.cite(record)
	}
	c.cursor = len(records)

	c.cards = append(c.cards, batch...)
	return slices.Clone(batch)
}

// Cards returns the system prompt card, if any, followed by every other card
// in the order produced.
func (c *Classifier) Cards() []Card {
	c.mu.Lock()
	defer c.mu.Unlock()

	cards := make([]Card, 0, len(c.cards)+1)
	if c.systemPrompt != nil {
		cards = append(cards, *c.systemPrompt)
	}
	return append(cards, c.cards...)
}

// SystemPrompt returns the captured system prompt card.
func (c *Classifier) SystemPrompt() (Card, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.systemPrompt == nil {
		return Card{}, false
	}
	return *c.systemPrompt, true
}

func (c *Classifier) Citations() []Citation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.citations)
}

// Cursor returns the number of records already processed.
func (c *Classifier) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// BeginTurn rewinds the cursor for a new record list. Cards and citations are
// kept.
func (c *Classifier) BeginTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = 0
}

// Reset clears everything, including the system prompt.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemPrompt = nil
	c.cards = nil
	c.citations = nil
	c.cursor = 0
}

func (c *Classifier) card(kind CardKind, title, content string) Card {
	return Card{
		ID:      string(kind) + "-" + c.newID(),
		Kind:    kind,
		Title:   title,
		Content: content,
	}
}

func (c *Classifier) captureSystemPrompt(records []map[string]any) {
	for _, raw := range records {
		record := Normalize(raw)
		if record.LLMStart == nil {
			continue
		}
		if content, ok := extractSystemPrompt(record.LLMStart.Prompts); ok {
			card := c.card(KindSystemPrompt, "System Prompt", content)
			c.systemPrompt = &card
			return
		}
	}
}

// extractSystemPrompt prefers a system message object. Otherwise a legacy
// flattened first prompt mentioning "system" is trimmed down to its system
// section.
func extractSystemPrompt(prompts []any) (string, bool) {
	for _, p := range prompts {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		content, ok := present(m, "content")
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		typ, _ := m["type"].(string)
		if role == "system" || strings.HasSuffix(typ, "SystemMessage") {
			return stringifyIndent(content), true
		}
	}

	if len(prompts) == 0 {
		return "", false
	}
	first, ok := prompts[0].(string)
	if !ok || !containsFold(first, "system") {
		return "", false
	}
	return legacySystemPrompt(first), true
}

func legacySystemPrompt(prompt string) string {
	head := prompt
	for _, marker := range []string{"Human:", "AI:"} {
		if i := strings.Index(head, marker); i >= 0 {
			head = head[:i]
		}
	}
	parts := strings.Split(head, "System:")
	if len(parts) > 1 {
		if s := strings.TrimSpace(parts[1]); s != "" {
			return s
		}
	}
	return strings.TrimSpace(prompt)
}

// classify appends the cards produced by record to batch.
func (c *Classifier) classify(record Record, batch []Card) []Card {
	switch {
	case record.ToolInvocation != nil:
		inv := record.ToolInvocation
		batch = append(batch, c.card(KindToolInvocation, "Tool Invocation", invocationContent(record)))

		if record.Type() == "tool_invocation" && inv.Tool == documentContentTool {
			query := "Query"
			detail := "Unknown"
			if inv.HasInput {
				query = stringify(inv.Input)
				detail = query
			}
			batch = c.appendDocument(batch,
				"Document Tool - "+query,
				"Retrieving document content with query: "+detail)
		}

	case record.ToolResult != nil:
		obs := record.ToolResult.Observation
		batch = append(batch, c.card(KindToolResult, "Tool Result", "Result: "+stringify(obs)))

		if s, ok := obs.(string); ok && (strings.Contains(s, "Document content:") || strings.Contains(s, "Page")) {
			batch = c.appendDocument(batch, "Document Content", s)
		}

	case record.AgentAction != nil:
		action := record.AgentAction
		input, hasInput := action.Input, action.HasInput
		tool := strings.ToLower(action.Tool)
		switch {
		case strings.Contains(tool, "search") || strings.Contains(tool, "bing"):
			if hasInput {
				batch = append(batch, c.card(KindSearch, "Search Tool - Query", stringifyIndent(input)))
			}
		case strings.Contains(tool, "document"):
			if hasInput {
				batch = append(batch, c.card(KindDocument, "Document Tool - Retrieved Content", stringifyIndent(input)))
			}
		}
	}
	return batch
}

// appendDocument adds a document card unless the batch already holds one
// with the same content.
func (c *Classifier) appendDocument(batch []Card, title, content string) []Card {
	if content == "" {
		return batch
	}
	duplicate := slices.ContainsFunc(batch, func(card Card) bool {
		return card.Kind == KindDocument && card.Content == content
	})
	if duplicate {
		return batch
	}
	return append(batch, c.card(KindDocument, title, content))
}

func invocationContent(record Record) string {
	inv := record.ToolInvocation
	switch {
	case inv.Tool != "" && inv.HasInput:
		return "Invoking: " + inv.Tool + " with " + stringify(inv.Input)
	case inv.Tool != "" && record.Type() == "tool_invocation":
		return "Invoking: " + inv.Tool
	case inv.Log != "":
		return inv.Log
	default:
		return stringifyIndent(record.Raw)
	}
}

func (c *Classifier) cite(record Record) {
	switch {
	case record.SearchResults != nil:
		for _, result := range record.SearchResults.Results {
			c.citations = append(c.citations, Citation{
				Kind:  CitationWeb,
				Title: result.Title,
				URL:   result.URL,
			})
		}

	case record.ToolInvocation != nil && record.Type() == "tool_invocation" && record.ToolInvocation.Tool == documentContentTool:
		docID := record.ToolInvocation.DocID
		if docID == "" || c.docs == nil {
			return
		}
		doc, ok := c.docs.Get(docID)
		if !ok {
			c.logger.Debug("unresolved document citation", zap.String("doc_id", docID))
			return
		}
		exists := slices.ContainsFunc(c.citations, func(cit Citation) bool {
			return cit.Kind == CitationDocument && cit.Title == doc.Filename
		})
		if !exists {
			c.citations = append(c.citations, Citation{
				Kind:  CitationDocument,
				Title: doc.Filename,
				DocID: docID,
			})
		}
	}
}
