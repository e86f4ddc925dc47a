package thinking

import (
	"encoding/json"
	"strings"
)

// Record is a normalized trace record. Exactly one field is set; a record
// with none set has a shape the classifier does not recognize.
type Record struct {
	LLMStart       *LLMStart
	ToolInvocation *ToolInvocation
	ToolResult     *ToolResult
	AgentAction    *AgentAction
	SearchResults  *SearchResults
	// Raw is the record as received.
	Raw map[string]any
}

// LLMStart marks the start of a model call and carries its prompts. Prompts
// are either message objects or legacy flattened strings.
type LLMStart struct {
	Prompts []any
}

// ToolInvocation is a tool call issued by the agent.
type ToolInvocation struct {
	Tool     string
	Input    any
	HasInput bool
	// Log is the free-text agent log used when no tool/input pair exists.
	Log string
	// DocID is set by DocumentContent invocations.
	DocID string
}

// ToolResult is the observation returned by a tool.
type ToolResult struct {
	Observation any
}

// AgentAction is a planned action of the agent.
type AgentAction struct {
	Tool     string
	Input    any
	HasInput bool
}

// SearchResults lists the web results of a search.
type SearchResults struct {
	Results []SearchResult
}

type SearchResult struct {
	Title string
	URL   string
}

type shape struct {
	types []string
	parse func(raw map[string]any) Record
}

// shapes maps record "type" values to their normalized form. Legacy shapes
// are added as new rows.
var shapes = []shape{
	{
		types: []string{"llm_start"},
		parse: func(raw map[string]any) Record {
			prompts, _ := raw["prompts"].([]any)
			return Record{LLMStart: &LLMStart{Prompts: prompts}}
		},
	},
	{
		types: []string{"tool", "tool_start", "tool_invocation"},
		parse: func(raw map[string]any) Record {
			inv := &ToolInvocation{}
			inv.Tool, _ = raw["tool"].(string)
			if input, ok := present(raw, "tool_input"); ok {
				inv.Input, inv.HasInput = input, true
			} else if input, ok := present(raw, "input"); ok {
				inv.Input, inv.HasInput = input, true
			}
			if inv.Tool == "" || !inv.HasInput {
				if action, ok := raw["action"].(map[string]any); ok {
					tool, _ := action["tool"].(string)
					if input, ok := present(action, "tool_input"); ok && tool != "" {
						inv.Tool, inv.Input, inv.HasInput = tool, input, true
					}
				}
			}
			inv.Log, _ = raw["log"].(string)
			inv.DocID, _ = raw["docId"].(string)
			if inv.DocID == "" {
				inv.DocID, _ = raw["doc_id"].(string)
			}
			return Record{ToolInvocation: inv}
		},
	},
	{
		types: []string{"tool_result"},
		parse: func(raw map[string]any) Record {
			return Record{ToolResult: &ToolResult{Observation: raw["observation"]}}
		},
	},
	{
		types: []string{"agent_action"},
		parse: func(raw map[string]any) Record {
			action := &AgentAction{}
			if a, ok := raw["action"].(map[string]any); ok {
				action.Tool, _ = a["tool"].(string)
				if input, ok := present(a, "tool_input"); ok {
					action.Input, action.HasInput = input, true
				} else if input, ok := present(a, "input"); ok {
					action.Input, action.HasInput = input, true
				}
			}
			return Record{AgentAction: action}
		},
	},
	{
		types: []string{"search_results"},
		parse: func(raw map[string]any) Record {
			items, _ := raw["results"].([]any)
			results := make([]SearchResult, 0, len(items))
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				title, _ := m["title"].(string)
				url, _ := m["url"].(string)
				results = append(results, SearchResult{Title: title, URL: url})
			}
			return Record{SearchResults: &SearchResults{Results: results}}
		},
	},
}

var shapeByType = func() map[string]shape {
	m := make(map[string]shape)
	for _, s := range shapes {
		for _, t := range s.types {
			m[t] = s
		}
	}
	return m
}()

// Normalize maps a raw trace record to its tagged form.
func Normalize(raw map[string]any) Record {
	typ, _ := raw["type"].(string)
	s, ok := shapeByType[typ]
	if !ok {
		return Record{Raw: raw}
	}
	record := s.parse(raw)
	record.Raw = raw
	return record
}

// IsKnown reports whether the record matched a known shape.
func (r Record) IsKnown() bool {
	return r.LLMStart != nil || r.ToolInvocation != nil || r.ToolResult != nil ||
		r.AgentAction != nil || r.SearchResults != nil
}

// Type returns the "type" field of the raw record.
func (r Record) Type() string {
	typ, _ := r.Raw["type"].(string)
	return typ
}

// present returns m[key] when the key exists with a non-null, non-empty
// value.
func present(m map[string]any, key string) (any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	if s, isString := v.(string); isString && s == "" {
		return nil, false
	}
	return v, true
}

// stringify renders a JSON value inline. Strings are returned unquoted.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// stringifyIndent renders a JSON value with two-space indentation. Strings
// are returned unquoted.
func stringifyIndent(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
