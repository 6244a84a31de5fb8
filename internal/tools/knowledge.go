// Package tools implements the concrete capabilities bound to the
// specialist agents: documentation search, internal context lookup, live
// instance diagnostics, and preference capture.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
)

// KnowledgeSearcher is the narrow contract to the retrieval index. The
// index itself (ingestion, chunking, ranking) is an external collaborator.
type KnowledgeSearcher interface {
	// Search returns up to k results for the query, restricted to the
	// given source type ("public_docs" or "user_context").
	Search(ctx context.Context, query, sourceType string, k int) ([]SearchResult, error)
}

// SearchResult is one retrieval hit.
type SearchResult struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// PublicDocsTool searches public ServiceNow documentation.
type PublicDocsTool struct {
	searcher KnowledgeSearcher
}

// NewPublicDocsTool creates the public documentation search tool.
func NewPublicDocsTool(searcher KnowledgeSearcher) *PublicDocsTool {
	return &PublicDocsTool{searcher: searcher}
}

func (t *PublicDocsTool) Name() string {
	return "consult_public_docs"
}

func (t *PublicDocsTool) Description() string {
	return "Search official ServiceNow public documentation for features, configuration steps, and best practices. Use this FIRST when researching how something works."
}

func (t *PublicDocsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The documentation search query"
			}
		},
		"required": ["query"]
	}`)
}

func (t *PublicDocsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}

	results, err := t.searcher.Search(ctx, input.Query, "public_docs", 3)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Error searching documentation: %v", err),
			IsError: true,
		}, nil
	}
	if len(results) == 0 {
		return &agent.ToolResult{
			Content: "No relevant documentation found for: " + input.Query,
		}, nil
	}

	var out strings.Builder
	for i, r := range results {
		if i > 0 {
			out.WriteString("\n\n")
		}
		fmt.Fprintf(&out, "From %s:\n%s", r.Source, r.Content)
	}
	return &agent.ToolResult{Content: out.String()}, nil
}

// UserContextTool searches client-uploaded internal documents and policies.
type UserContextTool struct {
	searcher KnowledgeSearcher
}

// NewUserContextTool creates the internal context search tool.
func NewUserContextTool(searcher KnowledgeSearcher) *UserContextTool {
	return &UserContextTool{searcher: searcher}
}

func (t *UserContextTool) Name() string {
	return "consult_user_context"
}

func (t *UserContextTool) Description() string {
	return "Search internal client-uploaded documents and policies. Use this SECOND, after consulting public documentation, to find internal rules, naming conventions, or client-specific policies that may differ from official standards."
}

func (t *UserContextTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The search query to find relevant information in internal documents"
			}
		},
		"required": ["query"]
	}`)
}

func (t *UserContextTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}

	results, err := t.searcher.Search(ctx, input.Query, "user_context", 3)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Error querying internal documents: %v", err),
			IsError: true,
		}, nil
	}
	if len(results) == 0 {
		return &agent.ToolResult{
			Content: "No relevant information found in internal documents for: " + input.Query,
		}, nil
	}

	var out strings.Builder
	for i, r := range results {
		if i > 0 {
			out.WriteString("\n\n")
		}
		fmt.Fprintf(&out, "According to your internal policy (%s):\n%s", r.Source, r.Content)
	}
	return &agent.ToolResult{Content: out.String()}, nil
}
