package agent

import (
	"context"
	"encoding/json"

	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// LLMProvider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of communicating with an LLM API
// while presenting a unified request/response interface to the agent nodes
// and the router.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Multiple goroutines may
// call Complete() simultaneously for different turns.
type LLMProvider interface {
	// Complete sends a conversation plus bound tools and returns the
	// model's reply: narrative text and zero or more tool calls.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)

	// Classify runs a structured classification call against a fixed
	// decision schema and unmarshals the result into out. Used by the
	// router; no tool execution happens at this stage.
	Classify(ctx context.Context, system, prompt string, schema json.RawMessage, out any) error

	// Name returns the provider name.
	Name() string
}

// CompletionRequest contains all parameters for an LLM completion request.
type CompletionRequest struct {
	// Model specifies which LLM model to use. If empty, the provider's
	// default model is used.
	Model string `json:"model"`

	// System is the system prompt that sets the assistant's behavior.
	// This is handled separately from messages in most LLM APIs.
	System string `json:"system,omitempty"`

	// Messages contains the conversation history in chronological order.
	// Must include at least one message.
	Messages []CompletionMessage `json:"messages"`

	// Tools defines available tools the LLM can request to execute.
	// If empty, no tool calling is available.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens limits the maximum length of the generated response.
	// If 0 or negative, the provider's default is used.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls sampling randomness. Nil means provider default.
	Temperature *float64 `json:"temperature,omitempty"`
}

// CompletionMessage represents a single message in a conversation.
//
// Role values: "user", "assistant", "system", "tool".
type CompletionMessage struct {
	// Role indicates who sent the message.
	Role string `json:"role"`

	// Content is the text content of the message (may be empty for
	// tool-only messages).
	Content string `json:"content,omitempty"`

	// ToolCalls contains any tool execution requests from the assistant.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains responses from executed tools.
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// Completion is the model's full reply to a CompletionRequest.
type Completion struct {
	// Text is the narrative portion of the reply. May be empty when the
	// model responds with tool calls only.
	Text string `json:"text"`

	// ToolCalls are the tool invocations the model requested, in order.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// Model is the model that produced the reply.
	Model string `json:"model,omitempty"`

	// StopReason is the provider's reported stop reason.
	StopReason string `json:"stop_reason,omitempty"`
}

// Tool defines the interface for tools that agents can invoke.
type Tool interface {
	// Name returns the tool name for LLM function calling.
	// Must be a valid function name (alphanumeric, underscores).
	Name() string

	// Description returns a natural language description of what the tool
	// does. This helps the LLM decide when to use the tool.
	Description() string

	// Schema returns the JSON Schema defining the tool's parameters.
	// The LLM uses this to construct valid tool call arguments.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON parameters.
	// The params match the schema returned by Schema().
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult contains the output from a tool execution.
//
// Results are sent back to the LLM which uses them to formulate its next
// reasoning step. Errors are also communicated via ToolResult with
// IsError=true so the invoking agent can react instead of aborting the turn.
type ToolResult struct {
	// Content is the tool's output (text, JSON, etc.)
	Content string `json:"content"`

	// IsError indicates this result represents an error condition.
	IsError bool `json:"is_error,omitempty"`
}
