package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnknownTool is returned when a tool name is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (1MB).
	MaxToolParamsSize = 1 << 20
)

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Tools are registered by name and retrieved for execution during
// agent turns. Tool arguments are validated against the tool's declared
// JSON Schema before dispatch.
type ToolRegistry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
}

// NewToolRegistry creates a new empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry by its name.
// If a tool with the same name already exists, it is replaced.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	delete(r.compiled, tool.Name())
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.compiled, name)
}

// Get returns a tool by name and a boolean indicating if it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Execute runs a tool by name with the given JSON parameters.
//
// Malformed or schema-violating parameters and execution failures are
// reported as error results rather than errors, so the invoking agent can
// react in its next reasoning step. ErrUnknownTool is the only hard
// failure surface for callers that need to distinguish it.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &ToolResult{
			Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength),
			IsError: true,
		}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &ToolResult{
			Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &ToolResult{
			Content: "tool not found: " + name,
			IsError: true,
		}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if err := r.validateParams(tool, params); err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("invalid arguments for %s: %v", name, err),
			IsError: true,
		}, nil
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("tool %s failed: %v", name, err),
			IsError: true,
		}, nil
	}
	return result, nil
}

// AsLLMTools returns all registered tools as a slice for passing to LLM
// providers.
func (r *ToolRegistry) AsLLMTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// validateParams checks params against the tool's declared JSON Schema.
// Compiled schemas are cached per tool name.
func (r *ToolRegistry) validateParams(tool Tool, params json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.compiled[tool.Name()]
	r.mu.RUnlock()

	if !ok {
		var err error
		schema, err = jsonschema.CompileString(tool.Name()+".json", string(tool.Schema()))
		if err != nil {
			// A tool with a broken schema is a programming error in the
			// tool; skip validation rather than blocking dispatch.
			return nil
		}
		r.mu.Lock()
		r.compiled[tool.Name()] = schema
		r.mu.Unlock()
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var value any
	if err := json.Unmarshal(params, &value); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	return schema.Validate(value)
}
