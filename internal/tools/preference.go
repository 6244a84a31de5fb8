package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
)

// PreferenceStore persists durable facts learned about a client so later
// conversations can honor them.
type PreferenceStore interface {
	SavePreference(ctx context.Context, userID, category, preference string) error
}

// SavePreferenceTool records a client preference or constraint surfaced
// during conversation, such as a naming convention or an approval policy.
type SavePreferenceTool struct {
	store  PreferenceStore
	userID string
}

// NewSavePreferenceTool creates the preference capture tool bound to one user.
func NewSavePreferenceTool(store PreferenceStore, userID string) *SavePreferenceTool {
	return &SavePreferenceTool{store: store, userID: userID}
}

func (t *SavePreferenceTool) Name() string {
	return "save_learned_preference"
}

func (t *SavePreferenceTool) Description() string {
	return "Record a durable preference, convention, or constraint the user has stated, so future sessions can apply it without being told again. Use only for facts the user explicitly confirmed."
}

func (t *SavePreferenceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"category": {
				"type": "string",
				"description": "A short grouping key, e.g. 'naming', 'approvals', 'environments'"
			},
			"preference": {
				"type": "string",
				"description": "The preference stated as a single declarative sentence"
			}
		},
		"required": ["category", "preference"]
	}`)
}

func (t *SavePreferenceTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Category   string `json:"category"`
		Preference string `json:"preference"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if strings.TrimSpace(input.Preference) == "" {
		return &agent.ToolResult{Content: "preference text is required", IsError: true}, nil
	}
	if strings.TrimSpace(input.Category) == "" {
		input.Category = "general"
	}

	if err := t.store.SavePreference(ctx, t.userID, input.Category, input.Preference); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("Failed to save preference: %v", err),
			IsError: true,
		}, nil
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Saved %s preference: %s", input.Category, input.Preference),
	}, nil
}
