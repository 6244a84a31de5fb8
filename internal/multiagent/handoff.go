package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// HandoffToolName is the tool agents call to request a handoff. The
// dispatcher intercepts it before the tool executor ever sees it, turning
// the call into a first-class HandoffIntent.
const HandoffToolName = "request_handoff"

// compactionTail is how many trailing messages survive context compaction.
const compactionTail = 5

// CycleGuard detects oscillating or repeated handoff paths and halts them.
type CycleGuard struct {
	config GuardConfig
}

// NewCycleGuard creates a guard with the given thresholds. Zero values
// fall back to the defaults.
func NewCycleGuard(config GuardConfig) *CycleGuard {
	def := DefaultGuardConfig()
	if config.Lookback <= 0 {
		config.Lookback = def.Lookback
	}
	if config.MaxRepeats <= 0 {
		config.MaxRepeats = def.MaxRepeats
	}
	return &CycleGuard{config: config}
}

// Check reports whether a source-to-target handoff may proceed given the
// recorded history. The returned reason is non-empty on rejection.
func (g *CycleGuard) Check(history []models.HandoffRecord, source, target string) (bool, string) {
	// Oscillation: the new request would extend a ping-pong between the
	// two agents. Both orientations of the last two hops count: the pair
	// already went there-and-back, or back-and-there.
	if n := len(history); n >= 2 {
		prev, last := history[n-2], history[n-1]
		forward := prev.FromAgent == source && prev.ToAgent == target &&
			last.FromAgent == target && last.ToAgent == source
		reverse := prev.FromAgent == target && prev.ToAgent == source &&
			last.FromAgent == source && last.ToAgent == target
		if forward || reverse {
			return false, fmt.Sprintf("agents %s and %s are bouncing the conversation back and forth", source, target)
		}
	}

	// Repetition: the same directed pair occurring too often recently.
	recent := history
	if len(recent) > g.config.Lookback {
		recent = recent[len(recent)-g.config.Lookback:]
	}
	count := 0
	for _, h := range recent {
		if h.FromAgent == source && h.ToAgent == target {
			count++
		}
	}
	if count+1 >= g.config.MaxRepeats {
		return false, fmt.Sprintf("handoff %s to %s has already happened %d times recently", source, target, count)
	}
	return true, ""
}

// synthesizeSummary builds the textual context summary carried across a
// handoff: the stated reason followed by the departing agent's accumulated
// notes in a fixed order.
func synthesizeSummary(reason string, actx *AgentContext) string {
	var b strings.Builder
	if reason != "" {
		b.WriteString("Handoff reason: " + reason)
	}
	if actx == nil {
		return b.String()
	}
	writeSection(&b, "Findings so far", actx.Findings)
	writeSection(&b, "Recommendations", actx.Recommendations)
	writeSection(&b, "Constraints", actx.Constraints)
	writeSection(&b, "Open questions", actx.OpenQuestions)
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(title + ":")
	for _, item := range items {
		b.WriteString("\n- " + item)
	}
}

// compactHistory trims the conversation passed to a handoff target: the
// original first user message, the most recent messages excluding tool
// round trips, and a system note holding the synthesized summary. Tool
// calls and tool results never survive compaction; an unpaired half of a
// round trip is rejected by the provider API.
func compactHistory(msgs []*models.Message, summary string) []*models.Message {
	var first *models.Message
	for _, m := range msgs {
		if m.Role == models.RoleUser {
			first = m
			break
		}
	}

	var tail []*models.Message
	for i := len(msgs) - 1; i >= 0 && len(tail) < compactionTail; i-- {
		m := msgs[i]
		if m == first || m.Role == models.RoleTool {
			continue
		}
		if m.Role == models.RoleAssistant && len(m.ToolCalls) > 0 {
			if m.Content == "" {
				continue
			}
			trimmed := *m
			trimmed.ToolCalls = nil
			m = &trimmed
		}
		tail = append(tail, m)
	}
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}

	out := make([]*models.Message, 0, len(tail)+2)
	if first != nil {
		out = append(out, first)
	}
	out = append(out, tail...)
	if summary != "" {
		out = append(out, &models.Message{
			Role:    models.RoleSystem,
			Content: "Context from the previous specialist:\n" + summary,
		})
	}
	return out
}

// HandoffTool advertises the handoff capability to the model. Its Execute
// is never reached in normal operation because the node intercepts the
// call; the fallback result exists for safety.
type HandoffTool struct {
	agents []*AgentDefinition
}

// NewHandoffTool creates the handoff request tool over the known agents.
func NewHandoffTool(agents []*AgentDefinition) *HandoffTool {
	return &HandoffTool{agents: agents}
}

func (h *HandoffTool) Name() string {
	return HandoffToolName
}

func (h *HandoffTool) Description() string {
	var list strings.Builder
	for _, a := range h.agents {
		if a.CanReceiveHandoffs {
			fmt.Fprintf(&list, "\n- %s: %s", a.ID, a.Description)
		}
	}
	return fmt.Sprintf(`Transfer the conversation to another specialist when the request is outside your expertise.

Available specialists:%s

Provide a clear reason and a short summary of what you have established so far.`, list.String())
}

func (h *HandoffTool) Schema() json.RawMessage {
	ids := make([]string, 0, len(h.agents))
	for _, a := range h.agents {
		if a.CanReceiveHandoffs {
			ids = append(ids, a.ID)
		}
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target_agent": map[string]any{
				"type":        "string",
				"enum":        ids,
				"description": "The specialist to transfer to",
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "Why this specialist is better suited",
			},
			"context_summary": map[string]any{
				"type":        "string",
				"description": "Short summary of progress so far for the receiving specialist",
			},
		},
		"required": []string{"target_agent", "reason"},
	}
	raw, _ := json.Marshal(schema)
	return raw
}

func (h *HandoffTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: "Handoff request received."}, nil
}
