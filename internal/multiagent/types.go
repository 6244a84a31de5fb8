// Package multiagent implements the request-routing state machine that
// drives a conversation turn: a router that classifies the user's request
// into a specialist persona, agent nodes that reason with tools bound, a
// handoff protocol with a cycle guard, a permission gate on live-instance
// access, and the dispatcher loop that ties them together.
//
// Control flow per turn:
//
//	┌────────┐     ┌────────────┐     ┌───────────────┐
//	│ Router │ ──► │ Specialist │ ◄─► │ Tool Executor │
//	└────────┘     └─────┬──────┘     └───────────────┘
//	                     │ handoff (guarded)
//	                     ▼
//	               ┌────────────┐
//	               │ Specialist │ ──► terminal
//	               └────────────┘
//
// The semantic cache sits in front of the whole loop and can short-circuit
// dispatch entirely for cacheable queries.
package multiagent

import (
	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// Specialist agent identifiers.
const (
	AgentConsultant     = "consultant"
	AgentArchitect      = "solution_architect"
	AgentImplementation = "implementation"
)

// AgentDefinition describes one specialist persona.
type AgentDefinition struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable name for this agent.
	Name string `json:"name" yaml:"name"`

	// Description explains what this agent specializes in. Used by the
	// router and by other agents deciding on handoffs.
	Description string `json:"description" yaml:"description"`

	// SystemPrompt is the agent's persona prompt.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`

	// Model overrides the default LLM model for this agent (optional).
	Model string `json:"model,omitempty" yaml:"model"`

	// Tools lists the tool names this agent has access to.
	Tools []string `json:"tools,omitempty" yaml:"tools"`

	// GatedTools lists tool names that touch the live instance. They are
	// only bound once the conversation's permission gate has been opened.
	GatedTools []string `json:"gated_tools,omitempty" yaml:"gated_tools"`

	// CanReceiveHandoffs indicates if other agents can hand off to this one.
	CanReceiveHandoffs bool `json:"can_receive_handoffs" yaml:"can_receive_handoffs"`
}

// GuardConfig holds the cycle guard thresholds. The defaults match the
// behavior the product team signed off on; they are configuration, not
// constants, pending confirmation of the exact values.
type GuardConfig struct {
	// Lookback is how many recent handoffs the repetition check inspects.
	Lookback int `json:"lookback" yaml:"lookback"`

	// MaxRepeats is the occurrence count of a directed pair at which a
	// new request for that pair is rejected (counting the new request).
	MaxRepeats int `json:"max_repeats" yaml:"max_repeats"`
}

// DefaultGuardConfig returns the standard cycle guard thresholds.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{Lookback: 5, MaxRepeats: 3}
}

// DefaultMaxSteps is the per-agent invocation budget within one turn.
const DefaultMaxSteps = 10

// Next tells the dispatcher where control goes after a node invocation.
type Next string

const (
	// NextEnd terminates the turn.
	NextEnd Next = "end"

	// NextTools routes pending tool calls through the tool executor and
	// then returns control to the same agent.
	NextTools Next = "tools"
)

// HandoffIntent is the structured handoff request extracted from a node's
// output. It is first-class output, not a side effect.
type HandoffIntent struct {
	Target  string `json:"target_agent"`
	Reason  string `json:"reason"`
	Summary string `json:"context_summary"`
}

// Delta is the state change produced by one node invocation. The
// dispatcher is the only code that applies deltas, which keeps every
// mutation of ConversationState in one place.
type Delta struct {
	// Messages are appended to the conversation.
	Messages []*models.Message

	// Response is the user-visible reply, set when the turn terminates
	// with narrative output.
	Response string

	// StepAgent names the agent whose step counter increments. Every
	// agent invocation sets this exactly once.
	StepAgent string

	// ToolCalls are pending tool invocations for the tool executor.
	ToolCalls []models.ToolCall

	// Findings and Recommendations extend StepAgent's context bucket.
	Findings        []string
	Recommendations []string

	// Handoff, when set, records an accepted handoff. CompactedMessages
	// replaces the conversation history passed to the target and
	// HandoffSummary seeds the target's first prompt.
	Handoff           *models.HandoffRecord
	CompactedMessages []*models.Message
	HandoffSummary    string

	// Synthetic marks a terminal Response produced by control flow (the
	// model-failure apology, the permission prompt, the cycle or step-limit
	// summary) rather than a fresh model answer. Synthetic replies are
	// never written to the response cache.
	Synthetic bool

	// GrantPermission opens the conversation's permission gate.
	GrantPermission bool

	// ConsumeHandoffSummary clears the pending handoff summary after the
	// receiving agent has folded it into its first prompt.
	ConsumeHandoffSummary bool
}
