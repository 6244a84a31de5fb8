package multiagent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
	"github.com/mailsabhi2007/SNConsultant/internal/observability"
	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

const apologyMessage = "I'm sorry, I ran into a problem while working on your request. Please try again in a moment."

// AgentNode wraps one specialist persona. Run is a pure function over
// ConversationState: it never mutates the state, it returns a Delta the
// dispatcher applies.
type AgentNode struct {
	def        *AgentDefinition
	provider   agent.LLMProvider
	registry   *agent.ToolRegistry
	classifier ContextClassifier
	guard      *CycleGuard
	gate       *PermissionGate
	maxSteps   int
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NodeOptions wires an AgentNode's collaborators.
type NodeOptions struct {
	Provider   agent.LLMProvider
	Registry   *agent.ToolRegistry
	Classifier ContextClassifier
	Guard      *CycleGuard
	Gate       *PermissionGate
	MaxSteps   int
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// NewAgentNode builds a node for one persona.
func NewAgentNode(def *AgentDefinition, opts NodeOptions) *AgentNode {
	if opts.Classifier == nil {
		opts.Classifier = NewKeywordClassifier()
	}
	if opts.Guard == nil {
		opts.Guard = NewCycleGuard(DefaultGuardConfig())
	}
	if opts.Gate == nil {
		opts.Gate = NewPermissionGate()
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &AgentNode{
		def:        def,
		provider:   opts.Provider,
		registry:   opts.Registry,
		classifier: opts.Classifier,
		guard:      opts.Guard,
		gate:       opts.Gate,
		maxSteps:   opts.MaxSteps,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// ID returns the persona identifier.
func (n *AgentNode) ID() string {
	return n.def.ID
}

// Run performs one node invocation: at most one model call, classified
// into a reply, pending tool calls, or a handoff intent. The step counter
// increments exactly once per invocation regardless of outcome.
func (n *AgentNode) Run(ctx context.Context, state *ConversationState) (*Delta, Next, error) {
	// Out of budget: answer from accumulated context, no model call.
	if state.StepCounts[n.def.ID] >= n.maxSteps {
		if n.metrics != nil {
			n.metrics.StepLimitHits.WithLabelValues(n.def.ID).Inc()
		}
		summary := n.exhaustedSummary(state.Context(n.def.ID))
		delta := &Delta{
			StepAgent: n.def.ID,
			Response:  summary,
			Synthetic: true,
			Messages:  []*models.Message{assistantMessage(state.ConversationID, summary, nil)},
		}
		return delta, NextEnd, nil
	}

	delta := &Delta{StepAgent: n.def.ID}

	// The live-instance persona must clear the gate before any reasoning.
	if len(n.def.GatedTools) > 0 && !state.PermissionGranted {
		if !n.gate.Granted(state) {
			msg := n.gate.RequestMessage()
			delta.Response = msg
			delta.Synthetic = true
			delta.Messages = []*models.Message{assistantMessage(state.ConversationID, msg, nil)}
			return delta, NextEnd, nil
		}
		delta.GrantPermission = true
	}

	system := n.def.SystemPrompt
	if state.PendingHandoffSummary != "" && state.CurrentAgent == n.def.ID {
		system += "\n\nYou are taking over this conversation from another specialist.\n" + state.PendingHandoffSummary
		delta.ConsumeHandoffSummary = true
	}

	req := &agent.CompletionRequest{
		Model:    n.def.Model,
		System:   system,
		Messages: toCompletionMessages(state.Messages),
		Tools:    n.boundTools(state),
	}

	start := time.Now()
	completion, err := n.provider.Complete(ctx, req)
	if n.metrics != nil {
		n.metrics.LLMRequestDuration.WithLabelValues(n.provider.Name(), n.def.Model).Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		n.metrics.LLMRequests.WithLabelValues(n.provider.Name(), n.def.Model, status).Inc()
	}
	if err != nil {
		// No silent retries. The step count still moves so the loop
		// prevention invariants hold.
		if n.logger != nil {
			n.logger.Error(ctx, "Model invocation failed", "agent", n.def.ID, "error", err)
		}
		delta.Response = apologyMessage
		delta.Synthetic = true
		delta.Messages = []*models.Message{assistantMessage(state.ConversationID, apologyMessage, nil)}
		return delta, NextEnd, nil
	}

	extraction := n.classifier.Classify(completion.Text)
	delta.Findings = extraction.Findings
	delta.Recommendations = extraction.Recommendations

	if intent := extractHandoffIntent(completion.ToolCalls); intent != nil {
		return n.resolveHandoff(ctx, state, delta, completion, intent)
	}

	assistant := assistantMessage(state.ConversationID, completion.Text, completion.ToolCalls)
	delta.Messages = []*models.Message{assistant}
	if len(completion.ToolCalls) > 0 {
		delta.ToolCalls = completion.ToolCalls
		return delta, NextTools, nil
	}
	delta.Response = completion.Text
	return delta, NextEnd, nil
}

// resolveHandoff runs the cycle guard and either records the handoff with
// a compacted history or terminates the turn with a summary of what the
// departing agent has established.
func (n *AgentNode) resolveHandoff(ctx context.Context, state *ConversationState, delta *Delta, completion *agent.Completion, intent *HandoffIntent) (*Delta, Next, error) {
	source := n.def.ID
	ok, reason := n.guard.Check(state.HandoffHistory, source, intent.Target)

	// Merge this invocation's extraction so the summary sees it.
	actx := mergeContext(state.Context(source), delta)

	if !ok {
		if n.metrics != nil {
			n.metrics.Handoffs.WithLabelValues(source, intent.Target, "rejected").Inc()
		}
		if n.logger != nil {
			n.logger.Warn(ctx, "Handoff rejected by cycle guard", "from", source, "to", intent.Target, "reason", reason)
		}
		msg := circularSummary(actx)
		delta.Response = msg
		delta.Synthetic = true
		delta.Messages = []*models.Message{assistantMessage(state.ConversationID, msg, nil)}
		return delta, NextEnd, nil
	}

	if n.metrics != nil {
		n.metrics.Handoffs.WithLabelValues(source, intent.Target, "accepted").Inc()
	}
	reasonText := intent.Reason
	if intent.Summary != "" {
		reasonText += ". " + intent.Summary
	}
	summary := synthesizeSummary(reasonText, actx)

	record := &models.HandoffRecord{
		FromAgent:      source,
		ToAgent:        intent.Target,
		Reason:         intent.Reason,
		ContextSummary: summary,
		Timestamp:      time.Now(),
	}

	full := state.Messages
	if completion.Text != "" {
		full = append(append([]*models.Message{}, full...),
			assistantMessage(state.ConversationID, completion.Text, nil))
	}
	delta.Handoff = record
	delta.CompactedMessages = compactHistory(full, summary)
	delta.HandoffSummary = summary
	return delta, Next(intent.Target), nil
}

// boundTools resolves this persona's tools from the registry, withholding
// gated tools until the permission gate has opened.
func (n *AgentNode) boundTools(state *ConversationState) []agent.Tool {
	names := make([]string, 0, len(n.def.Tools)+len(n.def.GatedTools))
	names = append(names, n.def.Tools...)
	if state.PermissionGranted || n.gate.Granted(state) {
		names = append(names, n.def.GatedTools...)
	}
	var out []agent.Tool
	for _, name := range names {
		if tool, ok := n.registry.Get(name); ok {
			out = append(out, tool)
		}
	}
	return out
}

// exhaustedSummary is the forced-termination reply assembled from the
// agent's own context bucket instead of another model call.
func (n *AgentNode) exhaustedSummary(actx *AgentContext) string {
	var b strings.Builder
	b.WriteString("I've reached the limit of what I can do in this turn. Here is where things stand.")
	writeSection(&b, "Findings", actx.Findings)
	writeSection(&b, "Recommendations", actx.Recommendations)
	writeSection(&b, "Open questions", actx.OpenQuestions)
	return b.String()
}

func circularSummary(actx *AgentContext) string {
	var b strings.Builder
	b.WriteString("I've detected a circular pattern in how this conversation is being passed between specialists, so I'll stop here and present what has been established instead.")
	writeSection(&b, "Findings", actx.Findings)
	writeSection(&b, "Recommendations", actx.Recommendations)
	writeSection(&b, "Open questions", actx.OpenQuestions)
	return b.String()
}

// mergeContext overlays a not-yet-applied delta onto a copy of the agent's
// context bucket.
func mergeContext(actx *AgentContext, delta *Delta) *AgentContext {
	merged := &AgentContext{
		Findings:        append(append([]string{}, actx.Findings...), delta.Findings...),
		Recommendations: append(append([]string{}, actx.Recommendations...), delta.Recommendations...),
		Constraints:     append([]string{}, actx.Constraints...),
		OpenQuestions:   append([]string{}, actx.OpenQuestions...),
		LastActive:      actx.LastActive,
	}
	return merged
}

func extractHandoffIntent(calls []models.ToolCall) *HandoffIntent {
	for _, call := range calls {
		if call.Name != HandoffToolName {
			continue
		}
		var intent HandoffIntent
		if err := json.Unmarshal(call.Input, &intent); err != nil || intent.Target == "" {
			continue
		}
		return &intent
	}
	return nil
}

func assistantMessage(conversationID, content string, calls []models.ToolCall) *models.Message {
	return &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        content,
		ToolCalls:      calls,
		CreatedAt:      time.Now(),
	}
}

func toCompletionMessages(msgs []*models.Message) []agent.CompletionMessage {
	out := make([]agent.CompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, agent.CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		})
	}
	return out
}
