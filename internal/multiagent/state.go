package multiagent

import (
	"time"

	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// ConversationState is the ephemeral per-turn state. It is rebuilt from
// persisted messages plus the new user input at the start of every turn and
// discarded afterward, so concurrent turns never share mutable state.
type ConversationState struct {
	ConversationID string
	UserID         string

	// Messages is the ordered conversation history including the new
	// user message. Compacted on accepted handoffs.
	Messages []*models.Message

	CurrentAgent  string
	PreviousAgent string

	// HandoffHistory is append-only within the turn. Includes handoffs
	// from prior turns so the cycle guard sees the whole conversation.
	HandoffHistory []models.HandoffRecord

	// AgentContexts accumulates findings per agent. Mutated only through
	// deltas applied by the dispatcher.
	AgentContexts map[string]*AgentContext

	// PendingHandoffSummary is consumed by the first invocation of the
	// agent a handoff just landed on, then cleared.
	PendingHandoffSummary string

	// PermissionGranted is sticky for the conversation once set.
	PermissionGranted bool

	// StepCounts is monotonically non-decreasing within the turn.
	StepCounts map[string]int
}

// AgentContext is one agent's accumulator of structured notes. Mutated
// only by its owning node's deltas; read by the cycle guard's fallback
// summary and the handoff summarizer.
type AgentContext struct {
	Findings        []string  `json:"findings"`
	Recommendations []string  `json:"recommendations"`
	Constraints     []string  `json:"constraints"`
	OpenQuestions   []string  `json:"open_questions"`
	LastActive      time.Time `json:"last_active"`
}

// NewConversationState builds the turn state from persisted history plus
// the new user message.
func NewConversationState(conversationID, userID string, history []*models.Message, userMessage string) *ConversationState {
	msgs := make([]*models.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        userMessage,
		CreatedAt:      time.Now(),
	})
	return &ConversationState{
		ConversationID: conversationID,
		UserID:         userID,
		Messages:       msgs,
		AgentContexts:  map[string]*AgentContext{},
		StepCounts:     map[string]int{},
	}
}

// Context returns the context bucket for an agent, creating it on first use.
func (s *ConversationState) Context(agent string) *AgentContext {
	actx, ok := s.AgentContexts[agent]
	if !ok {
		actx = &AgentContext{}
		s.AgentContexts[agent] = actx
	}
	return actx
}

// LastUserMessages returns up to n most recent user messages, newest last.
func (s *ConversationState) LastUserMessages(n int) []*models.Message {
	var out []*models.Message
	for i := len(s.Messages) - 1; i >= 0 && len(out) < n; i-- {
		if s.Messages[i].Role == models.RoleUser {
			out = append(out, s.Messages[i])
		}
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// apply folds a node's delta into the state. Called only by the dispatcher.
func (s *ConversationState) apply(delta *Delta) {
	if delta == nil {
		return
	}
	if delta.StepAgent != "" {
		s.StepCounts[delta.StepAgent]++
		actx := s.Context(delta.StepAgent)
		actx.LastActive = time.Now()
		actx.Findings = append(actx.Findings, delta.Findings...)
		actx.Recommendations = append(actx.Recommendations, delta.Recommendations...)
	}
	s.Messages = append(s.Messages, delta.Messages...)
	if delta.GrantPermission {
		s.PermissionGranted = true
	}
	if delta.ConsumeHandoffSummary {
		s.PendingHandoffSummary = ""
	}
	if delta.Handoff != nil {
		s.HandoffHistory = append(s.HandoffHistory, *delta.Handoff)
		if delta.CompactedMessages != nil {
			s.Messages = delta.CompactedMessages
		}
		s.PreviousAgent = delta.Handoff.FromAgent
		s.CurrentAgent = delta.Handoff.ToAgent
		// Handoff state moves wholesale; nothing pending leaks forward.
		s.PendingHandoffSummary = delta.HandoffSummary
	}
}
