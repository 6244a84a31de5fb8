package multiagent

import (
	"strings"
)

// defaultAffirmativeTokens is the fixed vocabulary that opens the
// permission gate. Matching is case-insensitive substring.
var defaultAffirmativeTokens = []string{
	"yes",
	"yeah",
	"yep",
	"sure",
	"okay",
	"ok",
	"go ahead",
	"please check",
	"please do",
	"proceed",
	"connect",
	"do it",
	"check it",
	"go for it",
	"sounds good",
}

// PermissionGate guards live-instance access. It holds no per-conversation
// state itself; the sticky grant lives on ConversationState so concurrent
// conversations stay independent.
type PermissionGate struct {
	tokens   []string
	lookback int
}

// NewPermissionGate creates a gate with the default vocabulary and a
// lookback of 3 user messages.
func NewPermissionGate() *PermissionGate {
	return &PermissionGate{tokens: defaultAffirmativeTokens, lookback: 3}
}

// Granted reports whether live-instance access is allowed for this state.
// A prior grant is sticky for the conversation. Otherwise the last few
// user messages are re-scanned for an affirmative token; this happens on
// every turn until the gate opens, including turns where the user is
// plainly answering a previous permission prompt.
func (g *PermissionGate) Granted(state *ConversationState) bool {
	if state.PermissionGranted {
		return true
	}
	for _, msg := range state.LastUserMessages(g.lookback) {
		lower := strings.ToLower(msg.Content)
		for _, token := range g.tokens {
			if strings.Contains(lower, token) {
				return true
			}
		}
	}
	return false
}

// RequestMessage is the single message sent when the gate denies access.
func (g *PermissionGate) RequestMessage() string {
	return "I can check your live ServiceNow instance for this, but I need your explicit permission first. " +
		"This will read configuration and log data from your instance using the stored credentials. " +
		"Shall I go ahead?"
}
