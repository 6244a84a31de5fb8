package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
	"github.com/mailsabhi2007/SNConsultant/internal/observability"
)

const routerSystemPrompt = `You are the request router for a ServiceNow consulting platform. Classify the user's request into exactly one specialist:

- consultant: general questions, best practices, "how does X work", process advice, documentation lookups.
- solution_architect: designing or writing configurations, business rules, workflows, integrations, or anything that produces an artifact.
- implementation: inspecting or changing the client's live instance, diagnosing errors or recent changes on a real system.

Pick the single best specialist for the request.`

var routeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"agent": {
			"type": "string",
			"enum": ["consultant", "solution_architect", "implementation"],
			"description": "The specialist best suited to handle the request"
		},
		"rationale": {
			"type": "string",
			"description": "One sentence explaining the choice"
		}
	},
	"required": ["agent"]
}`)

// Router classifies the opening message of a turn into a specialist role.
// It never makes tool calls, and it never fails a turn: any classification
// error falls back to the consultant.
type Router struct {
	provider agent.LLMProvider
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewRouter creates a router on the given provider.
func NewRouter(provider agent.LLMProvider, logger *observability.Logger, metrics *observability.Metrics) *Router {
	return &Router{provider: provider, logger: logger, metrics: metrics}
}

// Route returns the specialist for the message and a short rationale kept
// for observability only.
func (r *Router) Route(ctx context.Context, message string) (string, string) {
	var decision struct {
		Agent     string `json:"agent"`
		Rationale string `json:"rationale"`
	}
	prompt := fmt.Sprintf("Classify this request:\n\n%s", message)
	err := r.provider.Classify(ctx, routerSystemPrompt, prompt, routeSchema, &decision)
	if err == nil {
		switch strings.TrimSpace(decision.Agent) {
		case AgentConsultant, AgentArchitect, AgentImplementation:
			r.count(decision.Agent, false)
			return decision.Agent, decision.Rationale
		}
		err = fmt.Errorf("unknown agent %q", decision.Agent)
	}

	// Routing failure is recovered locally and never surfaced to the user.
	if r.logger != nil {
		r.logger.Warn(ctx, "Routing failed, defaulting to consultant", "error", err)
	}
	r.count(AgentConsultant, true)
	return AgentConsultant, "fallback after classification failure"
}

func (r *Router) count(agentName string, fallback bool) {
	if r.metrics == nil {
		return
	}
	r.metrics.RouterDecisions.WithLabelValues(agentName, fmt.Sprintf("%t", fallback)).Inc()
}
