package multiagent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
)

func consultantNode(provider *fakeProvider, registry *agent.ToolRegistry) *AgentNode {
	defs := DefaultAgents()
	return NewAgentNode(defs[0], NodeOptions{Provider: provider, Registry: registry})
}

func implementationNode(provider *fakeProvider, registry *agent.ToolRegistry) *AgentNode {
	defs := DefaultAgents()
	return NewAgentNode(defs[2], NodeOptions{Provider: provider, Registry: registry})
}

func TestNodeStepLimitAnswersWithoutModelCall(t *testing.T) {
	provider := &fakeProvider{}
	node := consultantNode(provider, agent.NewToolRegistry())

	state := NewConversationState("c1", "alice", nil, "keep going")
	state.CurrentAgent = AgentConsultant
	state.StepCounts[AgentConsultant] = DefaultMaxSteps
	actx := state.Context(AgentConsultant)
	actx.Findings = []string{"The SLA timer resets on reassignment."}
	actx.Recommendations = []string{"Pin the assignment group in the workflow."}

	delta, next, err := node.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.completeCalls != 0 {
		t.Error("step-limited node must not call the model")
	}
	if next != NextEnd {
		t.Errorf("next = %q, want end", next)
	}
	if delta.StepAgent != AgentConsultant {
		t.Error("forced termination must still consume a step")
	}
	if !strings.Contains(delta.Response, "SLA timer") || !strings.Contains(delta.Response, "assignment group") {
		t.Errorf("summary should surface accumulated context, got %q", delta.Response)
	}
}

func TestNodeModelErrorApologizesAndConsumesStep(t *testing.T) {
	provider := &fakeProvider{completeErr: errors.New("connection reset")}
	node := consultantNode(provider, agent.NewToolRegistry())

	state := NewConversationState("c1", "alice", nil, "explain SLAs")
	state.CurrentAgent = AgentConsultant

	delta, next, err := node.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("model failure must not surface as a run error: %v", err)
	}
	if next != NextEnd {
		t.Errorf("next = %q, want end", next)
	}
	if delta.Response != apologyMessage {
		t.Errorf("response = %q, want apology", delta.Response)
	}
	if delta.StepAgent != AgentConsultant {
		t.Error("failed invocation must still consume a step")
	}
}

func TestNodeGateDeniedAsksForPermission(t *testing.T) {
	provider := &fakeProvider{}
	node := implementationNode(provider, agent.NewToolRegistry())

	state := NewConversationState("c1", "alice", nil, "what recently failed?")
	state.CurrentAgent = AgentImplementation

	delta, next, err := node.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.completeCalls != 0 {
		t.Error("gated node must not call the model before permission")
	}
	if next != NextEnd {
		t.Errorf("next = %q, want end", next)
	}
	if delta.Response != NewPermissionGate().RequestMessage() {
		t.Errorf("response = %q, want permission request", delta.Response)
	}
	if delta.GrantPermission {
		t.Error("denied gate must not grant permission")
	}
}

func TestNodeGateGrantedBindsLiveTools(t *testing.T) {
	registry := agent.NewToolRegistry()
	liveTool := &fakeTool{name: "check_live_instance", result: "ok"}
	registry.Register(liveTool)

	provider := &fakeProvider{completions: []*agent.Completion{{Text: "Checking now."}}}
	node := implementationNode(provider, registry)

	state := NewConversationState("c1", "alice", nil, "yes, go ahead")
	state.CurrentAgent = AgentImplementation

	delta, _, err := node.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !delta.GrantPermission {
		t.Error("affirmative user message should open the gate")
	}
	if provider.completeCalls != 1 {
		t.Fatalf("model calls = %d, want 1", provider.completeCalls)
	}
	var names []string
	for _, tool := range provider.lastRequest.Tools {
		names = append(names, tool.Name())
	}
	found := false
	for _, name := range names {
		if name == "check_live_instance" {
			found = true
		}
	}
	if !found {
		t.Errorf("gated tool missing from bound tools %v", names)
	}
}

func TestNodeConsumesPendingHandoffSummary(t *testing.T) {
	provider := &fakeProvider{completions: []*agent.Completion{{Text: "Continuing from here."}}}
	node := consultantNode(provider, agent.NewToolRegistry())

	state := NewConversationState("c1", "alice", nil, "go on")
	state.CurrentAgent = AgentConsultant
	state.PendingHandoffSummary = "Handoff reason: needs a plain-language recap."

	delta, _, err := node.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !delta.ConsumeHandoffSummary {
		t.Error("delta should mark the handoff summary as consumed")
	}
	if !strings.Contains(provider.lastRequest.System, "plain-language recap") {
		t.Errorf("system prompt should embed the handoff summary, got %q", provider.lastRequest.System)
	}
}
