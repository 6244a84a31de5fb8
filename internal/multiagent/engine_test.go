package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
	"github.com/mailsabhi2007/SNConsultant/internal/cache"
	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// fakeProvider scripts the LLM: Classify answers with a fixed routing
// decision and Complete pops pre-canned completions in order.
type fakeProvider struct {
	routeAgent  string
	routeErr    error
	completions []*agent.Completion
	completeErr error

	completeCalls int
	lastRequest   *agent.CompletionRequest
}

func (f *fakeProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	f.completeCalls++
	f.lastRequest = req
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if len(f.completions) == 0 {
		return &agent.Completion{Text: "done"}, nil
	}
	c := f.completions[0]
	f.completions = f.completions[1:]
	return c, nil
}

func (f *fakeProvider) Classify(ctx context.Context, system, prompt string, schema json.RawMessage, out any) error {
	if f.routeErr != nil {
		return f.routeErr
	}
	raw, err := json.Marshal(map[string]string{"agent": f.routeAgent, "rationale": "scripted"})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeProvider) Name() string { return "fake" }

// fakeEmbedder produces a deterministic vector per text, so distinct
// queries land far apart and repeats land identically.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, 8)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(seed%1000) / 1000
	}
	return vec, nil
}

func (fakeEmbedder) Name() string   { return "fake" }
func (fakeEmbedder) Dimension() int { return 8 }

// fakeTool records invocations and returns a fixed result.
type fakeTool struct {
	name   string
	result string
	calls  int
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "test tool" }
func (t *fakeTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {"table": {"type": "string"}}}`)
}
func (t *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	t.calls++
	return &agent.ToolResult{Content: t.result}, nil
}

func handoffCall(target, reason string) models.ToolCall {
	input, _ := json.Marshal(HandoffIntent{Target: target, Reason: reason})
	return models.ToolCall{ID: "h1", Name: HandoffToolName, Input: input}
}

func newTestEngine(t *testing.T, provider *fakeProvider, cacheStore *cache.Store, extraTools ...agent.Tool) *Engine {
	t.Helper()
	registry := agent.NewToolRegistry()
	registry.Register(NewHandoffTool(DefaultAgents()))
	for _, tool := range extraTools {
		registry.Register(tool)
	}
	engine, err := NewEngine(EngineOptions{
		Provider: provider,
		Registry: registry,
		Cache:    cacheStore,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func openTestCache(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), fakeEmbedder{}, cache.Options{})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInvokeBestPracticeQuestionIsCachedOnRepeat(t *testing.T) {
	provider := &fakeProvider{
		routeAgent: AgentConsultant,
		completions: []*agent.Completion{
			{Text: "Use data-driven assignment rules and keep groups flat."},
		},
	}
	engine := newTestEngine(t, provider, openTestCache(t))

	req := &InvokeRequest{
		ConversationID: "c1",
		UserID:         "alice",
		Message:        "What's the best practice for incident assignment?",
	}

	first, err := engine.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("first invoke: %v", err)
	}
	if first.IsCached {
		t.Error("first run must not be served from cache")
	}
	if first.CurrentAgent != AgentConsultant {
		t.Errorf("current agent = %q, want consultant", first.CurrentAgent)
	}
	if len(first.HandoffHistory) != 0 {
		t.Errorf("unexpected handoffs: %v", first.HandoffHistory)
	}

	modelCalls := provider.completeCalls
	second, err := engine.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("second invoke: %v", err)
	}
	if !second.IsCached {
		t.Fatal("identical repeat must be served from cache")
	}
	if second.Similarity != 1.0 {
		t.Errorf("similarity = %v, want 1.0 for exact repeat", second.Similarity)
	}
	if second.ResponseText != first.ResponseText {
		t.Errorf("cached response %q differs from original %q", second.ResponseText, first.ResponseText)
	}
	if provider.completeCalls != modelCalls {
		t.Error("cache hit must not invoke the model")
	}
}

func TestInvokeArchitectUsesToolAndReturns(t *testing.T) {
	schemaTool := &fakeTool{name: "check_table_schema", result: "incident: number, assignment_group, state"}
	provider := &fakeProvider{
		routeAgent: AgentArchitect,
		completions: []*agent.Completion{
			{ToolCalls: []models.ToolCall{{ID: "t1", Name: "check_table_schema", Input: json.RawMessage(`{"table": "incident"}`)}}},
			{Text: "Here is a business rule that auto-assigns incidents by category."},
		},
	}
	engine := newTestEngine(t, provider, nil, schemaTool)

	result, err := engine.Invoke(context.Background(), &InvokeRequest{
		ConversationID: "c2",
		UserID:         "alice",
		Message:        "Write a business rule to auto-assign incidents",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if schemaTool.calls != 1 {
		t.Errorf("schema tool calls = %d, want 1", schemaTool.calls)
	}
	if result.CurrentAgent != AgentArchitect {
		t.Errorf("current agent = %q, want solution_architect", result.CurrentAgent)
	}
	if len(result.HandoffHistory) != 0 {
		t.Errorf("turn must end without handoff, got %v", result.HandoffHistory)
	}
	if !strings.Contains(result.ResponseText, "business rule") {
		t.Errorf("unexpected response: %q", result.ResponseText)
	}
	if provider.completeCalls != 2 {
		t.Errorf("model calls = %d, want 2 (tool round trip)", provider.completeCalls)
	}
}

func TestInvokeThirdRepeatedHandoffRejected(t *testing.T) {
	provider := &fakeProvider{
		routeAgent: AgentConsultant,
		completions: []*agent.Completion{
			{ToolCalls: []models.ToolCall{handoffCall(AgentImplementation, "needs live data")}},
		},
	}
	engine := newTestEngine(t, provider, nil)

	result, err := engine.Invoke(context.Background(), &InvokeRequest{
		ConversationID: "c3",
		UserID:         "alice",
		Message:        "And what about the other rule?",
		HandoffHistory: []models.HandoffRecord{
			{FromAgent: AgentConsultant, ToAgent: AgentImplementation},
			{FromAgent: AgentImplementation, ToAgent: AgentConsultant},
		},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(result.HandoffHistory) != 0 {
		t.Errorf("rejected handoff must not be recorded, got %v", result.HandoffHistory)
	}
	if !strings.Contains(strings.ToLower(result.ResponseText), "circular") {
		t.Errorf("response should state the circular pattern, got %q", result.ResponseText)
	}
	if result.CurrentAgent != AgentConsultant {
		t.Errorf("control must stay with the rejecting agent, got %q", result.CurrentAgent)
	}
}

func TestInvokeAcceptedHandoffTransfersControl(t *testing.T) {
	provider := &fakeProvider{
		routeAgent: AgentConsultant,
		completions: []*agent.Completion{
			{
				Text:      "I found that this needs a concrete design.",
				ToolCalls: []models.ToolCall{handoffCall(AgentArchitect, "design work required")},
			},
			{Text: "Here is the design."},
		},
	}
	engine := newTestEngine(t, provider, nil)

	result, err := engine.Invoke(context.Background(), &InvokeRequest{
		ConversationID: "c4",
		UserID:         "alice",
		Message:        "Can you build me an approval flow?",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.CurrentAgent != AgentArchitect {
		t.Errorf("current agent = %q, want solution_architect after handoff", result.CurrentAgent)
	}
	if len(result.HandoffHistory) != 1 {
		t.Fatalf("handoff history = %v, want one record", result.HandoffHistory)
	}
	h := result.HandoffHistory[0]
	if h.FromAgent != AgentConsultant || h.ToAgent != AgentArchitect {
		t.Errorf("handoff record %s->%s, want consultant->solution_architect", h.FromAgent, h.ToAgent)
	}
	if !strings.Contains(h.ContextSummary, "design work required") {
		t.Errorf("context summary should carry the reason, got %q", h.ContextSummary)
	}
	if result.ResponseText != "Here is the design." {
		t.Errorf("response = %q", result.ResponseText)
	}

	// The receiving agent's prompt must carry the handoff context.
	if !strings.Contains(provider.lastRequest.System, "taking over") {
		t.Error("target agent prompt should include the handoff note")
	}
}

func TestInvokeModelFailureYieldsApology(t *testing.T) {
	provider := &fakeProvider{
		routeAgent:  AgentConsultant,
		completeErr: fmt.Errorf("upstream 500"),
	}
	engine := newTestEngine(t, provider, nil)

	result, err := engine.Invoke(context.Background(), &InvokeRequest{
		ConversationID: "c5",
		UserID:         "alice",
		Message:        "Explain SLAs",
	})
	if err != nil {
		t.Fatalf("model failure must not fail the turn: %v", err)
	}
	if result.ResponseText != apologyMessage {
		t.Errorf("response = %q, want apology", result.ResponseText)
	}
}

func TestInvokeApologyIsNotCached(t *testing.T) {
	cacheStore := openTestCache(t)
	provider := &fakeProvider{
		routeAgent:  AgentConsultant,
		completeErr: fmt.Errorf("upstream 500"),
	}
	engine := newTestEngine(t, provider, cacheStore)

	req := &InvokeRequest{
		ConversationID: "c7",
		UserID:         "alice",
		Message:        "What's the best practice for incident assignment?",
	}

	first, err := engine.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("first invoke: %v", err)
	}
	if first.ResponseText != apologyMessage {
		t.Fatalf("response = %q, want apology", first.ResponseText)
	}

	// Upstream recovers. The repeat of the same cacheable query must reach
	// the model instead of replaying the failure-turn apology.
	provider.completeErr = nil
	provider.completions = []*agent.Completion{
		{Text: "Use data-driven assignment rules and keep groups flat."},
	}
	second, err := engine.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("second invoke: %v", err)
	}
	if second.IsCached {
		t.Error("the apology must not be served from cache")
	}
	if second.ResponseText == apologyMessage {
		t.Errorf("response = %q, want a fresh answer", second.ResponseText)
	}

	// The fresh answer is what gets cached for the next repeat.
	third, err := engine.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("third invoke: %v", err)
	}
	if !third.IsCached || third.ResponseText != second.ResponseText {
		t.Errorf("third run cached=%v text=%q, want the cached fresh answer", third.IsCached, third.ResponseText)
	}
}

func TestInvokeLiveDataQueryNeverCached(t *testing.T) {
	cacheStore := openTestCache(t)
	provider := &fakeProvider{
		routeAgent: AgentConsultant,
		completions: []*agent.Completion{
			{Text: "Looks like three failed scheduled jobs."},
			{Text: "Still three failed scheduled jobs."},
		},
	}
	engine := newTestEngine(t, provider, cacheStore)

	req := &InvokeRequest{
		ConversationID: "c6",
		UserID:         "alice",
		Message:        "What do the recent changes on my instance look like?",
	}
	if _, err := engine.Invoke(context.Background(), req); err != nil {
		t.Fatalf("first invoke: %v", err)
	}
	second, err := engine.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("second invoke: %v", err)
	}
	if second.IsCached {
		t.Error("live-data queries must never be served from cache")
	}
	if provider.completeCalls != 2 {
		t.Errorf("model calls = %d, want 2 (no cache involvement)", provider.completeCalls)
	}
}
