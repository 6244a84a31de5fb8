package multiagent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
	"github.com/mailsabhi2007/SNConsultant/internal/cache"
	"github.com/mailsabhi2007/SNConsultant/internal/observability"
	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// Engine is the dispatcher: the strictly sequential loop that ties
// router, agent nodes, tool executor, and the semantic cache together for
// one turn. Engines are safe for concurrent use across conversations
// because all per-turn state lives in ConversationState.
type Engine struct {
	router   *Router
	nodes    map[string]*AgentNode
	registry *agent.ToolRegistry
	cache    *cache.Store
	ttlDays  int
	model    string
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// EngineOptions wires an Engine's collaborators. Cache is optional;
// everything else is required.
type EngineOptions struct {
	Provider   agent.LLMProvider
	Registry   *agent.ToolRegistry
	Agents     []*AgentDefinition
	Guard      GuardConfig
	MaxSteps   int
	Classifier ContextClassifier
	Cache      *cache.Store
	CacheTTL   int
	Model      string
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// NewEngine builds the dispatcher over the given personas.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("multiagent: provider is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("multiagent: tool registry is required")
	}
	if len(opts.Agents) == 0 {
		opts.Agents = DefaultAgents()
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = cache.DefaultTTLDays
	}

	guard := NewCycleGuard(opts.Guard)
	gate := NewPermissionGate()
	nodes := make(map[string]*AgentNode, len(opts.Agents))
	for _, def := range opts.Agents {
		if def.Model == "" {
			def.Model = opts.Model
		}
		nodes[def.ID] = NewAgentNode(def, NodeOptions{
			Provider:   opts.Provider,
			Registry:   opts.Registry,
			Classifier: opts.Classifier,
			Guard:      guard,
			Gate:       gate,
			MaxSteps:   opts.MaxSteps,
			Logger:     opts.Logger,
			Metrics:    opts.Metrics,
		})
	}

	return &Engine{
		router:   NewRouter(opts.Provider, opts.Logger, opts.Metrics),
		nodes:    nodes,
		registry: opts.Registry,
		cache:    opts.Cache,
		ttlDays:  opts.CacheTTL,
		model:    opts.Model,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

// InvokeRequest carries one user turn plus the prior conversation state the
// caller has persisted. The engine never persists anything itself.
type InvokeRequest struct {
	ConversationID string
	UserID         string
	Message        string

	// History is the persisted conversation, oldest first, excluding the
	// new message.
	History []*models.Message

	// HandoffHistory is the persisted handoff trail for the conversation.
	HandoffHistory []models.HandoffRecord

	// PermissionGranted carries a sticky grant from earlier turns.
	PermissionGranted bool
}

// InvokeResult is the outcome of one turn.
type InvokeResult struct {
	ResponseText      string                 `json:"response_text"`
	CurrentAgent      string                 `json:"current_agent"`
	HandoffHistory    []models.HandoffRecord `json:"handoff_history,omitempty"`
	IsCached          bool                   `json:"is_cached"`
	Similarity        float64                `json:"similarity,omitempty"`
	ConversationID    string                 `json:"conversation_id"`
	PermissionGranted bool                   `json:"permission_granted"`
}

// Invoke processes one user turn to a terminal outcome.
func (e *Engine) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error) {
	start := time.Now()
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	// Cache fast path: a sufficiently similar cacheable query
	// short-circuits the entire dispatch.
	if hit := e.cacheLookup(ctx, req); hit != nil {
		return &InvokeResult{
			ResponseText:      hit.Entry.ResponseText,
			CurrentAgent:      AgentConsultant,
			IsCached:          true,
			Similarity:        hit.Similarity,
			ConversationID:    req.ConversationID,
			PermissionGranted: req.PermissionGranted,
		}, nil
	}

	state := NewConversationState(req.ConversationID, req.UserID, req.History, req.Message)
	state.HandoffHistory = append(state.HandoffHistory, req.HandoffHistory...)
	state.PermissionGranted = req.PermissionGranted

	agentName, rationale := e.router.Route(ctx, req.Message)
	state.CurrentAgent = agentName
	if e.logger != nil {
		e.logger.Info(ctx, "Routed request", "agent", agentName, "rationale", rationale)
	}

	priorHandoffs := len(state.HandoffHistory)
	response, fresh, err := e.dispatch(ctx, state)
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.TurnDuration.WithLabelValues(state.CurrentAgent).Observe(time.Since(start).Seconds())
	}

	// Best-effort store of fresh answers only. Control-flow replies such as
	// the apology or the permission prompt must never be served to a later
	// identical query, and a cancelled turn is terminal without persistence.
	if ctx.Err() == nil && response != "" && fresh {
		e.cacheStore(ctx, req, response)
	}

	return &InvokeResult{
		ResponseText:      response,
		CurrentAgent:      state.CurrentAgent,
		HandoffHistory:    state.HandoffHistory[priorHandoffs:],
		IsCached:          false,
		ConversationID:    req.ConversationID,
		PermissionGranted: state.PermissionGranted,
	}, nil
}

// dispatch runs the node loop to a terminal outcome. It reports whether
// the response is a fresh model answer as opposed to a synthetic
// control-flow reply. The per-agent step budget bounds the loop: every
// agent invocation consumes budget, so the loop cannot run forever even
// through handoffs.
func (e *Engine) dispatch(ctx context.Context, state *ConversationState) (string, bool, error) {
	maxIterations := 0
	for _, node := range e.nodes {
		maxIterations += node.maxSteps
	}
	// Tool hops do not consume agent budget; double for slack.
	maxIterations *= 2

	for i := 0; i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		node, ok := e.nodes[state.CurrentAgent]
		if !ok {
			return "", false, fmt.Errorf("multiagent: no node for agent %q", state.CurrentAgent)
		}

		delta, next, err := node.Run(ctx, state)
		if err != nil {
			return "", false, err
		}
		state.apply(delta)

		switch next {
		case NextEnd:
			return delta.Response, !delta.Synthetic, nil
		case NextTools:
			e.executeTools(ctx, state, delta.ToolCalls)
		default:
			if _, ok := e.nodes[string(next)]; !ok {
				return "", false, fmt.Errorf("multiagent: handoff to unknown agent %q", next)
			}
			// state.apply already moved CurrentAgent via the handoff
			// record; the hint and the record always agree.
		}
	}
	return "", false, fmt.Errorf("multiagent: dispatch exceeded %d iterations", maxIterations)
}

// executeTools runs the pending tool calls and appends their results as a
// tool message so the same agent can react on its next step. Failures are
// surfaced as tool output, never as turn-aborting errors.
func (e *Engine) executeTools(ctx context.Context, state *ConversationState, calls []models.ToolCall) {
	results := make([]models.ToolResult, 0, len(calls))
	for _, call := range calls {
		result, err := e.registry.Execute(ctx, call.Name, call.Input)
		status := "success"
		content := ""
		isErr := false
		switch {
		case result != nil:
			content = result.Content
			isErr = result.IsError
		case err != nil:
			content = fmt.Sprintf("tool %s failed: %v", call.Name, err)
			isErr = true
		}
		if isErr {
			status = "error"
		}
		if e.metrics != nil {
			e.metrics.ToolExecutions.WithLabelValues(call.Name, status).Inc()
		}
		if e.logger != nil {
			e.logger.Debug(ctx, "Tool executed", "tool", call.Name, "is_error", isErr)
		}
		results = append(results, models.ToolResult{
			ToolCallID: call.ID,
			Content:    content,
			IsError:    isErr,
		})
	}
	state.Messages = append(state.Messages, &models.Message{
		ConversationID: state.ConversationID,
		Role:           models.RoleTool,
		ToolResults:    results,
		CreatedAt:      time.Now(),
	})
}

func (e *Engine) cacheLookup(ctx context.Context, req *InvokeRequest) *cache.Match {
	if e.cache == nil {
		return nil
	}
	match, err := e.cache.Lookup(ctx, req.Message, cache.Scope{UserID: req.UserID, ModelName: e.model})
	if err != nil {
		// Caching is best-effort and never fails a turn.
		if e.logger != nil {
			e.logger.Warn(ctx, "Cache lookup failed", "error", err)
		}
		return nil
	}
	if e.metrics != nil {
		switch {
		case match == nil:
			e.metrics.CacheLookups.WithLabelValues("miss").Inc()
		case match.Similarity >= 1.0:
			e.metrics.CacheLookups.WithLabelValues("exact_hit").Inc()
		default:
			e.metrics.CacheLookups.WithLabelValues("hit").Inc()
		}
	}
	return match
}

func (e *Engine) cacheStore(ctx context.Context, req *InvokeRequest, response string) {
	if e.cache == nil {
		return
	}
	err := e.cache.Put(ctx, req.Message, response, cache.Scope{UserID: req.UserID, ModelName: e.model}, e.ttlDays)
	if e.metrics != nil {
		switch {
		case err != nil:
			e.metrics.CacheStores.WithLabelValues("error").Inc()
		case !e.cache.Cacheable(req.Message):
			e.metrics.CacheStores.WithLabelValues("skipped").Inc()
		default:
			e.metrics.CacheStores.WithLabelValues("stored").Inc()
		}
	}
	if err != nil && e.logger != nil {
		e.logger.Warn(ctx, "Cache store failed", "error", err)
	}
}
