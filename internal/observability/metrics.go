package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turn processing latency and routing decisions
//   - Semantic cache effectiveness (hits, misses, stores)
//   - Agent handoff flow and guard rejections
//   - LLM request performance and failures
//   - Tool execution patterns
//
// Usage:
//
//	metrics, registry := observability.NewMetrics()
//	metrics.CacheLookups.WithLabelValues("hit").Inc()
type Metrics struct {
	// TurnDuration measures end-to-end turn latency in seconds.
	// Labels: agent (router|consultant|solution_architect|implementation)
	TurnDuration *prometheus.HistogramVec

	// RouterDecisions counts routing outcomes.
	// Labels: agent, fallback (true|false)
	RouterDecisions *prometheus.CounterVec

	// CacheLookups counts semantic cache lookups by outcome.
	// Labels: outcome (hit|exact_hit|miss|skip)
	CacheLookups *prometheus.CounterVec

	// CacheStores counts cache writes by outcome.
	// Labels: outcome (stored|skipped|error)
	CacheStores *prometheus.CounterVec

	// Handoffs counts handoff attempts by outcome.
	// Labels: from, to, outcome (accepted|rejected)
	Handoffs *prometheus.CounterVec

	// StepLimitHits counts turns where an agent exhausted its step budget.
	// Labels: agent
	StepLimitHits *prometheus.CounterVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequests counts LLM requests by provider and status.
	// Labels: provider, model, status (success|error)
	LLMRequests *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutions *prometheus.CounterVec
}

// NewMetrics creates all metrics against a private registry and returns it
// alongside them. A private registry keeps tests from colliding on duplicate
// registration.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snconsultant_turn_duration_seconds",
				Help:    "End-to-end duration of a conversation turn in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"agent"},
		),
		RouterDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snconsultant_router_decisions_total",
				Help: "Routing outcomes by target agent",
			},
			[]string{"agent", "fallback"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snconsultant_cache_lookups_total",
				Help: "Semantic cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		CacheStores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snconsultant_cache_stores_total",
				Help: "Semantic cache store attempts by outcome",
			},
			[]string{"outcome"},
		),
		Handoffs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snconsultant_handoffs_total",
				Help: "Agent handoff attempts by source, target and outcome",
			},
			[]string{"from", "to", "outcome"},
		),
		StepLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snconsultant_step_limit_hits_total",
				Help: "Turns where an agent exhausted its per-turn step budget",
			},
			[]string{"agent"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snconsultant_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snconsultant_llm_requests_total",
				Help: "LLM requests by provider, model and status",
			},
			[]string{"provider", "model", "status"},
		),
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snconsultant_tool_executions_total",
				Help: "Tool invocations by name and status",
			},
			[]string{"tool_name", "status"},
		),
	}
	return m, reg
}
