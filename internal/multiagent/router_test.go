package multiagent

import (
	"context"
	"errors"
	"testing"
)

func TestRouterPicksClassifiedAgent(t *testing.T) {
	tests := []struct {
		name  string
		agent string
	}{
		{"consultant", AgentConsultant},
		{"solution architect", AgentArchitect},
		{"implementation", AgentImplementation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{routeAgent: tt.agent}
			router := NewRouter(provider, nil, nil)

			got, _ := router.Route(context.Background(), "some request")
			if got != tt.agent {
				t.Errorf("Route() = %q, want %q", got, tt.agent)
			}
		})
	}
}

func TestRouterFallsBackToConsultant(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
	}{
		{"classification error", &fakeProvider{routeErr: errors.New("timeout")}},
		{"unknown agent name", &fakeProvider{routeAgent: "project_manager"}},
		{"empty agent name", &fakeProvider{routeAgent: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(tt.provider, nil, nil)

			got, rationale := router.Route(context.Background(), "some request")
			if got != AgentConsultant {
				t.Errorf("Route() = %q, want consultant fallback", got)
			}
			if rationale == "" {
				t.Error("fallback should still carry a rationale for observability")
			}
		})
	}
}
