package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// decisionResponse is a minimal Messages API reply carrying one tool_use
// block for the forced decision tool.
func decisionResponse(w http.ResponseWriter, input string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{
		"id": "msg_test",
		"type": "message",
		"role": "assistant",
		"model": "test",
		"stop_reason": "tool_use",
		"content": [{"type": "tool_use", "id": "tu_1", "name": "decision", "input": ` + input + `}],
		"usage": {"input_tokens": 1, "output_tokens": 1}
	}`))
}

func newTestProvider(t *testing.T, cfg AnthropicConfig, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.APIKey = "test-key"
	cfg.BaseURL = server.URL
	provider, err := NewAnthropicProvider(cfg)
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	return provider
}

func TestClassifyUsesConfiguredModel(t *testing.T) {
	tests := []struct {
		name            string
		classifierModel string
		wantModel       string
	}{
		{"configured model", "claude-3-5-haiku-custom", "claude-3-5-haiku-custom"},
		{"default when unset", "", ClassifierModel},
	}

	schema := json.RawMessage(`{"type": "object", "properties": {"agent": {"type": "string"}}}`)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotModel string
			provider := newTestProvider(t, AnthropicConfig{ClassifierModel: tt.classifierModel},
				func(w http.ResponseWriter, r *http.Request) {
					var body struct {
						Model string `json:"model"`
					}
					if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
						t.Errorf("decode request: %v", err)
					}
					gotModel = body.Model
					decisionResponse(w, `{"agent": "consultant"}`)
				})

			var decision struct {
				Agent string `json:"agent"`
			}
			if err := provider.Classify(context.Background(), "system", "prompt", schema, &decision); err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if gotModel != tt.wantModel {
				t.Errorf("request model = %q, want %q", gotModel, tt.wantModel)
			}
			if decision.Agent != "consultant" {
				t.Errorf("decision agent = %q, want consultant", decision.Agent)
			}
		})
	}
}
