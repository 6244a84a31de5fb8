// Package providers implements LLM provider integrations for the consulting
// engine.
//
// The Anthropic provider wraps the official SDK behind the agent.LLMProvider
// interface: a single-shot completion call with bound tools, and a structured
// classification call used by the router. Retries with exponential backoff
// are applied to transient failures.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mailsabhi2007/SNConsultant/internal/agent"
	"github.com/mailsabhi2007/SNConsultant/pkg/models"
)

// DefaultModel is used when a request does not specify a model.
const DefaultModel = "claude-sonnet-4-20250514"

// ClassifierModel is a faster, cheaper model used for routing decisions.
const ClassifierModel = "claude-3-5-haiku-20241022"

// AnthropicProvider implements agent.LLMProvider for Anthropic's Claude API.
//
// Thread Safety:
// AnthropicProvider is safe for concurrent use across multiple goroutines.
type AnthropicProvider struct {
	client          anthropic.Client
	maxRetries      int
	retryDelay      time.Duration
	defaultModel    string
	classifierModel string
	maxTokens       int
}

var _ agent.LLMProvider = (*AnthropicProvider)(nil)

// AnthropicConfig holds configuration for creating an AnthropicProvider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string

	// BaseURL overrides the default Anthropic API base URL.
	BaseURL string

	// MaxRetries sets the maximum retry attempts for transient failures.
	// Default: 3.
	MaxRetries int

	// RetryDelay is the base delay between retry attempts. Actual delay
	// uses exponential backoff. Default: 1 second.
	RetryDelay time.Duration

	// DefaultModel is used when a request does not specify a model.
	DefaultModel string

	// ClassifierModel is used for Classify calls. Default: ClassifierModel.
	ClassifierModel string

	// MaxTokens is the default response token cap. Default: 4096.
	MaxTokens int
}

// NewAnthropicProvider creates a new Anthropic provider instance.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.ClassifierModel == "" {
		cfg.ClassifierModel = ClassifierModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The SDK retries internally as well; keep a single layer.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:          anthropic.NewClient(opts...),
		maxRetries:      cfg.MaxRetries,
		retryDelay:      cfg.RetryDelay,
		defaultModel:    cfg.DefaultModel,
		classifierModel: cfg.ClassifierModel,
		maxTokens:       cfg.MaxTokens,
	}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends a completion request and returns the model's full reply.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.newMessageWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	completion := &agent.Completion{
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
				ID:    v.ID,
				Name:  v.Name,
				Input: json.RawMessage(v.JSON.Input.Raw()),
			})
		}
	}
	completion.Text = text.String()
	return completion, nil
}

// Classify runs a forced-tool structured output call: the decision schema is
// presented as the only tool and tool choice is pinned to it, so the model
// must answer in the schema's shape. The tool input is unmarshaled into out.
func (p *AnthropicProvider) Classify(ctx context.Context, system, prompt string, schema json.RawMessage, out any) error {
	var inputSchema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(schema, &inputSchema); err != nil {
		return fmt.Errorf("anthropic: invalid decision schema: %w", err)
	}

	const decisionTool = "decision"
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.classifierModel),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        decisionTool,
				Description: anthropic.String("Record the classification decision."),
				InputSchema: inputSchema,
			},
		}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: decisionTool},
		},
		Temperature: anthropic.Float(0),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	msg, err := p.newMessageWithRetry(ctx, params)
	if err != nil {
		return err
	}

	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.ToolUseBlock); ok && v.Name == decisionTool {
			if err := json.Unmarshal([]byte(v.JSON.Input.Raw()), out); err != nil {
				return fmt.Errorf("anthropic: malformed decision output: %w", err)
			}
			return nil
		}
	}
	return errors.New("anthropic: model returned no decision")
}

// newMessageWithRetry issues the API call, retrying transient failures with
// exponential backoff.
func (p *AnthropicProvider) newMessageWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.retryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		msg, err := p.client.Messages.New(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("anthropic: completion failed: %w", lastErr)
}

// isRetryable reports whether an API error is worth retrying: rate limits,
// server errors, and transport-level failures.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "EOF")
}

// buildParams converts an agent.CompletionRequest to SDK parameters.
func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

// convertMessages converts internal messages to Anthropic's message format.
// System-role messages are folded into user turns as bracketed notes; the
// request-level system prompt is the only true system channel.
func convertMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		switch msg.Role {
		case "system":
			content = append(content, anthropic.NewTextBlock("[context note]\n"+msg.Content))
			result = append(result, anthropic.NewUserMessage(content...))
			continue
		case "tool":
			for _, tr := range msg.ToolResults {
				content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			if len(content) == 0 {
				return nil, errors.New("anthropic: tool message without tool results")
			}
			result = append(result, anthropic.NewUserMessage(content...))
			continue
		}

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: invalid tool call input for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	if len(result) == 0 {
		return nil, errors.New("anthropic: no messages to send")
	}
	return result, nil
}

// convertTools converts internal tool definitions to Anthropic API format.
func convertTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", tool.Name(), err)
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name(),
				Description: anthropic.String(tool.Description()),
				InputSchema: schema,
			},
		})
	}
	return result, nil
}
