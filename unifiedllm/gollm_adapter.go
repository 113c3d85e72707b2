package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter.
// gollm takes a single prompt, so the conversation is flattened into
// labelled lines and tool calls are recovered from JSON in the reply.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If apiKey is empty, gollm will attempt to read it from environment variables.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		maxTokens:   8192,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		model = DefaultModel(provider)
	}
	if model == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("no model configured for provider %q", provider),
		}}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries happen one layer up
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("create gollm client for %s", provider),
			Cause:   err,
		}}
	}

	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
	}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider, model string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		llm:      llm,
		model:    model,
	}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: ctx.Err()}}
		}
		return nil, a.translateError(err)
	}

	return a.buildResponse(req, text), nil
}

// translateRequest flattens a unified Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt strings.Builder
	var lines []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt.WriteString(msg.TextContent())
			systemPrompt.WriteString("\n")
		case RoleUser:
			lines = append(lines, msg.TextContent())
		case RoleAssistant:
			for _, part := range msg.Content {
				switch part.Kind {
				case ContentText:
					if part.Text != "" {
						lines = append(lines, "[Assistant]: "+part.Text)
					}
				case ContentToolCall:
					if part.ToolCall != nil {
						lines = append(lines, fmt.Sprintf("[Tool Call] %s %s", part.ToolCall.Name, string(part.ToolCall.Arguments)))
					}
				}
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				prefix := "[Tool Result]"
				if part.ToolResult.IsError {
					prefix = "[Tool Error]"
				}
				lines = append(lines, fmt.Sprintf("%s %s: %s", prefix, part.ToolResult.Name, part.ToolResult.Content))
			}
		}
	}

	var promptOpts []gollm.PromptOption
	if s := strings.TrimSpace(systemPrompt.String()); s != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(s, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	return gollm.NewPrompt(strings.Join(lines, "\n"), promptOpts...)
}

func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	calls, rest := parseToolCalls(text)

	var parts []ContentPart
	if rest != "" {
		parts = append(parts, TextPart(rest))
	}
	for _, tc := range calls {
		parts = append(parts, ContentPart{Kind: ContentToolCall, ToolCall: &tc})
	}

	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	// gollm does not report usage; these are rough estimates.
	in := estimateTokens(req)
	out := len(text) / 4
	return &Response{
		ID:       "resp_" + uuid.NewString()[:8],
		Model:    model,
		Provider: a.provider,
		Message: Message{
			Role:    RoleAssistant,
			Content: parts,
		},
		FinishReason: finish,
		Usage: Usage{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  in + out,
		},
	}
}

type rawToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// parseToolCalls extracts tool calls that gollm returns as JSON in the
// reply text, either {"tool_calls": [...]} or a bare [{"name": ...}] array.
// It returns the calls and the text preceding the JSON.
func parseToolCalls(text string) ([]ToolCallData, string) {
	start := strings.Index(text, `{"tool_calls"`)
	wrapped := start != -1
	if !wrapped {
		start = strings.Index(text, `[{"name"`)
	}
	if start == -1 {
		return nil, strings.TrimSpace(text)
	}

	var raw []rawToolCall
	payload := []byte(strings.TrimSpace(text[start:]))
	if wrapped {
		var envelope struct {
			ToolCalls []rawToolCall `json:"tool_calls"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, strings.TrimSpace(text)
		}
		raw = envelope.ToolCalls
	} else if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, strings.TrimSpace(text)
	}

	calls := make([]ToolCallData, 0, len(raw))
	for _, rc := range raw {
		name, args := rc.Name, rc.Arguments
		if rc.Function != nil {
			name, args = rc.Function.Name, rc.Function.Arguments
		}
		// OpenAI encodes arguments as a JSON string.
		var encoded string
		if json.Unmarshal(args, &encoded) == nil {
			args = json.RawMessage(encoded)
		}
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		id := rc.ID
		if id == "" {
			id = "call_" + uuid.NewString()[:8]
		}
		calls = append(calls, ToolCallData{ID: id, Name: name, Arguments: args})
	}
	return calls, strings.TrimSpace(text[:start])
}

// translateError classifies a gollm error by its message, since gollm does
// not expose status codes.
func (a *GollmAdapter) translateError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	status := 0
	switch {
	case containsAny(lower, "401", "unauthorized", "invalid key", "invalid api key"):
		status = 401
	case containsAny(lower, "403", "forbidden"):
		status = 403
	case containsAny(lower, "404", "not found"):
		status = 404
	case containsAny(lower, "429", "rate limit", "resource exhausted"):
		status = 429
	case containsAny(lower, "503", "unavailable", "overloaded"):
		status = 503
	case containsAny(lower, "context length", "too many tokens"):
		status = 413
	case containsAny(lower, "500", "internal server"):
		status = 500
	case containsAny(lower, "content filter", "safety"):
		return &ContentFilterError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider,
		}}
	case containsAny(lower, "timeout", "connection refused", "no such host"):
		return &NetworkError{SDKError: SDKError{Message: msg, Cause: err}}
	}
	return ErrorFromStatusCode(status, msg, a.provider, "", err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.Kind == ContentText {
				total += len(part.Text) / 4
			}
		}
	}
	if total == 0 {
		total = 10
	}
	return total
}
