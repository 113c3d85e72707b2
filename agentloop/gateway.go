package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/martinemde/sitesmith/observability"
	"github.com/martinemde/sitesmith/unifiedllm"
)

// ModelGateway produces the next step for a conversation: tool calls or a
// final answer. Implementations are stateless between calls.
type ModelGateway interface {
	Generate(ctx context.Context, history []Turn, tools []unifiedllm.ToolDefinition, system string) (*unifiedllm.Response, error)
}

// Completer is the slice of *unifiedllm.Client the gateway needs.
type Completer interface {
	Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error)
}

// GatewayConfig configures an LLMGateway.
type GatewayConfig struct {
	Provider string
	Model    string
	Retry    unifiedllm.RetryPolicy
	Observer Observer
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// LLMGateway calls a provider through a Completer and retries while the
// provider reports overload.
type LLMGateway struct {
	client Completer
	cfg    GatewayConfig
}

// NewLLMGateway creates a gateway. A zero Retry policy means the default one.
func NewLLMGateway(client Completer, cfg GatewayConfig) *LLMGateway {
	if cfg.Retry.MaxAttempts == 0 {
		defaults := unifiedllm.DefaultRetryPolicy()
		defaults.Sleep = cfg.Retry.Sleep
		defaults.Float64 = cfg.Retry.Float64
		cfg.Retry = defaults
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	return &LLMGateway{client: client, cfg: cfg}
}

// Generate sends the whole history with the tool schema and system
// instruction. Overload is retried according to the policy, each retry
// narrated; any other failure is returned immediately and left for the
// session to report.
func (g *LLMGateway) Generate(ctx context.Context, history []Turn, tools []unifiedllm.ToolDefinition, system string) (*unifiedllm.Response, error) {
	if len(history) == 0 {
		return nil, ErrEmptyConversation
	}

	messages := make([]unifiedllm.Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, unifiedllm.SystemMessage(system))
	}
	messages = append(messages, ConvertHistoryToMessages(history)...)

	req := unifiedllm.Request{
		Provider: g.cfg.Provider,
		Model:    g.cfg.Model,
		Messages: messages,
		ToolDefs: tools,
	}
	if len(tools) > 0 {
		req.ToolChoice = &unifiedllm.ToolChoice{Mode: "auto"}
	}

	policy := g.cfg.Retry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		g.cfg.Metrics.RecordModelRetry(g.cfg.Provider)
		g.cfg.Logger.Warn("model overloaded, retrying",
			"status", unifiedllm.StatusCode(err),
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		g.cfg.Observer.Notify(fmt.Sprintf("Model busy (%d). Retrying in %ds... (attempt %d/%d)",
			unifiedllm.StatusCode(err), int(delay/time.Second), attempt, policy.MaxAttempts))
	}

	resp, err := unifiedllm.Retry(ctx, policy, func(ctx context.Context) (*unifiedllm.Response, error) {
		return g.client.Complete(ctx, req)
	})
	if err != nil {
		var abortErr *unifiedllm.AbortError
		if status := unifiedllm.StatusCode(err); status != 0 &&
			!errors.Is(err, unifiedllm.ErrRetriesExhausted) && !errors.As(err, &abortErr) {
			g.cfg.Logger.Error("model error", "status", status, "error", err)
		}
		return nil, err
	}
	return resp, nil
}
