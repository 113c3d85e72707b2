package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/martinemde/sitesmith/unifiedllm"
)

type gatewayStep struct {
	resp *unifiedllm.Response
	err  error
}

// scriptedGateway replays a fixed list of responses.
type scriptedGateway struct {
	mu        sync.Mutex
	steps     []gatewayStep
	calls     int
	histories [][]Turn
	tools     [][]unifiedllm.ToolDefinition
	systems   []string
}

func newScriptedGateway(steps ...gatewayStep) *scriptedGateway {
	return &scriptedGateway{steps: steps}
}

func (g *scriptedGateway) Generate(ctx context.Context, history []Turn, tools []unifiedllm.ToolDefinition, system string) (*unifiedllm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.histories = append(g.histories, history)
	g.tools = append(g.tools, tools)
	g.systems = append(g.systems, system)
	if g.calls >= len(g.steps) {
		return nil, errors.New("script exhausted")
	}
	step := g.steps[g.calls]
	g.calls++
	return step.resp, step.err
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// blockingGateway waits for cancellation on every call.
type blockingGateway struct {
	started chan struct{}
}

func (g *blockingGateway) Generate(ctx context.Context, history []Turn, tools []unifiedllm.ToolDefinition, system string) (*unifiedllm.Response, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, &unifiedllm.AbortError{SDKError: unifiedllm.SDKError{Message: "cancelled", Cause: ctx.Err()}}
}

// fakeExecutor returns canned results and records commands.
type fakeExecutor struct {
	mu       sync.Mutex
	result   string
	commands []string
}

func (e *fakeExecutor) Execute(ctx context.Context, command string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, command)
	return e.result
}

// fakeCompleter stands in for *unifiedllm.Client.
type fakeCompleter struct {
	mu    sync.Mutex
	errs  []error
	resp  *unifiedllm.Response
	calls int
	reqs  []unifiedllm.Request
}

func (c *fakeCompleter) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	c.calls++
	if c.calls <= len(c.errs) {
		return nil, c.errs[c.calls-1]
	}
	return c.resp, nil
}

func toolCallResponse(id, command string) *unifiedllm.Response {
	args, _ := json.Marshal(map[string]string{"command": command})
	return &unifiedllm.Response{
		Message: unifiedllm.Message{
			Role:    unifiedllm.RoleAssistant,
			Content: []unifiedllm.ContentPart{unifiedllm.ToolCallPart(id, ExecuteCommandToolName, args)},
		},
	}
}

func finalResponse(texts ...string) *unifiedllm.Response {
	resp := &unifiedllm.Response{Message: unifiedllm.Message{Role: unifiedllm.RoleAssistant}}
	for _, t := range texts {
		resp.Message.Content = append(resp.Message.Content, unifiedllm.TextPart(t))
	}
	return resp
}

func overload(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = unifiedllm.ErrorFromStatusCode(503, fmt.Sprintf("overloaded #%d", i+1), "gemini", "UNAVAILABLE", nil)
	}
	return errs
}
