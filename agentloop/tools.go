package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/martinemde/sitesmith/unifiedllm"
)

// ExecuteCommandToolName is the only tool advertised to the model.
const ExecuteCommandToolName = "ExecuteCommand"

// ToolHandler runs a tool with raw JSON arguments. A returned error is fatal
// for the run; recoverable failures belong in the result string.
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (string, error)

// RegisteredTool pairs a tool definition with its handler.
type RegisteredTool struct {
	Definition unifiedllm.ToolDefinition
	Handler    ToolHandler
}

// ArgumentValidator is implemented by typed argument structs.
type ArgumentValidator interface {
	Validate() error
}

// TypedHandler adapts a handler taking a decoded argument struct. Malformed
// JSON and failed validation yield ErrInvalidArguments.
func TypedHandler[A any, P interface {
	*A
	ArgumentValidator
}](fn func(ctx context.Context, args A) (string, error)) ToolHandler {
	return func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args A
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
			}
		}
		if err := P(&args).Validate(); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
		return fn(ctx, args)
	}
}

// ToolRegistry is a closed set of tools keyed by name.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	order []string
	mu    sync.RWMutex
}

// NewToolRegistry creates a registry holding the given tools.
func NewToolRegistry(tools ...RegisteredTool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]*RegisteredTool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Definition.Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = &tool
}

// Get returns a registered tool by name. Unknown names yield ErrUnknownTool.
func (r *ToolRegistry) Get(name string) (*RegisteredTool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return tool, nil
}

// Definitions returns all tool definitions in registration order.
func (r *ToolRegistry) Definitions() []unifiedllm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]unifiedllm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ExecuteCommandArgs are the arguments of the ExecuteCommand tool.
type ExecuteCommandArgs struct {
	Command string `json:"command"`
}

// Validate requires a non-blank command.
func (a *ExecuteCommandArgs) Validate() error {
	if strings.TrimSpace(a.Command) == "" {
		return errors.New(`missing required field "command"`)
	}
	return nil
}

// ExecuteCommandDefinition is the schema advertised to the model.
func ExecuteCommandDefinition() unifiedllm.ToolDefinition {
	return unifiedllm.ToolDefinition{
		Name:        ExecuteCommandToolName,
		Description: "Execute a terminal command (create/edit folders and files)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "A single terminal command, such as mkdir or a heredoc writing a file",
				},
			},
			"required": []string{"command"},
		},
	}
}

// NewExecuteCommandTool binds the ExecuteCommand schema to an executor.
func NewExecuteCommandTool(executor CommandExecutor) RegisteredTool {
	return RegisteredTool{
		Definition: ExecuteCommandDefinition(),
		Handler: TypedHandler(func(ctx context.Context, args ExecuteCommandArgs) (string, error) {
			return executor.Execute(ctx, args.Command), nil
		}),
	}
}

// describeArguments renders tool arguments for narration. A lone string
// field is shown bare; anything else is shown as JSON.
func describeArguments(raw json.RawMessage) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil && len(fields) == 1 {
		for _, v := range fields {
			var s string
			if json.Unmarshal(v, &s) == nil {
				return s
			}
		}
	}
	return string(raw)
}
