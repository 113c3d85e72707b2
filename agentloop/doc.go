// Package agentloop drives a model through a task one shell command at a
// time.
//
// A Session owns the conversation of one run. On every step it replays the
// whole conversation to a ModelGateway together with the ExecuteCommand
// schema. When the model asks for a command, the first requested call is run
// through the ToolRegistry and its result is appended; when the model answers
// without a tool call, the answer is narrated and the run ends. Every step is
// narrated to an Observer.
//
// The Runner keeps at most one run alive: a new submission cancels the old
// run, resets the artifact directory and starts over.
//
// # Quick Start
//
//	executor := agentloop.NewLocalExecutor("generated-site", agentloop.WithExecutorObserver(hub))
//	gateway := agentloop.NewLLMGateway(client, agentloop.GatewayConfig{Provider: "gemini", Observer: hub})
//	runner := agentloop.NewRunner(agentloop.SessionConfig{
//	    Gateway:           gateway,
//	    Tools:             agentloop.NewToolRegistry(agentloop.NewExecuteCommandTool(executor)),
//	    SystemInstruction: agentloop.BuildSystemInstruction(agentloop.HostEnvironment(executor.WorkDir())),
//	    Observer:          hub,
//	}, executor)
//
//	runID, err := runner.Submit("A landing page for a bakery")
package agentloop
