package agentloop

import (
	"errors"

	"github.com/martinemde/sitesmith/unifiedllm"
)

var (
	// ErrEmptyTask rejects a submission with no task text.
	ErrEmptyTask = errors.New("missing prompt")

	// ErrEmptyConversation guards against a model call with no turns.
	ErrEmptyConversation = errors.New("conversation is empty")

	// ErrUnknownTool is returned when the model names a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned when tool arguments fail to decode or validate.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrToolRoundLimit ends a run that reached its configured command budget.
	ErrToolRoundLimit = errors.New("tool round limit reached")

	// ErrRunnerClosed rejects submissions after Close.
	ErrRunnerClosed = errors.New("runner is closed")

	// ErrRetriesExhausted is re-exported so callers can test for it without
	// importing unifiedllm.
	ErrRetriesExhausted = unifiedllm.ErrRetriesExhausted
)
