package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/martinemde/sitesmith/observability"
	"github.com/martinemde/sitesmith/unifiedllm"
)

// SessionState represents the lifecycle state of a run.
type SessionState string

const (
	StatePending   SessionState = "pending"
	StateRunning   SessionState = "running"
	StateCompleted SessionState = "completed"
	StateFailed    SessionState = "failed"
	StateCancelled SessionState = "cancelled"
)

// SessionConfig holds the collaborators and limits of a run.
type SessionConfig struct {
	Gateway           ModelGateway
	Tools             *ToolRegistry
	SystemInstruction string
	Observer          Observer
	Logger            *slog.Logger
	Metrics           *observability.Metrics

	// MaxToolRounds caps executed tool calls per run. Zero means unlimited.
	MaxToolRounds int
	// OutputCharLimit and OutputLineLimit bound the result text handed back
	// to the model. Zero disables the bound.
	OutputCharLimit int
	OutputLineLimit int
}

// Session is one run: a task, its conversation and the loop driving it.
// The session exclusively owns its conversation.
type Session struct {
	id           string
	cfg          SessionConfig
	conversation *Conversation

	mu        sync.Mutex
	state     SessionState
	err       error
	startedAt time.Time
	endedAt   time.Time
}

// NewSession creates a pending session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	if cfg.Tools == nil {
		cfg.Tools = NewToolRegistry()
	}
	id := uuid.NewString()
	cfg.Logger = cfg.Logger.With("run_id", id)
	return &Session{
		id:           id,
		cfg:          cfg,
		conversation: NewConversation(),
		state:        StatePending,
	}
}

// ID returns the run identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the run, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StartedAt returns when Run began, or the zero time.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// EndedAt returns when Run returned, or the zero time.
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Turn {
	return s.conversation.Turns()
}

// Run drives the loop for task until the model gives a final answer or a
// fatal error occurs. Fatal errors are narrated and returned. Cancellation
// of ctx is checked before every model call and every command.
func (s *Session) Run(ctx context.Context, task string) error {
	if strings.TrimSpace(task) == "" {
		return ErrEmptyTask
	}

	s.mu.Lock()
	if s.state != StatePending {
		s.mu.Unlock()
		return fmt.Errorf("session %s already started", s.id)
	}
	s.state = StateRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.cfg.Metrics.RunStarted()
	s.cfg.Logger.Info("run started", "task", task)

	rounds, err := s.loop(ctx, task)
	return s.finish(rounds, err)
}

func (s *Session) loop(ctx context.Context, task string) (int, error) {
	s.conversation.Append(NewUserTurn(task))
	tools := s.cfg.Tools.Definitions()
	rounds := 0

	for {
		if err := ctx.Err(); err != nil {
			return rounds, err
		}

		resp, err := s.cfg.Gateway.Generate(ctx, s.conversation.Turns(), tools, s.cfg.SystemInstruction)
		if err != nil {
			return rounds, err
		}

		calls := resp.ToolCallsFromResponse()
		if len(calls) == 0 {
			content := resp.ContentFragments()
			for _, part := range content {
				s.cfg.Observer.Notify(describeFragment(part))
			}
			s.conversation.Append(NewModelFinalTurn(content))
			return rounds, nil
		}

		// Only the first call of a response is executed.
		call := calls[0]
		if len(calls) > 1 {
			s.cfg.Logger.Warn("model returned several tool calls, executing the first",
				"executed", call.Name, "dropped", len(calls)-1)
		}

		if s.cfg.MaxToolRounds > 0 && rounds >= s.cfg.MaxToolRounds {
			return rounds, fmt.Errorf("%w (%d)", ErrToolRoundLimit, s.cfg.MaxToolRounds)
		}

		tool, err := s.cfg.Tools.Get(call.Name)
		if err != nil {
			return rounds, err
		}

		s.cfg.Observer.Notify("Model: " + describeArguments(call.Arguments))

		if err := ctx.Err(); err != nil {
			return rounds, err
		}
		result, err := tool.Handler(ctx, call.Arguments)
		if err != nil {
			return rounds, fmt.Errorf("%s: %w", call.Name, err)
		}
		rounds++

		s.conversation.Append(
			NewModelToolCallTurn(call),
			NewToolResultTurn(call.ID, call.Name, TruncateToolOutput(result, s.cfg.OutputCharLimit, s.cfg.OutputLineLimit)),
		)
	}
}

func (s *Session) finish(rounds int, err error) error {
	state := StateCompleted
	var abortErr *unifiedllm.AbortError
	switch {
	case err == nil:
		s.cfg.Logger.Info("run completed", "tool_rounds", rounds)
	case errors.Is(err, context.Canceled) || errors.As(err, &abortErr):
		state = StateCancelled
		s.cfg.Logger.Info("run cancelled", "tool_rounds", rounds)
		s.cfg.Observer.Notify("Run cancelled.")
	default:
		state = StateFailed
		s.cfg.Logger.Error("run failed", "tool_rounds", rounds, "error", err)
		s.cfg.Observer.Notify("Error: " + err.Error())
	}

	s.mu.Lock()
	s.state = state
	s.err = err
	s.endedAt = time.Now()
	s.mu.Unlock()

	s.cfg.Metrics.RunFinished(string(state), rounds)
	return err
}

// describeFragment renders one piece of a final answer for narration.
func describeFragment(part unifiedllm.ContentPart) string {
	if part.Kind == unifiedllm.ContentText && part.Text != "" {
		return part.Text
	}
	data, err := json.Marshal(part)
	if err != nil {
		return fmt.Sprintf("%+v", part)
	}
	return string(data)
}
