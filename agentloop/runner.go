package agentloop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/martinemde/sitesmith/observability"
)

// Workspace is the artifact directory commands write into.
type Workspace interface {
	WorkDir() string
	ResetWorkDir() error
}

// RunnerStatus is a snapshot of the runner.
type RunnerStatus struct {
	State     string      `json:"state"` // "idle" or "running"
	RunID     string      `json:"run_id,omitempty"`
	Task      string      `json:"task,omitempty"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	LastRun   *RunOutcome `json:"last_run,omitempty"`
}

// RunOutcome describes a finished run.
type RunOutcome struct {
	RunID   string       `json:"run_id"`
	State   SessionState `json:"state"`
	Error   string       `json:"error,omitempty"`
	EndedAt time.Time    `json:"ended_at"`
}

// Runner owns at most one active run per process. A new submission cancels
// the run in flight, waits for it to stop, resets the workspace and starts a
// fresh session, so commands from two runs never overlap.
type Runner struct {
	session   SessionConfig
	workspace Workspace
	observer  Observer
	logger    *slog.Logger

	submitMu sync.Mutex // serializes Submit and Close

	mu      sync.Mutex
	base    context.Context
	stop    context.CancelFunc
	closed  bool
	current *Session
	task    string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRunner creates a runner. The session config is used as a template for
// every run; its Observer is also used for submission narration.
func NewRunner(session SessionConfig, workspace Workspace) *Runner {
	if session.Observer == nil {
		session.Observer = NopObserver{}
	}
	if session.Logger == nil {
		session.Logger = observability.NopLogger()
	}
	base, stop := context.WithCancel(context.Background())
	return &Runner{
		session:   session,
		workspace: workspace,
		observer:  session.Observer,
		logger:    session.Logger,
		base:      base,
		stop:      stop,
	}
}

// Submit starts a run for task and returns its id without waiting for it.
// An empty task is rejected with ErrEmptyTask before anything happens.
func (r *Runner) Submit(task string) (string, error) {
	if strings.TrimSpace(task) == "" {
		return "", ErrEmptyTask
	}

	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRunnerClosed
	}
	prevCancel, prevDone := r.cancel, r.done
	r.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	r.observer.Notify("Prompt received: " + task)
	if err := r.workspace.ResetWorkDir(); err != nil {
		r.logger.Error("workspace reset failed", "dir", r.workspace.WorkDir(), "error", err)
		r.observer.Notify("Error: " + err.Error())
		return "", fmt.Errorf("prepare workspace: %w", err)
	}

	session := NewSession(r.session)
	ctx, cancel := context.WithCancel(r.base)
	done := make(chan struct{})

	r.mu.Lock()
	r.current, r.task, r.cancel, r.done = session, task, cancel, done
	r.mu.Unlock()

	r.logger.Info("run submitted", "run_id", session.ID())
	go func() {
		defer close(done)
		defer cancel()
		_ = session.Run(ctx, task)
	}()
	return session.ID(), nil
}

// Current returns the latest session, or nil before the first submission.
func (r *Runner) Current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Status reports whether a run is in flight and how the last one ended.
func (r *Runner) Status() RunnerStatus {
	r.mu.Lock()
	session, task := r.current, r.task
	r.mu.Unlock()

	if session == nil {
		return RunnerStatus{State: "idle"}
	}

	switch session.State() {
	case StatePending, StateRunning:
		started := session.StartedAt()
		st := RunnerStatus{State: "running", RunID: session.ID(), Task: task}
		if !started.IsZero() {
			st.StartedAt = &started
		}
		return st
	default:
		outcome := &RunOutcome{
			RunID:   session.ID(),
			State:   session.State(),
			EndedAt: session.EndedAt(),
		}
		if err := session.Err(); err != nil {
			outcome.Error = err.Error()
		}
		return RunnerStatus{State: "idle", LastRun: outcome}
	}
}

// Wait blocks until the current run finishes or ctx is done, and returns
// the run's error.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	session, done := r.current, r.done
	r.mu.Unlock()
	if session == nil {
		return nil
	}
	select {
	case <-done:
		return session.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the run in flight, waits for it and rejects later submissions.
func (r *Runner) Close() error {
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	done := r.done
	r.mu.Unlock()

	r.stop()
	if done != nil {
		<-done
	}
	return nil
}
