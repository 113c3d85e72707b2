package agentloop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/martinemde/sitesmith/observability"
)

// DefaultCommandTimeout bounds a single command.
const DefaultCommandTimeout = 2 * time.Minute

// CommandExecutor runs one shell command and always returns a text result.
// Failures are reported in the text, never as an error.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) string
}

// ExecResult holds the raw outcome of a command.
type ExecResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// LocalExecutor runs commands on the host inside a working directory.
type LocalExecutor struct {
	workDir  string
	timeout  time.Duration
	shell    []string
	observer Observer
	logger   *slog.Logger
	metrics  *observability.Metrics

	protected []string
}

// ExecutorOption configures a LocalExecutor.
type ExecutorOption func(*LocalExecutor)

// WithCommandTimeout bounds each command. Zero disables the bound.
func WithCommandTimeout(d time.Duration) ExecutorOption {
	return func(e *LocalExecutor) { e.timeout = d }
}

// WithExecutorObserver sets where command narration goes.
func WithExecutorObserver(o Observer) ExecutorOption {
	return func(e *LocalExecutor) { e.observer = o }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *LocalExecutor) { e.logger = l }
}

// WithExecutorMetrics sets the metrics sink.
func WithExecutorMetrics(m *observability.Metrics) ExecutorOption {
	return func(e *LocalExecutor) { e.metrics = m }
}

// WithProtectedPaths names paths ResetWorkDir must never delete, such as the
// public dir and the config file.
func WithProtectedPaths(paths ...string) ExecutorOption {
	return func(e *LocalExecutor) { e.protected = append(e.protected, paths...) }
}

// NewLocalExecutor creates an executor rooted at workDir.
func NewLocalExecutor(workDir string, opts ...ExecutorOption) *LocalExecutor {
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}
	e := &LocalExecutor{
		workDir:  workDir,
		timeout:  DefaultCommandTimeout,
		shell:    defaultShell(),
		observer: NopObserver{},
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd.exe", "/c"}
	}
	if _, err := exec.LookPath("bash"); err == nil {
		return []string{"bash", "-c"}
	}
	return []string{"/bin/sh", "-c"}
}

// WorkDir returns the directory commands run in.
func (e *LocalExecutor) WorkDir() string { return e.workDir }

// ResetWorkDir deletes and recreates the working directory so nothing from a
// previous run survives. It refuses any directory CheckWorkDir rejects.
func (e *LocalExecutor) ResetWorkDir() error {
	dir := filepath.Clean(e.workDir)
	if err := CheckWorkDir(dir, e.protected...); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("reset work dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("reset work dir: %w", err)
	}
	return nil
}

// ErrUnsafeWorkDir is returned for a work dir whose reset would delete
// something outside the generated site.
var ErrUnsafeWorkDir = errors.New("unsafe work dir")

// CheckWorkDir rejects a work dir that is the filesystem root, the home
// directory, the current directory or an ancestor of any of them. It also
// rejects one equal to or containing a protected path.
func CheckWorkDir(dir string, protected ...string) error {
	target := resolvePath(dir)
	if target == "" {
		return fmt.Errorf("%w: %q", ErrUnsafeWorkDir, dir)
	}
	if target == filepath.VolumeName(target)+string(filepath.Separator) {
		return fmt.Errorf("%w: %q is the root directory", ErrUnsafeWorkDir, dir)
	}
	if home, err := os.UserHomeDir(); err == nil && containsPath(target, resolvePath(home)) {
		return fmt.Errorf("%w: %q contains the home directory", ErrUnsafeWorkDir, dir)
	}
	if cwd, err := os.Getwd(); err == nil && containsPath(target, resolvePath(cwd)) {
		return fmt.Errorf("%w: %q contains the current directory", ErrUnsafeWorkDir, dir)
	}
	for _, p := range protected {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if containsPath(target, resolvePath(p)) {
			return fmt.Errorf("%w: %q contains %q", ErrUnsafeWorkDir, dir, p)
		}
	}
	return nil
}

// resolvePath returns p as an absolute path with symlinks resolved where it
// exists.
func resolvePath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// containsPath reports whether p is dir or lies beneath it.
func containsPath(dir, p string) bool {
	if dir == "" || p == "" {
		return false
	}
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Execute runs command and narrates the attempt and its outcome. Success
// returns stdout, or "Executed" when there is none; any failure returns
// "Error: <reason>".
func (e *LocalExecutor) Execute(ctx context.Context, command string) string {
	e.observer.Notify("Executing: " + command)

	res, err := e.Run(ctx, command)
	switch {
	case err != nil:
		e.metrics.RecordCommand("failure", 0)
		e.logger.Warn("command failed to start", "command", command, "error", err)
		e.observer.Notify("Exception: " + err.Error())
		return "Error: " + err.Error()

	case res.TimedOut:
		e.metrics.RecordCommand("timeout", res.Duration)
		msg := fmt.Sprintf("command timed out after %s", e.timeout)
		e.logger.Warn("command timed out", "command", command, "timeout", e.timeout)
		e.observer.Notify("Exception: " + msg)
		return "Error: " + msg

	case res.ExitCode != 0:
		e.metrics.RecordCommand("failure", res.Duration)
		msg := fmt.Sprintf("command failed with exit code %d", res.ExitCode)
		if detail := strings.TrimSpace(res.Stderr); detail != "" {
			msg += ": " + detail
		}
		e.logger.Info("command exited non-zero", "command", command, "exit_code", res.ExitCode)
		e.observer.Notify("Exception: " + msg)
		return "Error: " + msg
	}

	e.metrics.RecordCommand("success", res.Duration)
	e.logger.Debug("command succeeded", "command", command, "duration", res.Duration)
	if res.Stderr != "" {
		e.observer.Notify("Error: " + res.Stderr)
	} else {
		e.observer.Notify("Output: " + res.Stdout)
	}
	if res.Stdout == "" {
		return "Executed"
	}
	return res.Stdout
}

// Run executes command and reports its raw outcome. The error is non-nil
// only when the command could not be started or the context was cancelled.
func (e *LocalExecutor) Run(ctx context.Context, command string) (*ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), e.shell[1:]...), command)
	cmd := exec.CommandContext(ctx, e.shell[0], args...)
	cmd.Dir = e.workDir
	cmd.Env = filterEnvironment()
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
		case ctx.Err() != nil:
			return nil, fmt.Errorf("command cancelled: %w", ctx.Err())
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, err
		}
	}
	return result, nil
}

// sensitiveEnvPatterns are case-insensitive suffixes for environment variables
// that should be excluded by default.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// filterEnvironment returns the process environment minus credentials.
func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}
