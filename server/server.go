// Package server exposes the HTTP surface: task submission, the WebSocket
// observer link, run status, static pages and the generated-site preview.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/martinemde/sitesmith/agentloop"
	"github.com/martinemde/sitesmith/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Response bodies of /start.
const (
	MissingPromptMessage = "Missing prompt"
	StartedMessage       = "Started generating site..."
	ThrottledMessage     = "Too many submissions, try again shortly"
)

// Submitter starts runs and reports on them. *agentloop.Runner satisfies it.
type Submitter interface {
	Submit(task string) (string, error)
	Status() agentloop.RunnerStatus
}

// Config describes what the server serves and where.
type Config struct {
	Addr            string
	PublicDir       string // served at /, skipped when empty
	PreviewPrefix   string // e.g. /preview/
	PreviewDir      string // the artifact directory
	ShutdownTimeout time.Duration
}

// Server wires HTTP routes to a Submitter and a Hub.
type Server struct {
	cfg         Config
	runner      Submitter
	hub         *Hub
	limiter     *SubmitLimiter
	logger      *slog.Logger
	metrics     *observability.Metrics
	gatherer    prometheus.Gatherer
	metricsPath string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithLimiter throttles /start.
func WithLimiter(l *SubmitLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithMetrics records submission metrics and exposes gatherer at path.
func WithMetrics(m *observability.Metrics, gatherer prometheus.Gatherer, path string) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
		s.metricsPath = path
	}
}

// New creates a server.
func New(cfg Config, runner Submitter, hub *Hub, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		runner: runner,
		hub:    hub,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /start", s.handleStart)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /ws", s.hub)

	if s.gatherer != nil && s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.cfg.PreviewPrefix != "" && s.cfg.PreviewDir != "" {
		prefix := s.cfg.PreviewPrefix
		mux.Handle(prefix, http.StripPrefix(strings.TrimSuffix(prefix, "/"), http.FileServer(http.Dir(s.cfg.PreviewDir))))
	}
	if s.cfg.PublicDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.PublicDir)))
	}
	return mux
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	task := r.URL.Query().Get("q")
	if strings.TrimSpace(task) == "" {
		s.metrics.RecordSubmission("rejected")
		writeText(w, http.StatusBadRequest, MissingPromptMessage)
		return
	}
	if !s.limiter.Allow() {
		s.metrics.RecordSubmission("throttled")
		s.logger.Warn("submission throttled", "remote", r.RemoteAddr)
		writeText(w, http.StatusTooManyRequests, ThrottledMessage)
		return
	}

	runID, err := s.runner.Submit(task)
	switch {
	case errors.Is(err, agentloop.ErrEmptyTask):
		s.metrics.RecordSubmission("rejected")
		writeText(w, http.StatusBadRequest, MissingPromptMessage)
		return
	case errors.Is(err, agentloop.ErrRunnerClosed):
		s.metrics.RecordSubmission("rejected")
		writeText(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	case err != nil:
		s.metrics.RecordSubmission("rejected")
		s.logger.Error("submission failed", "error", err)
		writeText(w, http.StatusInternalServerError, "Failed to start: "+err.Error())
		return
	}

	s.metrics.RecordSubmission("accepted")
	s.logger.Info("task accepted", "run_id", runID)
	writeText(w, http.StatusOK, StartedMessage)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.runner.Status()); err != nil {
		s.logger.Warn("encode status failed", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Run listens on cfg.Addr until ctx is done, then shuts down gracefully and
// disconnects the observer.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("server stopped")
		return nil
	})
	return g.Wait()
}
