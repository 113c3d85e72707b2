package observability

import (
	"context"
	"errors"
	"time"

	"github.com/martinemde/sitesmith/unifiedllm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for runs, model calls, commands and
// the HTTP surface. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RunsTotal counts finished runs.
	// Labels: status (completed|failed|cancelled)
	RunsTotal *prometheus.CounterVec

	// ActiveRuns is 1 while a run is in flight.
	ActiveRuns prometheus.Gauge

	// ToolRounds measures how many commands a run executed.
	ToolRounds prometheus.Histogram

	// ModelRequests counts provider calls.
	// Labels: provider, model, status (success|overloaded|error|cancelled)
	ModelRequests *prometheus.CounterVec

	// ModelRequestDuration measures provider call latency in seconds.
	// Labels: provider, model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelTokens tracks token consumption.
	// Labels: provider, type (input|output)
	ModelTokens *prometheus.CounterVec

	// ModelRetries counts overload retries.
	// Labels: provider
	ModelRetries *prometheus.CounterVec

	// CommandExecutions counts shell commands.
	// Labels: status (success|failure|timeout)
	CommandExecutions *prometheus.CounterVec

	// CommandDuration measures shell command latency in seconds.
	CommandDuration prometheus.Histogram

	// Submissions counts task submissions.
	// Labels: result (accepted|rejected|throttled)
	Submissions *prometheus.CounterVec

	// ObserverMessages counts narrations by delivery outcome.
	// Labels: result (delivered|dropped)
	ObserverMessages *prometheus.CounterVec
}

// NewMetrics creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesmith_runs_total",
				Help: "Total number of agent runs by final status",
			},
			[]string{"status"},
		),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Name: "sitesmith_active_runs",
			Help: "Number of agent runs currently in flight",
		}),
		ToolRounds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitesmith_run_tool_rounds",
			Help:    "Number of commands executed per run",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		ModelRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesmith_model_requests_total",
				Help: "Total number of model requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		ModelRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitesmith_model_request_duration_seconds",
				Help:    "Duration of model requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ModelTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesmith_model_tokens_total",
				Help: "Total number of tokens used by provider and type",
			},
			[]string{"provider", "type"},
		),
		ModelRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesmith_model_retries_total",
				Help: "Total number of retries after provider overload",
			},
			[]string{"provider"},
		),
		CommandExecutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesmith_command_executions_total",
				Help: "Total number of shell commands by outcome",
			},
			[]string{"status"},
		),
		CommandDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitesmith_command_duration_seconds",
			Help:    "Duration of shell commands in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		Submissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesmith_submissions_total",
				Help: "Total number of task submissions by result",
			},
			[]string{"result"},
		),
		ObserverMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesmith_observer_messages_total",
				Help: "Total number of progress messages by delivery result",
			},
			[]string{"result"},
		),
	}
}

// RunStarted marks a run as in flight.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunFinished records the end of a run.
func (m *Metrics) RunFinished(status string, toolRounds int) {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
	m.RunsTotal.WithLabelValues(status).Inc()
	m.ToolRounds.Observe(float64(toolRounds))
}

// RecordModelRequest records one provider call.
func (m *Metrics) RecordModelRequest(provider, model, status string, duration time.Duration, usage unifiedllm.Usage) {
	if m == nil {
		return
	}
	m.ModelRequests.WithLabelValues(provider, model, status).Inc()
	m.ModelRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if usage.InputTokens > 0 {
		m.ModelTokens.WithLabelValues(provider, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		m.ModelTokens.WithLabelValues(provider, "output").Add(float64(usage.OutputTokens))
	}
}

// RecordModelRetry counts one overload retry.
func (m *Metrics) RecordModelRetry(provider string) {
	if m == nil {
		return
	}
	m.ModelRetries.WithLabelValues(provider).Inc()
}

// RecordCommand records one shell command.
func (m *Metrics) RecordCommand(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CommandExecutions.WithLabelValues(status).Inc()
	m.CommandDuration.Observe(duration.Seconds())
}

// RecordSubmission counts one task submission.
func (m *Metrics) RecordSubmission(result string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(result).Inc()
}

// RecordObserverMessage counts one narration.
func (m *Metrics) RecordObserverMessage(delivered bool) {
	if m == nil {
		return
	}
	result := "dropped"
	if delivered {
		result = "delivered"
	}
	m.ObserverMessages.WithLabelValues(result).Inc()
}

// ClientMiddleware times and counts every provider call made through a
// unifiedllm.Client.
func (m *Metrics) ClientMiddleware() unifiedllm.Middleware {
	return func(ctx context.Context, req unifiedllm.Request, next func(context.Context, unifiedllm.Request) (*unifiedllm.Response, error)) (*unifiedllm.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		var usage unifiedllm.Usage
		model := req.Model
		if resp != nil {
			usage = resp.Usage
			if resp.Model != "" {
				model = resp.Model
			}
		}
		m.RecordModelRequest(req.Provider, model, requestStatus(err), time.Since(start), usage)
		return resp, err
	}
}

func requestStatus(err error) string {
	var abortErr *unifiedllm.AbortError
	switch {
	case err == nil:
		return "success"
	case unifiedllm.IsTransientOverload(err):
		return "overloaded"
	case errors.As(err, &abortErr), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
