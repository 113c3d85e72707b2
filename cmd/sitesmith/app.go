package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/martinemde/sitesmith/agentloop"
	"github.com/martinemde/sitesmith/config"
	"github.com/martinemde/sitesmith/observability"
	"github.com/martinemde/sitesmith/unifiedllm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the process-wide collaborators shared by serve and run.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	client   *unifiedllm.Client
	provider string
}

func newApp(ctx context.Context, cfg *config.Config, logOutput io.Writer) (*app, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	adapter, err := unifiedllm.NewProviderAdapter(ctx, cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.LLM.Provider, err)
	}
	client := unifiedllm.NewClient(
		unifiedllm.WithProvider(adapter.Name(), adapter),
		unifiedllm.WithDefaultProvider(adapter.Name()),
		unifiedllm.WithMiddleware(metrics.ClientMiddleware()),
	)

	logger.Info("provider ready", "provider", adapter.Name(), "model", cfg.LLM.Model)
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		client:   client,
		provider: adapter.Name(),
	}, nil
}

// runner builds the executor, gateway and runner narrating to observer.
func (a *app) runner(observer agentloop.Observer) (*agentloop.Runner, *agentloop.LocalExecutor) {
	observer = agentloop.MultiObserver{observer, agentloop.LogObserver{Logger: a.logger}}

	executor := agentloop.NewLocalExecutor(a.cfg.Agent.WorkDir,
		agentloop.WithCommandTimeout(a.cfg.Agent.CommandTimeout),
		agentloop.WithExecutorObserver(observer),
		agentloop.WithExecutorLogger(a.logger),
		agentloop.WithExecutorMetrics(a.metrics),
		agentloop.WithProtectedPaths(a.cfg.ProtectedPaths()...),
	)
	gateway := agentloop.NewLLMGateway(a.client, agentloop.GatewayConfig{
		Provider: a.provider,
		Model:    a.cfg.LLM.Model,
		Retry:    a.cfg.RetryPolicy(),
		Observer: observer,
		Logger:   a.logger,
		Metrics:  a.metrics,
	})

	runner := agentloop.NewRunner(agentloop.SessionConfig{
		Gateway:           gateway,
		Tools:             agentloop.NewToolRegistry(agentloop.NewExecuteCommandTool(executor)),
		SystemInstruction: agentloop.BuildSystemInstruction(agentloop.HostEnvironment(executor.WorkDir())),
		Observer:          observer,
		Logger:            a.logger,
		Metrics:           a.metrics,
		MaxToolRounds:     a.cfg.Agent.MaxToolRounds,
		OutputCharLimit:   a.cfg.Agent.OutputCharLimit,
		OutputLineLimit:   a.cfg.Agent.OutputLineLimit,
	}, executor)
	return runner, executor
}

func (a *app) Close() error {
	return a.client.Close()
}
