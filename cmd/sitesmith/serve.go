package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/martinemde/sitesmith/config"
	"github.com/martinemde/sitesmith/server"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web UI, task submission and the observer link",
		Long: `Serve starts the HTTP server.

  GET /start?q=<task>  start generating a site (cancels any run in flight)
  GET /ws              WebSocket observer receiving progress messages
  GET /status          current run state as JSON
  /preview/            the generated site
  /                    static files from server.public_dir`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := server.NewHub(a.logger, a.metrics, cfg.Server.AllowedOrigins...)
	runner, executor := a.runner(hub)
	defer runner.Close()

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithLimiter(server.NewSubmitLimiter(cfg.Server.SubmitRatePerMinute, cfg.Server.SubmitBurst)),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(a.metrics, a.registry, cfg.Metrics.Path))
	} else {
		opts = append(opts, server.WithMetrics(a.metrics, nil, ""))
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		PublicDir:       cfg.Server.PublicDir,
		PreviewPrefix:   cfg.Server.PreviewPrefix,
		PreviewDir:      executor.WorkDir(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, runner, hub, opts...)

	a.logger.Info("sitesmith started",
		"addr", cfg.Server.Addr,
		"work_dir", executor.WorkDir(),
		"version", version,
	)
	return srv.Run(ctx)
}
