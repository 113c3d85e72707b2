package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/martinemde/sitesmith/agentloop"
	"github.com/martinemde/sitesmith/config"
	"github.com/spf13/cobra"
)

func newRunCmd(configPath *string) *cobra.Command {
	var workDir string

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Generate a site once and print progress to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")
			if strings.TrimSpace(task) == "" {
				return agentloop.ErrEmptyTask
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if workDir != "" {
				cfg.Agent.WorkDir = workDir
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runOnce(ctx, cfg, task, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&workDir, "work-dir", "", "artifact directory (overrides agent.work_dir)")
	return cmd
}

func runOnce(ctx context.Context, cfg *config.Config, task string, out io.Writer) error {
	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	printer := agentloop.ObserverFunc(func(message string) {
		fmt.Fprintln(out, message)
	})
	runner, executor := a.runner(printer)
	defer runner.Close()

	if _, err := runner.Submit(task); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- runner.Wait(context.Background()) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		runner.Close()
		err = <-done
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("run cancelled")
		}
		return err
	}
	fmt.Fprintf(out, "Site written to %s\n", executor.WorkDir())
	return nil
}
