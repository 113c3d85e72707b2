// Package main provides the sitesmith CLI.
//
// sitesmith turns a plain-language request ("a landing page for a bakery")
// into a small static website. A language model plans the work and issues
// one shell command at a time; each command runs in the artifact directory
// and its result is fed back until the model reports it is done.
//
// # Basic Usage
//
// Start the web UI and observer link:
//
//	sitesmith serve --config sitesmith.yaml
//
// Generate a site once, in the foreground:
//
//	sitesmith run "a portfolio page for a photographer"
//
// # Environment Variables
//
//   - SITESMITH_CONFIG: path to the configuration file
//   - GEMINI_API_KEY / GOOGLE_API_KEY: Gemini credentials (default provider)
//   - OPENAI_API_KEY: OpenAI credentials
//   - ANTHROPIC_API_KEY: Anthropic credentials
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "sitesmith",
		Short:        "Generate small static websites from a prompt",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SITESMITH_CONFIG"),
		"path to YAML config file (defaults apply when empty)")

	root.AddCommand(
		newServeCmd(&configPath),
		newRunCmd(&configPath),
		newModelsCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sitesmith %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
