// Package config loads sitesmith settings from YAML with environment
// variable expansion.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/martinemde/sitesmith/agentloop"
	"github.com/martinemde/sitesmith/unifiedllm"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`

	path string
}

// ProtectedPaths lists the paths a work dir reset must leave alone: the
// public dir and the config file it was loaded from.
func (c *Config) ProtectedPaths() []string {
	var paths []string
	if c.Server.PublicDir != "" {
		paths = append(paths, c.Server.PublicDir)
	}
	if c.path != "" {
		paths = append(paths, c.path)
	}
	return paths
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	PublicDir       string        `yaml:"public_dir"`
	PreviewPrefix   string        `yaml:"preview_prefix"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// SubmitRatePerMinute throttles /start. Zero disables throttling.
	SubmitRatePerMinute float64 `yaml:"submit_rate_per_minute"`
	SubmitBurst         int     `yaml:"submit_burst"`

	// AllowedOrigins lists extra browser origins that may open /ws. The
	// page's own origin is always allowed.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LLMConfig struct {
	Provider string      `yaml:"provider"`
	Model    string      `yaml:"model"`
	APIKey   string      `yaml:"api_key"`
	Retry    RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type AgentConfig struct {
	WorkDir         string        `yaml:"work_dir"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	MaxToolRounds   int           `yaml:"max_tool_rounds"`
	OutputCharLimit int           `yaml:"output_char_limit"`
	OutputLineLimit int           `yaml:"output_line_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// apiKeyEnv lists the environment variables consulted, in order, when
// llm.api_key is empty.
var apiKeyEnv = map[string][]string{
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"google":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":3000",
			PublicDir:           "public",
			PreviewPrefix:       "/preview/",
			ShutdownTimeout:     10 * time.Second,
			SubmitRatePerMinute: 30,
			SubmitBurst:         5,
		},
		LLM: LLMConfig{
			Provider: "gemini",
			Retry: RetryConfig{
				MaxAttempts: 5,
				MinDelay:    30 * time.Second,
				MaxDelay:    45 * time.Second,
			},
		},
		Agent: AgentConfig{
			WorkDir:         "generated-site",
			CommandTimeout:  2 * time.Minute,
			OutputCharLimit: 30000,
			OutputLineLimit: 256,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads path over the defaults, resolves the API key and validates the
// result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, err
		}
	}

	cfg.path = strings.TrimSpace(path)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("failed to parse config: expected single document")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = unifiedllm.DefaultModel(cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey == "" {
		for _, name := range apiKeyEnv[cfg.LLM.Provider] {
			if v := os.Getenv(name); v != "" {
				cfg.LLM.APIKey = v
				break
			}
		}
	}
	if cfg.Server.PreviewPrefix != "" && !strings.HasSuffix(cfg.Server.PreviewPrefix, "/") {
		cfg.Server.PreviewPrefix += "/"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, ok := apiKeyEnv[c.LLM.Provider]; !ok {
		errs = append(errs, fmt.Errorf("llm.provider: unsupported provider %q", c.LLM.Provider))
	} else if c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api_key: required (or set %s)", strings.Join(apiKeyEnv[c.LLM.Provider], " / ")))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model: required"))
	}
	if c.LLM.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("llm.retry.max_attempts: must be at least 1"))
	}
	if c.LLM.Retry.MinDelay < 0 || c.LLM.Retry.MaxDelay < c.LLM.Retry.MinDelay {
		errs = append(errs, errors.New("llm.retry: need 0 <= min_delay <= max_delay"))
	}
	if strings.TrimSpace(c.Agent.WorkDir) == "" {
		errs = append(errs, errors.New("agent.work_dir: required"))
	} else if err := agentloop.CheckWorkDir(c.Agent.WorkDir, c.ProtectedPaths()...); err != nil {
		errs = append(errs, fmt.Errorf("agent.work_dir: %w", err))
	}
	if c.Agent.CommandTimeout < 0 {
		errs = append(errs, errors.New("agent.command_timeout: must not be negative"))
	}
	if c.Agent.MaxToolRounds < 0 || c.Agent.OutputCharLimit < 0 || c.Agent.OutputLineLimit < 0 {
		errs = append(errs, errors.New("agent: limits must not be negative"))
	}
	if !strings.HasPrefix(c.Server.PreviewPrefix, "/") {
		errs = append(errs, fmt.Errorf("server.preview_prefix: must start with / (got %q)", c.Server.PreviewPrefix))
	}
	if c.Server.SubmitRatePerMinute < 0 || c.Server.SubmitBurst < 0 {
		errs = append(errs, errors.New("server: submit rate and burst must not be negative"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format: must be json or text (got %q)", c.Logging.Format))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path: must start with / (got %q)", c.Metrics.Path))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// RetryPolicy converts the retry section for the model gateway.
func (c *Config) RetryPolicy() unifiedllm.RetryPolicy {
	return unifiedllm.RetryPolicy{
		MaxAttempts: c.LLM.Retry.MaxAttempts,
		MinDelay:    c.LLM.Retry.MinDelay,
		MaxDelay:    c.LLM.Retry.MaxDelay,
	}
}
