package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/martinemde/sitesmith/agentloop"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sitesmith.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearKeys(t *testing.T) {
	t.Helper()
	for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearKeys(t)
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":3000" || cfg.Server.PublicDir != "public" || cfg.Server.PreviewPrefix != "/preview/" {
		t.Errorf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Model != "gemini-2.5-flash" || cfg.LLM.APIKey != "from-env" {
		t.Errorf("unexpected llm defaults %+v", cfg.LLM)
	}
	if cfg.LLM.Retry.MaxAttempts != 5 || cfg.LLM.Retry.MinDelay != 30*time.Second || cfg.LLM.Retry.MaxDelay != 45*time.Second {
		t.Errorf("unexpected retry defaults %+v", cfg.LLM.Retry)
	}
	if cfg.Agent.WorkDir != "generated-site" || cfg.Agent.CommandTimeout != 2*time.Minute || cfg.Agent.MaxToolRounds != 0 {
		t.Errorf("unexpected agent defaults %+v", cfg.Agent)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("unexpected metrics defaults %+v", cfg.Metrics)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	clearKeys(t)

	_, err := Load("")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "llm.api_key") || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected api_key error, got %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	clearKeys(t)
	t.Setenv("SITESMITH_TEST_KEY", "expanded-key")
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:8080
  preview_prefix: /site
  allowed_origins: [https://app.example]
llm:
  provider: OpenAI
  api_key: ${SITESMITH_TEST_KEY}
  retry:
    max_attempts: 3
    min_delay: 1s
    max_delay: 2s
agent:
  work_dir: out
  command_timeout: 30s
  max_tool_rounds: 40
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" || cfg.Server.PreviewPrefix != "/site/" {
		t.Errorf("unexpected server %+v", cfg.Server)
	}
	if cfg.Server.PublicDir != "public" {
		t.Errorf("unset fields must keep defaults, got %q", cfg.Server.PublicDir)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://app.example" {
		t.Errorf("unexpected allowed origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.APIKey != "expanded-key" {
		t.Errorf("unexpected llm %+v", cfg.LLM)
	}
	policy := cfg.RetryPolicy()
	if policy.MaxAttempts != 3 || policy.MinDelay != time.Second || policy.MaxDelay != 2*time.Second {
		t.Errorf("unexpected retry policy %+v", policy)
	}
	if cfg.Agent.WorkDir != "out" || cfg.Agent.CommandTimeout != 30*time.Second || cfg.Agent.MaxToolRounds != 40 {
		t.Errorf("unexpected agent %+v", cfg.Agent)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging %+v", cfg.Logging)
	}
}

func TestLoadProviderKeyFallback(t *testing.T) {
	tests := []struct {
		provider string
		env      string
	}{
		{"gemini", "GOOGLE_API_KEY"},
		{"openai", "OPENAI_API_KEY"},
		{"anthropic", "ANTHROPIC_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			clearKeys(t)
			t.Setenv(tt.env, "key-"+tt.provider)
			cfg, err := Load(writeConfig(t, "llm:\n  provider: "+tt.provider+"\n"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.LLM.APIKey != "key-"+tt.provider {
				t.Errorf("expected key from %s, got %q", tt.env, cfg.LLM.APIKey)
			}
		})
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearKeys(t)
	path := writeConfig(t, `
llm:
  api_key: abc
  temperature: 0.2
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	clearKeys(t)
	path := writeConfig(t, "llm:\n  api_key: a\n---\nllm:\n  api_key: b\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "single document") {
		t.Fatalf("expected single document error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestValidateReportsEverything(t *testing.T) {
	clearKeys(t)
	path := writeConfig(t, `
llm:
  provider: cohere
  retry:
    max_attempts: 0
    min_delay: 10s
    max_delay: 1s
agent:
  work_dir: ""
logging:
  format: xml
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"llm.provider", "max_attempts", "min_delay", "agent.work_dir", "logging.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestEmptyFileKeepsDefaults(t *testing.T) {
	clearKeys(t)
	t.Setenv("GEMINI_API_KEY", "k")
	cfg, err := Load(writeConfig(t, "\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":3000" {
		t.Errorf("expected defaults, got %+v", cfg.Server)
	}
}

func TestValidateRejectsUnsafeWorkDir(t *testing.T) {
	clearKeys(t)
	t.Setenv("GEMINI_API_KEY", "k")
	root := t.TempDir()
	t.Chdir(root)

	for _, dir := range []string{".", "..", root} {
		path := writeConfig(t, "agent:\n  work_dir: "+dir+"\n")
		_, err := Load(path)
		if err == nil || !errors.Is(err, agentloop.ErrUnsafeWorkDir) {
			t.Errorf("work_dir %q: expected ErrUnsafeWorkDir, got %v", dir, err)
		}
	}
}

func TestValidateRejectsWorkDirHoldingPublicDir(t *testing.T) {
	clearKeys(t)
	t.Setenv("GEMINI_API_KEY", "k")
	root := t.TempDir()
	path := writeConfig(t, "server:\n  public_dir: "+filepath.Join(root, "www", "public")+"\nagent:\n  work_dir: "+filepath.Join(root, "www")+"\n")

	_, err := Load(path)
	if !errors.Is(err, agentloop.ErrUnsafeWorkDir) || !strings.Contains(err.Error(), "agent.work_dir") {
		t.Fatalf("expected an agent.work_dir error, got %v", err)
	}
}

func TestValidateRejectsWorkDirHoldingConfigFile(t *testing.T) {
	clearKeys(t)
	t.Setenv("GEMINI_API_KEY", "k")
	path := writeConfig(t, "")
	dir := filepath.Dir(path)
	if err := os.WriteFile(path, []byte("agent:\n  work_dir: "+dir+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, agentloop.ErrUnsafeWorkDir) {
		t.Fatalf("expected ErrUnsafeWorkDir, got %v", err)
	}
}
