package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/martinemde/sitesmith/agentloop"
	"github.com/martinemde/sitesmith/observability"
	"github.com/martinemde/sitesmith/unifiedllm"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	tasks  []string
	err    error
	status agentloop.RunnerStatus
}

func (f *fakeSubmitter) Submit(task string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.tasks = append(f.tasks, task)
	return "run-1", nil
}

func (f *fakeSubmitter) Status() agentloop.RunnerStatus { return f.status }

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestStartRejectsMissingPrompt(t *testing.T) {
	sub := &fakeSubmitter{}
	srv := httptest.NewServer(New(Config{}, sub, NewHub(nil, nil)).Handler())
	defer srv.Close()

	for _, path := range []string{"/start", "/start?q=", "/start?q=%20%20"} {
		status, body := get(t, srv.URL+path)
		if status != http.StatusBadRequest || body != MissingPromptMessage {
			t.Errorf("%s: expected 400 %q, got %d %q", path, MissingPromptMessage, status, body)
		}
	}
	if len(sub.tasks) != 0 {
		t.Errorf("nothing should be submitted, got %v", sub.tasks)
	}
}

func TestStartAcceptsTask(t *testing.T) {
	sub := &fakeSubmitter{}
	srv := httptest.NewServer(New(Config{}, sub, NewHub(nil, nil)).Handler())
	defer srv.Close()

	status, body := get(t, srv.URL+"/start?q=Make+a+bakery+site")
	if status != http.StatusOK || body != StartedMessage {
		t.Fatalf("expected 200 %q, got %d %q", StartedMessage, status, body)
	}
	if len(sub.tasks) != 1 || sub.tasks[0] != "Make a bakery site" {
		t.Errorf("unexpected submissions %v", sub.tasks)
	}
}

func TestStartSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"closed", agentloop.ErrRunnerClosed, http.StatusServiceUnavailable},
		{"workspace", errors.New("prepare workspace: denied"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(New(Config{}, &fakeSubmitter{err: tt.err}, NewHub(nil, nil)).Handler())
			defer srv.Close()
			if status, _ := get(t, srv.URL+"/start?q=site"); status != tt.status {
				t.Errorf("expected %d, got %d", tt.status, status)
			}
		})
	}
}

func TestStartThrottled(t *testing.T) {
	sub := &fakeSubmitter{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s := New(Config{}, sub, NewHub(nil, nil), WithLimiter(NewSubmitLimiter(1, 1)), WithMetrics(metrics, nil, ""))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	if status, _ := get(t, srv.URL+"/start?q=one"); status != http.StatusOK {
		t.Fatalf("first submission should pass, got %d", status)
	}
	status, body := get(t, srv.URL+"/start?q=two")
	if status != http.StatusTooManyRequests || body != ThrottledMessage {
		t.Errorf("expected 429, got %d %q", status, body)
	}
	if len(sub.tasks) != 1 {
		t.Errorf("throttled task must not be submitted, got %v", sub.tasks)
	}
}

func TestStatusJSON(t *testing.T) {
	sub := &fakeSubmitter{status: agentloop.RunnerStatus{State: "running", RunID: "abc", Task: "site"}}
	srv := httptest.NewServer(New(Config{}, sub, NewHub(nil, nil)).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var got agentloop.RunnerStatus
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "running" || got.RunID != "abc" || got.Task != "site" {
		t.Errorf("unexpected status %+v", got)
	}
}

func TestStaticAndPreview(t *testing.T) {
	public := t.TempDir()
	preview := t.TempDir()
	if err := os.WriteFile(filepath.Join(public, "index.html"), []byte("<h1>sitesmith</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(preview, "style.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{PublicDir: public, PreviewPrefix: "/preview/", PreviewDir: preview}
	srv := httptest.NewServer(New(cfg, &fakeSubmitter{}, NewHub(nil, nil)).Handler())
	defer srv.Close()

	if status, body := get(t, srv.URL+"/"); status != http.StatusOK || !strings.Contains(body, "sitesmith") {
		t.Errorf("expected public index, got %d %q", status, body)
	}
	if status, body := get(t, srv.URL+"/preview/style.css"); status != http.StatusOK || body != "body{}" {
		t.Errorf("expected preview file, got %d %q", status, body)
	}
	if status, _ := get(t, srv.URL+"/preview/missing.js"); status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	s := New(Config{}, &fakeSubmitter{}, NewHub(nil, nil), WithMetrics(metrics, reg, "/metrics"))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	get(t, srv.URL+"/start?q=site")
	get(t, srv.URL+"/start")

	status, body := get(t, srv.URL+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	for _, want := range []string{
		`sitesmith_submissions_total{result="accepted"} 1`,
		`sitesmith_submissions_total{result="rejected"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

// scriptGateway answers a tool call and then a final answer.
type scriptGateway struct {
	mu    sync.Mutex
	calls int
}

func (g *scriptGateway) Generate(ctx context.Context, history []agentloop.Turn, tools []unifiedllm.ToolDefinition, system string) (*unifiedllm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls == 1 {
		return &unifiedllm.Response{Message: unifiedllm.ToolCallMessage("c1", agentloop.ExecuteCommandToolName, []byte(`{"command":"noop"}`))}, nil
	}
	return &unifiedllm.Response{Message: unifiedllm.AssistantMessage("Site ready.")}, nil
}

type quietExecutor struct{}

func (quietExecutor) Execute(ctx context.Context, command string) string { return "Executed" }

func TestEndToEndNarration(t *testing.T) {
	hub := NewHub(nil, nil)
	runner := agentloop.NewRunner(agentloop.SessionConfig{
		Gateway:  &scriptGateway{},
		Tools:    agentloop.NewToolRegistry(agentloop.NewExecuteCommandTool(quietExecutor{})),
		Observer: hub,
	}, agentloop.NewLocalExecutor(filepath.Join(t.TempDir(), "site")))
	defer runner.Close()

	srv := httptest.NewServer(New(Config{}, runner, hub).Handler())
	defer srv.Close()

	conn := dialHub(t, srv.URL+"/ws")
	if got := readText(t, conn); got != ConnectedMessage {
		t.Fatalf("expected confirmation, got %q", got)
	}

	if status, body := get(t, srv.URL+"/start?q=bakery"); status != http.StatusOK {
		t.Fatalf("start failed: %d %q", status, body)
	}

	want := []string{"Prompt received: bakery", "Model: noop", "Site ready."}
	for _, m := range want {
		if got := readText(t, conn); got != m {
			t.Errorf("expected %q, got %q", m, got)
		}
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := New(Config{ShutdownTimeout: time.Second}, &fakeSubmitter{}, NewHub(nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	waitFor(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
