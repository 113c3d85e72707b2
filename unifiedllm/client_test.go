package unifiedllm

import (
	"context"
	"errors"
	"testing"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	lastReq  Request
	closed   bool
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAdapter) Close() error {
	m.closed = true
	return nil
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:       "test_resp",
			Model:    "test-model",
			Provider: name,
			Message: Message{
				Role:    RoleAssistant,
				Content: []ContentPart{TextPart(text)},
			},
			FinishReason: FinishReason{Reason: "stop"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(
		WithProvider("test-provider", mock),
		WithDefaultProvider("test-provider"),
	)

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("expected %q, got %q", "Hello!", resp.Text())
	}
	if mock.lastReq.Provider != "test-provider" {
		t.Errorf("expected provider to be filled in, got %q", mock.lastReq.Provider)
	}
}

func TestClientProviderRouting(t *testing.T) {
	gemini := newMockAdapter("gemini", "from gemini")
	openai := newMockAdapter("openai", "from openai")
	client := NewClient(
		WithProvider("gemini", gemini),
		WithProvider("openai", openai),
		WithDefaultProvider("gemini"),
	)

	resp, err := client.Complete(context.Background(), Request{Provider: "openai"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "from openai" {
		t.Errorf("expected routing to openai, got %q", resp.Text())
	}

	resp, err = client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "from gemini" {
		t.Errorf("expected default provider gemini, got %q", resp.Text())
	}
}

func TestClientInfersProviderFromModel(t *testing.T) {
	client := NewClient()
	client.providers["gemini"] = newMockAdapter("gemini", "ok")

	resp, err := client.Complete(context.Background(), Request{Model: "gemini-2.5-flash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "ok" {
		t.Errorf("got %q", resp.Text())
	}
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{Model: "unknown"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
	}
}

func TestClientUnregisteredProvider(t *testing.T) {
	client := NewClient(WithProvider("gemini", newMockAdapter("gemini", "")))
	_, err := client.Complete(context.Background(), Request{Provider: "anthropic"})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
	}
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	record := func(name string) Middleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			order = append(order, name+":before")
			resp, err := next(ctx, req)
			order = append(order, name+":after")
			return resp, err
		}
	}

	client := NewClient(
		WithProvider("p", newMockAdapter("p", "x")),
		WithMiddleware(record("first"), record("second")),
	)
	if _, err := client.Complete(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"first:before", "second:before", "second:after", "first:after"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestClientMiddlewareSeesErrors(t *testing.T) {
	mock := newMockAdapter("p", "")
	mock.err = ErrorFromStatusCode(503, "unavailable", "p", "", nil)

	var seen error
	client := NewClient(
		WithProvider("p", mock),
		WithMiddleware(func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			resp, err := next(ctx, req)
			seen = err
			return resp, err
		}),
	)
	_, err := client.Complete(context.Background(), Request{})
	if err == nil || seen != err {
		t.Fatalf("expected middleware to observe %v, got %v", err, seen)
	}
}

func TestClientRegisterProvider(t *testing.T) {
	client := NewClient()
	client.RegisterProvider("late", newMockAdapter("late", "registered"))

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "registered" {
		t.Errorf("got %q", resp.Text())
	}
}

func TestClientClose(t *testing.T) {
	mock := newMockAdapter("p", "")
	client := NewClient(WithProvider("p", mock))
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !mock.closed {
		t.Error("expected adapter to be closed")
	}
}

func TestClientProviderAlias(t *testing.T) {
	gemini := newMockAdapter("gemini", "aliased")
	client := NewClient(WithProvider("gemini", gemini), WithProvider("openai", newMockAdapter("openai", "")))

	resp, err := client.Complete(context.Background(), Request{Provider: "google"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "aliased" {
		t.Errorf("expected google to route to gemini, got %q", resp.Text())
	}
}

func TestClientFillsDefaultModel(t *testing.T) {
	mock := newMockAdapter("gemini", "ok")
	mock.response.Provider = ""
	client := NewClient(WithProvider("gemini", mock))

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.lastReq.Model != "gemini-2.5-flash" {
		t.Errorf("expected catalog default model, got %q", mock.lastReq.Model)
	}
	if resp.Provider != "gemini" {
		t.Errorf("expected provider on response, got %q", resp.Provider)
	}
}
