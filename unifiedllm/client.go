package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// CompleteFunc is one step of the call chain.
type CompleteFunc func(ctx context.Context, req Request) (*Response, error)

// Middleware wraps a provider call. Metrics, logging and similar concerns
// observe the request and result by calling next.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client routes requests to registered adapters and runs them through the
// middleware chain. sitesmith registers a single adapter per process, but
// the routing also resolves provider aliases and model catalog entries.
type Client struct {
	mu              sync.RWMutex
	providers       map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers adapter under name.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.providers[canonicalProvider(name)] = adapter
	}
}

// WithDefaultProvider names the adapter used when a request names none.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = canonicalProvider(name)
	}
}

// WithMiddleware appends middleware. The first one added is outermost.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a Client. With exactly one adapter and no explicit
// default, that adapter becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{providers: make(map[string]ProviderAdapter)}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.providers) == 1 {
		for name := range c.providers {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds an adapter after construction.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name = canonicalProvider(name)
	c.providers[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

// canonicalProvider folds provider aliases onto the adapter names.
func canonicalProvider(name string) string {
	if name == "google" {
		return "gemini"
	}
	return name
}

// resolveProvider picks the adapter for req: the named provider, then the
// default, then the catalog owner of req.Model.
func (c *Client) resolveProvider(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := canonicalProvider(req.Provider)
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "no provider specified and no default provider configured",
		}}
	}

	adapter, ok := c.providers[name]
	if !ok {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("provider %q is not registered", name),
		}}
	}
	return adapter, nil
}

// Complete resolves the adapter, fills in the provider and a default model
// when missing, and sends req through the middleware chain.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.resolveProvider(req)
	if err != nil {
		return nil, err
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}
	if req.Model == "" {
		req.Model = DefaultModel(adapter.Name())
	}

	c.mu.RLock()
	mws := append([]Middleware(nil), c.middleware...)
	c.mu.RUnlock()

	resp, err := chain(adapter.Complete, mws)(ctx, req)
	if err == nil && resp != nil && resp.Provider == "" {
		resp.Provider = adapter.Name()
	}
	return resp, err
}

// chain wraps final so that mws[0] runs first.
func chain(final CompleteFunc, mws []Middleware) CompleteFunc {
	handler := final
	for i := len(mws) - 1; i >= 0; i-- {
		mw, next := mws[i], handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}
	return handler
}

// Close closes every adapter that holds resources and joins their errors.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []error
	for name, adapter := range c.providers {
		if closer, ok := adapter.(Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
