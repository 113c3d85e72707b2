package unifiedllm

import (
	"context"
	"fmt"
)

// ProviderAdapter is the interface every provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "gemini", "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// NewProviderAdapter builds the adapter for a provider name. Gemini talks to
// the Gen AI SDK directly; the rest go through gollm.
func NewProviderAdapter(ctx context.Context, provider, apiKey, model string) (ProviderAdapter, error) {
	switch provider {
	case "gemini", "google":
		adapter, err := NewGeminiAdapter(ctx, apiKey, model)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	case "openai", "anthropic":
		adapter, err := NewGollmAdapter(provider, apiKey, WithModel(model))
		if err != nil {
			return nil, err
		}
		return adapter, nil
	default:
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("unsupported provider %q", provider),
		}}
	}
}
