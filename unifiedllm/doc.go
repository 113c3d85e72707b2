// Package unifiedllm is a small provider-agnostic client for chat models
// that can call tools.
//
// # Architecture
//
//   - ProviderAdapter and the shared message types describe one blocking
//     completion call.
//   - GeminiAdapter talks to the Gemini API through google.golang.org/genai;
//     GollmAdapter covers OpenAI and Anthropic through gollm.
//   - Client routes requests to a registered adapter and applies middleware.
//   - Retry re-issues a call while the provider reports overload.
//
// # Quick Start
//
//	adapter, _ := unifiedllm.NewProviderAdapter(ctx, "gemini", os.Getenv("GEMINI_API_KEY"), "")
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("gemini", adapter))
//
//	resp, _ := client.Complete(ctx, unifiedllm.Request{
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text())
//
// # Overload Handling
//
// Only rate limiting (429) and unavailability (503) are retried. The wait
// between attempts is drawn uniformly from [MinDelay, MaxDelay]:
//
//	policy := unifiedllm.DefaultRetryPolicy()
//	resp, err := unifiedllm.Retry(ctx, policy, func(ctx context.Context) (*unifiedllm.Response, error) {
//	    return client.Complete(ctx, req)
//	})
//	if errors.Is(err, unifiedllm.ErrRetriesExhausted) {
//	    // the provider stayed overloaded
//	}
package unifiedllm
