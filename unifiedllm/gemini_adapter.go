package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// geminiModels is the slice of *genai.Models the adapter calls.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAdapter talks to the Gemini API through the Gen AI SDK.
type GeminiAdapter struct {
	models geminiModels
	model  string
}

// NewGeminiAdapter creates an adapter for the Gemini API. An empty model
// selects the catalog default.
func NewGeminiAdapter(ctx context.Context, apiKey, model string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "gemini: API key is required"}}
	}
	if model == "" {
		model = DefaultModel("gemini")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "gemini: create client", Cause: err}}
	}
	return &GeminiAdapter{models: client.Models, model: model}, nil
}

// Name returns the provider identifier.
func (a *GeminiAdapter) Name() string { return "gemini" }

// Complete sends a blocking GenerateContent call.
func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	system, contents := toGeminiContents(req.Messages)
	if len(contents) == 0 {
		return nil, &InvalidRequestError{ProviderError: ProviderError{
			SDKError: SDKError{Message: "no conversation content to send"},
			Provider: "gemini", StatusCode: 400,
		}}
	}

	resp, err := a.models.GenerateContent(ctx, model, contents, buildGeminiConfig(req, system))
	if err != nil {
		return nil, translateGeminiError(ctx, err)
	}
	return fromGeminiResponse(model, resp), nil
}

// toGeminiContents splits out system text and converts the rest of the
// conversation. Tool results go back on the user side, matched by name.
func toGeminiContents(messages []Message) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content

	for _, msg := range messages {
		var parts []*genai.Part
		var role genai.Role = genai.RoleUser

		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.TextContent())
			continue
		case RoleAssistant:
			role = genai.RoleModel
			for _, p := range msg.Content {
				switch {
				case p.Kind == ContentText && p.Text != "":
					parts = append(parts, genai.NewPartFromText(p.Text))
				case p.Kind == ContentToolCall && p.ToolCall != nil:
					args := map[string]any{}
					if len(p.ToolCall.Arguments) > 0 {
						_ = json.Unmarshal(p.ToolCall.Arguments, &args)
					}
					parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
						ID:   p.ToolCall.ID,
						Name: p.ToolCall.Name,
						Args: args,
					}})
				}
			}
		case RoleTool:
			for _, p := range msg.Content {
				if p.Kind != ContentToolResult || p.ToolResult == nil {
					continue
				}
				name := p.ToolResult.Name
				if name == "" {
					name = msg.Name
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       p.ToolResult.ToolCallID,
					Name:     name,
					Response: map[string]any{"result": p.ToolResult.Content},
				}})
			}
		default:
			if text := msg.TextContent(); text != "" {
				parts = append(parts, genai.NewPartFromText(text))
			}
		}

		if len(parts) > 0 {
			contents = append(contents, genai.NewContentFromParts(parts, role))
		}
	}
	return strings.Join(system, "\n"), contents
}

func buildGeminiConfig(req Request, system string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if len(req.ToolDefs) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  ToGeminiSchema(t.Parameters),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return config
}

// ToGeminiSchema converts a JSON Schema map to Gemini's Schema type.
func ToGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = ToGeminiSchema(propMap)
			}
		}
	}
	switch required := schemaMap["required"].(type) {
	case []string:
		schema.Required = append(schema.Required, required...)
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = ToGeminiSchema(items)
	}
	return schema
}

func fromGeminiResponse(model string, resp *genai.GenerateContentResponse) *Response {
	out := &Response{
		ID:       "resp_" + uuid.NewString()[:8],
		Model:    model,
		Provider: "gemini",
		Message:  Message{Role: RoleAssistant},
	}
	if resp == nil {
		out.FinishReason = FinishReason{Reason: "other"}
		return out
	}
	if resp.ResponseID != "" {
		out.ID = resp.ResponseID
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	hasCalls := false
	raw := ""
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if raw == "" {
			raw = string(cand.FinishReason)
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil || part.FunctionCall.Args == nil {
					args = []byte(`{}`)
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()[:8]
				}
				out.Message.Content = append(out.Message.Content, ToolCallPart(id, part.FunctionCall.Name, args))
				hasCalls = true
				continue
			}
			if part.Text != "" {
				out.Message.Content = append(out.Message.Content, TextPart(part.Text))
			}
		}
	}

	out.FinishReason = FinishReason{Reason: mapGeminiFinish(raw, hasCalls), Raw: raw}
	return out
}

func mapGeminiFinish(raw string, hasCalls bool) string {
	if hasCalls {
		return "tool_calls"
	}
	switch genai.FinishReason(raw) {
	case genai.FinishReasonStop, "":
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return "content_filter"
	default:
		return "other"
	}
}

func translateGeminiError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &AbortError{SDKError: SDKError{Message: "gemini request cancelled", Cause: err}}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode(apiErr.Code, apiErr.Message, "gemini", apiErr.Status, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return ErrorFromStatusCode(apiErrPtr.Code, apiErrPtr.Message, "gemini", apiErrPtr.Status, err)
	}

	return &NetworkError{SDKError: SDKError{Message: fmt.Sprintf("gemini: %v", err), Cause: err}}
}
