package agentloop

import (
	"encoding/json"
	"time"

	"github.com/martinemde/sitesmith/unifiedllm"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnUser          TurnKind = "user"
	TurnModelToolCall TurnKind = "model_tool_call"
	TurnToolResult    TurnKind = "tool_result"
	TurnModelFinal    TurnKind = "model_final"
)

// Turn is a single entry in the conversation. Exactly one of the variant
// pointers is set, matching Kind.
type Turn struct {
	Kind       TurnKind           `json:"kind"`
	Timestamp  time.Time          `json:"timestamp"`
	User       *UserTurn          `json:"user,omitempty"`
	ToolCall   *ModelToolCallTurn `json:"tool_call,omitempty"`
	ToolResult *ToolResultTurn    `json:"tool_result,omitempty"`
	Final      *ModelFinalTurn    `json:"final,omitempty"`
}

// UserTurn holds the task as submitted.
type UserTurn struct {
	Text string `json:"text"`
}

// ModelToolCallTurn records the tool invocation the model asked for.
type ModelToolCallTurn struct {
	CallID    string          `json:"call_id"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResultTurn holds the text returned to the model for a tool call.
type ToolResultTurn struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Result   string `json:"result"`
}

// ModelFinalTurn holds the model's closing answer.
type ModelFinalTurn struct {
	Content []unifiedllm.ContentPart `json:"content"`
}

// NewUserTurn creates a Turn wrapping the submitted task.
func NewUserTurn(text string) Turn {
	return Turn{
		Kind:      TurnUser,
		Timestamp: time.Now(),
		User:      &UserTurn{Text: text},
	}
}

// NewModelToolCallTurn creates a Turn for a tool invocation.
func NewModelToolCallTurn(call unifiedllm.ToolCall) Turn {
	return Turn{
		Kind:      TurnModelToolCall,
		Timestamp: time.Now(),
		ToolCall: &ModelToolCallTurn{
			CallID:    call.ID,
			ToolName:  call.Name,
			Arguments: call.Arguments,
		},
	}
}

// NewToolResultTurn creates a Turn for a tool result.
func NewToolResultTurn(callID, toolName, result string) Turn {
	return Turn{
		Kind:       TurnToolResult,
		Timestamp:  time.Now(),
		ToolResult: &ToolResultTurn{CallID: callID, ToolName: toolName, Result: result},
	}
}

// NewModelFinalTurn creates the terminal Turn of a run.
func NewModelFinalTurn(content []unifiedllm.ContentPart) Turn {
	return Turn{
		Kind:      TurnModelFinal,
		Timestamp: time.Now(),
		Final:     &ModelFinalTurn{Content: content},
	}
}

// Clone returns a deep copy of t that shares no memory with it.
func (t Turn) Clone() Turn {
	out := t
	if t.User != nil {
		u := *t.User
		out.User = &u
	}
	if t.ToolCall != nil {
		tc := *t.ToolCall
		tc.Arguments = cloneRaw(t.ToolCall.Arguments)
		out.ToolCall = &tc
	}
	if t.ToolResult != nil {
		tr := *t.ToolResult
		out.ToolResult = &tr
	}
	if t.Final != nil {
		out.Final = &ModelFinalTurn{Content: cloneContent(t.Final.Content)}
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneContent(parts []unifiedllm.ContentPart) []unifiedllm.ContentPart {
	if parts == nil {
		return nil
	}
	out := make([]unifiedllm.ContentPart, len(parts))
	for i, part := range parts {
		out[i] = part
		if part.ToolCall != nil {
			tc := *part.ToolCall
			tc.Arguments = cloneRaw(part.ToolCall.Arguments)
			out[i].ToolCall = &tc
		}
		if part.ToolResult != nil {
			tr := *part.ToolResult
			out[i].ToolResult = &tr
		}
	}
	return out
}

// ConvertHistoryToMessages converts the turn-based history into LLM messages.
func ConvertHistoryToMessages(history []Turn) []unifiedllm.Message {
	messages := make([]unifiedllm.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Kind {
		case TurnUser:
			if turn.User != nil {
				messages = append(messages, unifiedllm.UserMessage(turn.User.Text))
			}
		case TurnModelToolCall:
			if tc := turn.ToolCall; tc != nil {
				messages = append(messages, unifiedllm.ToolCallMessage(tc.CallID, tc.ToolName, tc.Arguments))
			}
		case TurnToolResult:
			if tr := turn.ToolResult; tr != nil {
				messages = append(messages, unifiedllm.ToolResultMessage(tr.CallID, tr.ToolName, tr.Result, false))
			}
		case TurnModelFinal:
			if turn.Final != nil && len(turn.Final.Content) > 0 {
				messages = append(messages, unifiedllm.Message{
					Role:    unifiedllm.RoleAssistant,
					Content: turn.Final.Content,
				})
			}
		}
	}
	return messages
}
