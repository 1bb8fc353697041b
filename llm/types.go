// Package llm defines the model-client contract used by the agent loop:
// request/response types, an error taxonomy with retryability, bounded
// retry with backoff, and a gollm-backed provider adapter.
//
// The contract is deliberately narrow. Each Complete call carries the
// full ordered conversation plus the declared tool schemas, and the
// response is either final assistant text or a single tool call. A
// request has no side effects of its own, so it is always safe to retry.
package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolDefinition describes a tool made available to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a model-initiated tool invocation. Exactly one tool call is
// surfaced per response; the loop executes it and feeds the result back.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is a single conversation turn as seen by the provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCall is set on assistant messages that requested a tool.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolCallID and IsError are set on tool-result messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolResultMessage creates a tool-result Message tied to a prior call.
func ToolResultMessage(toolCallID, content string, isError bool) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		IsError:    isError,
	}
}

// Request is the input to Client.Complete.
type Request struct {
	Model       string           `json:"model"`
	Provider    string           `json:"provider,omitempty"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// FinishReason describes why generation stopped.
type FinishReason string

const (
	FinishStop     FinishReason = "stop"
	FinishToolCall FinishReason = "tool_call"
	FinishLength   FinishReason = "length"
)

// Response is the output of Client.Complete. Either Text holds a final
// assistant reply, or ToolCall holds the requested invocation.
type Response struct {
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	Provider     string       `json:"provider"`
	Text         string       `json:"text,omitempty"`
	ToolCall     *ToolCall    `json:"tool_call,omitempty"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`
}

// IsFinal reports whether the response is a terminal answer rather than
// a tool invocation request.
func (r *Response) IsFinal() bool {
	return r.ToolCall == nil
}

// TrimmedText returns the response text with surrounding whitespace removed.
func (r *Response) TrimmedText() string {
	return strings.TrimSpace(r.Text)
}
