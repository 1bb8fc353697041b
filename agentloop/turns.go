package agentloop

import (
	"time"

	"github.com/nv8300/cc-agent/llm"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnSystem     TurnKind = "system"
	TurnUser       TurnKind = "user"
	TurnAssistant  TurnKind = "assistant"
	TurnToolResult TurnKind = "tool_result"
	TurnSteering   TurnKind = "steering"
)

// Turn is a single entry in the run transcript.
type Turn struct {
	Kind      TurnKind     `json:"kind"`
	Timestamp time.Time    `json:"timestamp"`
	Content   string       `json:"content"`
	ToolCall  *llm.ToolCall `json:"tool_call,omitempty"`
	// ToolCallID and IsError apply to tool_result turns.
	ToolCallID string `json:"tool_call_id,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// History is the append-only transcript of a run. It is owned by a
// single run goroutine and needs no locking.
type History struct {
	turns []Turn
}

func (h *History) add(t Turn) {
	t.Timestamp = time.Now()
	h.turns = append(h.turns, t)
}

// AddSystem appends the system prompt turn.
func (h *History) AddSystem(content string) {
	h.add(Turn{Kind: TurnSystem, Content: content})
}

// AddUser appends a user turn.
func (h *History) AddUser(content string) {
	h.add(Turn{Kind: TurnUser, Content: content})
}

// AddAssistant appends the model's response, with its tool call if the
// response requested one.
func (h *History) AddAssistant(content string, call *llm.ToolCall) {
	h.add(Turn{Kind: TurnAssistant, Content: content, ToolCall: call})
}

// AddToolResult appends the outcome of a tool invocation.
func (h *History) AddToolResult(toolCallID, content string, isError bool) {
	h.add(Turn{Kind: TurnToolResult, Content: content, ToolCallID: toolCallID, IsError: isError})
}

// AddSteering appends an injected correction. Steering turns reach the
// model as user messages so it treats them as instructions.
func (h *History) AddSteering(content string) {
	h.add(Turn{Kind: TurnSteering, Content: content})
}

// Turns returns a copy of the transcript.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns.
func (h *History) Len() int { return len(h.turns) }

// LastAssistantText returns the text of the most recent assistant turn,
// used as the partial answer when a run ends without a final response.
func (h *History) LastAssistantText() string {
	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Kind == TurnAssistant && h.turns[i].Content != "" {
			return h.turns[i].Content
		}
	}
	return ""
}

// Messages converts the transcript into the message list for the next
// model request.
func (h *History) Messages() []llm.Message {
	var messages []llm.Message
	for _, turn := range h.turns {
		switch turn.Kind {
		case TurnSystem:
			messages = append(messages, llm.SystemMessage(turn.Content))
		case TurnUser, TurnSteering:
			messages = append(messages, llm.UserMessage(turn.Content))
		case TurnAssistant:
			msg := llm.AssistantMessage(turn.Content)
			msg.ToolCall = turn.ToolCall
			messages = append(messages, msg)
		case TurnToolResult:
			messages = append(messages, llm.ToolResultMessage(turn.ToolCallID, turn.Content, turn.IsError))
		}
	}
	return messages
}
