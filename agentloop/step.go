package agentloop

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nv8300/cc-agent/llm"
	"github.com/nv8300/cc-agent/tools"
)

// stepOutcome is the result of one loop step.
type stepOutcome int

const (
	// outcomeContinue means the step executed a tool and the loop should
	// take another step if budget remains.
	outcomeContinue stepOutcome = iota
	// outcomeFinal means the model answered without requesting a tool.
	outcomeFinal
)

// stepExecutor runs individual steps of one task: model call, tool
// dispatch, transcript bookkeeping. Owned by a single run.
type stepExecutor struct {
	client   llm.Client
	registry *tools.Registry
	gate     *SafeModeGate
	emitter  *EventEmitter
	history  *History
	log      zerolog.Logger

	model      string
	provider   string
	toolFilter []string
	safeMode   bool

	// executed tracks tool call signatures already dispatched this run
	// so a byte-identical repeat is answered from the transcript instead
	// of re-executing.
	executed map[string]bool

	stats *RunStats
}

// runStep performs one iteration: request the next model response and,
// if it asks for a tool, dispatch it and record the result.
func (e *stepExecutor) runStep(ctx context.Context) (stepOutcome, error) {
	req := llm.Request{
		Model:    e.model,
		Provider: e.provider,
		Messages: e.history.Messages(),
		Tools:    e.registry.Definitions(e.toolFilter),
	}

	e.stats.APICalls++
	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		return outcomeContinue, err
	}

	call := resp.ToolCall
	text := resp.Text
	if call == nil {
		// Some providers return the tool call embedded in the text.
		if parsed, remainder := llm.ParseToolCall(text); parsed != nil {
			call, text = parsed, remainder
		}
	}

	e.history.AddAssistant(text, call)
	e.emitter.Emit(EventModelResponse, map[string]any{
		"text":      text,
		"has_tool":  call != nil,
		"usage_in":  resp.Usage.InputTokens,
		"usage_out": resp.Usage.OutputTokens,
	})

	if call == nil {
		return outcomeFinal, nil
	}

	e.dispatch(ctx, *call)
	return outcomeContinue, nil
}

// dispatch runs one tool call through duplicate suppression, the
// safe-mode gate, and the registry. Every path records a tool result
// turn so the transcript stays coherent for the next model request.
func (e *stepExecutor) dispatch(ctx context.Context, call llm.ToolCall) {
	e.emitter.Emit(EventToolCall, map[string]any{
		"tool": call.Name, "call_id": call.ID, "args": string(call.Arguments),
	})

	sig := toolCallSignature(call.Name, call.Arguments)
	if e.executed[sig] {
		msg := "This exact tool call was already executed in this run; its result is in the conversation above. Use that result, or call the tool with different arguments."
		e.history.AddToolResult(call.ID, msg, true)
		e.emitter.Emit(EventDuplicateSkip, map[string]any{"tool": call.Name, "call_id": call.ID})
		e.log.Debug().Str("tool", call.Name).Msg("duplicate tool call skipped")
		return
	}

	if blocked, reason := e.gate.Check(call, e.safeMode); blocked {
		e.history.AddToolResult(call.ID, reason, true)
		e.emitter.Emit(EventSafeModeBlock, map[string]any{
			"tool": call.Name, "call_id": call.ID, "reason": reason,
		})
		e.log.Warn().Str("tool", call.Name).Str("reason", reason).Msg("tool call blocked")
		return
	}

	e.executed[sig] = true
	e.stats.ToolCalls++

	result := e.registry.Invoke(ctx, call)
	e.history.AddToolResult(call.ID, result.Text(), !result.OK())
	e.emitter.Emit(EventToolResult, map[string]any{
		"tool": call.Name, "call_id": call.ID,
		"ok":     result.OK(),
		"output": result.Full, // untruncated, for the host only
		"error":  result.Err,
	})
	if result.OK() {
		e.log.Debug().Str("tool", call.Name).Int("bytes", len(result.Full)).Msg("tool executed")
	} else {
		e.log.Debug().Str("tool", call.Name).Str("error", result.Err).Msg("tool failed")
	}
}
