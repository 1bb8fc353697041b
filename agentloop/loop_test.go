package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nv8300/cc-agent/llm"
	"github.com/nv8300/cc-agent/tools"
)

// scriptedClient returns canned responses in order. Past the end of the
// script it keeps returning the last entry.
type scriptedClient struct {
	script []scriptEntry
	calls  atomic.Int32
	// onCall runs before returning the nth response (0-based).
	onCall func(n int)
}

type scriptEntry struct {
	resp *llm.Response
	err  error
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	n := int(c.calls.Add(1)) - 1
	if c.onCall != nil {
		c.onCall(n)
	}
	if len(c.script) == 0 {
		return &llm.Response{Text: "done", FinishReason: llm.FinishStop}, nil
	}
	if n >= len(c.script) {
		n = len(c.script) - 1
	}
	return c.script[n].resp, c.script[n].err
}

func textResponse(text string) scriptEntry {
	return scriptEntry{resp: &llm.Response{Text: text, FinishReason: llm.FinishStop}}
}

func toolCallResponse(name, args string) scriptEntry {
	return scriptEntry{resp: &llm.Response{
		ToolCall:     &llm.ToolCall{ID: "call-" + name, Name: name, Arguments: json.RawMessage(args)},
		FinishReason: llm.FinishToolCall,
	}}
}

// testRegistry registers a read-only probe tool and a mutating tool
// whose execution count is observable.
func testRegistry(t *testing.T) (*tools.Registry, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	reg := tools.NewRegistry()
	var probeRuns, mutateRuns atomic.Int32

	reg.MustRegister(tools.Tool{
		Name:     "probe",
		ReadOnly: true,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"x": map[string]any{"type": "integer"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			probeRuns.Add(1)
			return "probe result", nil
		},
	})
	reg.MustRegister(tools.Tool{
		Name:     "mutate",
		ReadOnly: false,
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			mutateRuns.Add(1)
			return "mutated", nil
		},
	})
	return reg, &probeRuns, &mutateRuns
}

func drainEvents(r *Runner) []RunEvent {
	var events []RunEvent
	for {
		select {
		case ev := <-r.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func hasEvent(events []RunEvent, kind EventKind) bool {
	for _, ev := range events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func TestRunImmediateFinalAnswer(t *testing.T) {
	reg, _, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{textResponse("the answer")}}
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "what is it"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFinalAnswer {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	if result.Answer != "the answer" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.Stats.StepsUsed != 1 || result.Stats.APICalls != 1 || result.Stats.ToolCalls != 0 {
		t.Errorf("Stats = %+v", result.Stats)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestRunToolThenAnswer(t *testing.T) {
	reg, probeRuns, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{
		toolCallResponse("probe", `{"x": 1}`),
		textResponse("found it"),
	}}
	runner := NewRunner(client, reg)

	// Safe mode on: probe is read-only, so the run proceeds normally.
	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "look it up", MaxSteps: 10, SafeMode: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFinalAnswer || result.Answer != "found it" {
		t.Errorf("result = %+v", result)
	}
	if result.Stats.StepsUsed != 2 || result.Stats.ToolCalls != 1 || result.Stats.APICalls != 2 {
		t.Errorf("Stats = %+v", result.Stats)
	}
	if probeRuns.Load() != 1 {
		t.Errorf("probe executed %d times", probeRuns.Load())
	}
}

func TestRunBudgetExhausted(t *testing.T) {
	reg, probeRuns, _ := testRegistry(t)
	// Every response requests a tool, each with fresh arguments so
	// neither duplicate suppression nor loop detection kicks in.
	calls := 0
	clientFn := clientFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		calls++
		return &llm.Response{
			ToolCall: &llm.ToolCall{
				ID:        fmt.Sprintf("c%d", calls),
				Name:      "probe",
				Arguments: json.RawMessage(fmt.Sprintf(`{"x": %d}`, calls)),
			},
			FinishReason: llm.FinishToolCall,
		}, nil
	})
	runner := NewRunner(clientFn, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "loop forever", MaxSteps: 3})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeBudgetExhausted {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	if result.Stats.StepsUsed != 3 {
		t.Errorf("StepsUsed = %d, want exactly the budget", result.Stats.StepsUsed)
	}
	if result.Stats.APICalls != 3 || int(probeRuns.Load()) != 3 {
		t.Errorf("APICalls = %d, probe runs = %d", result.Stats.APICalls, probeRuns.Load())
	}
}

type clientFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

func (f clientFunc) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return f(ctx, req)
}

func TestSafeModeNeverExecutesMutatingTool(t *testing.T) {
	reg, _, mutateRuns := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{
		toolCallResponse("mutate", `{}`),
		textResponse("done"),
	}}
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "change it", SafeMode: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFinalAnswer {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	if mutateRuns.Load() != 0 {
		t.Fatalf("mutating tool executed %d times in safe mode", mutateRuns.Load())
	}
	if result.Stats.ToolCalls != 0 {
		t.Errorf("ToolCalls = %d, blocked calls must not count", result.Stats.ToolCalls)
	}
	if !hasEvent(drainEvents(runner), EventSafeModeBlock) {
		t.Error("no safe_mode_block event emitted")
	}
}

func TestUnknownToolContinuesRun(t *testing.T) {
	reg, _, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{
		toolCallResponse("no_such_tool", `{}`),
		textResponse("recovered"),
	}}
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFinalAnswer || result.Answer != "recovered" {
		t.Errorf("result = %+v", result)
	}
	if result.Stats.StepsUsed != 2 {
		t.Errorf("StepsUsed = %d", result.Stats.StepsUsed)
	}
}

func TestDuplicateToolCallSkipped(t *testing.T) {
	reg, probeRuns, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{
		toolCallResponse("probe", `{"x": 7}`),
		toolCallResponse("probe", `{"x": 7}`),
		textResponse("done"),
	}}
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if probeRuns.Load() != 1 {
		t.Errorf("probe executed %d times, duplicate should be suppressed", probeRuns.Load())
	}
	if result.Stats.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d", result.Stats.ToolCalls)
	}
	if !hasEvent(drainEvents(runner), EventDuplicateSkip) {
		t.Error("no duplicate_skip event emitted")
	}
}

func TestCancellationBetweenSteps(t *testing.T) {
	reg, _, _ := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())

	client := clientFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		cancel() // cancel mid-run; the loop checks between steps
		return &llm.Response{
			ToolCall:     &llm.ToolCall{ID: "c1", Name: "probe", Arguments: json.RawMessage(`{"x": 1}`)},
			FinishReason: llm.FinishToolCall,
		}, nil
	})
	runner := NewRunner(client, reg)

	result, err := runner.Run(ctx, TaskConfig{Prompt: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeCancelled {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	if result.Stats.StepsUsed != 1 {
		t.Errorf("StepsUsed = %d", result.Stats.StepsUsed)
	}
}

func TestFatalModelErrorFailsRun(t *testing.T) {
	reg, _, _ := testRegistry(t)
	client := clientFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return nil, &llm.InvalidRequestError{ClientError: llm.ClientError{Message: "bad request"}}
	})
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go"})
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	if result.Err == nil {
		t.Error("result.Err not set")
	}
}

func TestMaxStepsClamped(t *testing.T) {
	reg, _, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{textResponse("ok")}}
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go", MaxSteps: 100})
	if err != nil {
		t.Fatal(err)
	}
	if result.Stats.StepsBudgeted != MaxStepsCeiling {
		t.Errorf("StepsBudgeted = %d, want %d", result.Stats.StepsBudgeted, MaxStepsCeiling)
	}

	result, err = runner.Run(context.Background(), TaskConfig{Prompt: "go", MaxSteps: -5})
	if err != nil {
		t.Fatal(err)
	}
	if result.Stats.StepsBudgeted != DefaultMaxSteps {
		t.Errorf("StepsBudgeted = %d, want default", result.Stats.StepsBudgeted)
	}
}

func TestUnknownSubagentTypeErrors(t *testing.T) {
	reg, _, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{textResponse("ok")}}
	runner := NewRunner(client, reg)

	_, err := runner.Run(context.Background(), TaskConfig{Prompt: "go", SubagentType: "wizard"})
	if err == nil {
		t.Fatal("expected error for unknown subagent type")
	}
	if !strings.Contains(err.Error(), "wizard") || !strings.Contains(err.Error(), "general-purpose") {
		t.Errorf("err = %v, want unknown type and available types listed", err)
	}
}

func TestEmbeddedToolCallTextParsed(t *testing.T) {
	reg, probeRuns, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{
		textResponse(`Let me check.<FunctionCallBegin>{"name": "probe", "parameters": {"x": 2}}<FunctionCallEnd>`),
		textResponse("done"),
	}}
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFinalAnswer {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	if probeRuns.Load() != 1 {
		t.Errorf("probe executed %d times, embedded call not dispatched", probeRuns.Load())
	}
}

func TestConsecutiveTimeoutsFailRun(t *testing.T) {
	reg, _, _ := testRegistry(t)
	client := clientFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return nil, &llm.TimeoutError{ClientError: llm.ClientError{Message: "model call timed out"}}
	})
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go", MaxSteps: 10})
	if err == nil {
		t.Fatal("expected error after repeated timeouts")
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	if result.Stats.StepsUsed != 3 {
		t.Errorf("StepsUsed = %d, want 3 (the escalation threshold)", result.Stats.StepsUsed)
	}
	if !strings.Contains(err.Error(), "consecutive step timeouts") {
		t.Errorf("err = %v", err)
	}
}

func TestSingleTimeoutRecovers(t *testing.T) {
	reg, _, _ := testRegistry(t)
	calls := 0
	client := clientFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		calls++
		if calls == 1 {
			return nil, &llm.TimeoutError{ClientError: llm.ClientError{Message: "model call timed out"}}
		}
		return &llm.Response{Text: "recovered", FinishReason: llm.FinishStop}, nil
	})
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFinalAnswer || result.Answer != "recovered" {
		t.Errorf("result = %+v", result)
	}
	// The timed-out step still consumed budget.
	if result.Stats.StepsUsed != 2 {
		t.Errorf("StepsUsed = %d", result.Stats.StepsUsed)
	}
}

func TestEmptyResponseSteeredOnce(t *testing.T) {
	reg, _, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{
		textResponse(""),
		textResponse("actual answer"),
	}}
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeFinalAnswer || result.Answer != "actual answer" {
		t.Errorf("result = %+v", result)
	}
	if result.Stats.StepsUsed != 2 {
		t.Errorf("StepsUsed = %d, want 2 (one retry after the empty response)", result.Stats.StepsUsed)
	}
}

func TestEmptyResponseAcceptedAfterSteering(t *testing.T) {
	reg, _, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{
		textResponse(""),
		textResponse(""),
	}}
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go"})
	if err != nil {
		t.Fatal(err)
	}
	// The nudge happens once; a second empty response ends the run
	// rather than burning the rest of the budget.
	if result.Outcome != OutcomeFinalAnswer {
		t.Errorf("Outcome = %s", result.Outcome)
	}
	if result.Stats.StepsUsed != 2 {
		t.Errorf("StepsUsed = %d", result.Stats.StepsUsed)
	}
}

func TestRunSummaryFormat(t *testing.T) {
	reg, _, _ := testRegistry(t)
	client := &scriptedClient{script: []scriptEntry{textResponse("ok")}}
	runner := NewRunner(client, reg)

	result, err := runner.Run(context.Background(), TaskConfig{Prompt: "go"})
	if err != nil {
		t.Fatal(err)
	}
	s := result.Summary()
	for _, want := range []string{"outcome: final_answer", "steps: 1/20", "api calls: 1"} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary %q missing %q", s, want)
		}
	}
}
