package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nv8300/cc-agent/llm"
	"github.com/nv8300/cc-agent/tools"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	// OutcomeFinalAnswer means the model answered without requesting
	// another tool.
	OutcomeFinalAnswer Outcome = "final_answer"
	// OutcomeBudgetExhausted means the step budget ran out first. A
	// normal outcome; the answer carries the last assistant text.
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	// OutcomeCancelled means the context was cancelled between steps.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFailed means an unrecoverable error stopped the run.
	OutcomeFailed Outcome = "failed"
)

// RunStats counts what a run consumed.
type RunStats struct {
	StepsUsed     int           `json:"steps_used"`
	StepsBudgeted int           `json:"steps_budgeted"`
	ToolCalls     int           `json:"tool_calls"`
	APICalls      int           `json:"api_calls"`
	Elapsed       time.Duration `json:"elapsed"`
}

// RunResult is the outcome of one task run.
type RunResult struct {
	RunID   string   `json:"run_id"`
	Answer  string   `json:"answer"`
	Outcome Outcome  `json:"outcome"`
	Model   string   `json:"model,omitempty"`
	Stats   RunStats `json:"stats"`
	// Err is set when Outcome is OutcomeFailed.
	Err error `json:"-"`
}

// Summary formats the run statistics for display.
func (r *RunResult) Summary() string {
	s := fmt.Sprintf("outcome: %s | duration: %s | steps: %d/%d | tool uses: %d | api calls: %d",
		r.Outcome, r.Stats.Elapsed.Round(time.Millisecond),
		r.Stats.StepsUsed, r.Stats.StepsBudgeted,
		r.Stats.ToolCalls, r.Stats.APICalls)
	if r.Model != "" {
		s += " | model: " + r.Model
	}
	return s
}

const (
	defaultMaxConsecutiveTimeouts = 3
	loopDetectionWindow           = 6
)

// Runner executes bounded task runs against a model client and a tool
// registry. A Runner is reusable; each Run gets fresh per-run state.
type Runner struct {
	client   llm.Client
	registry *tools.Registry
	gate     *SafeModeGate
	emitter  *EventEmitter
	log      zerolog.Logger

	stepTimeout            time.Duration
	maxConsecutiveTimeouts int
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// WithStepTimeout bounds each individual step; 0 disables the bound.
func WithStepTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.stepTimeout = d }
}

// WithMaxConsecutiveTimeouts sets how many step timeouts in a row abort
// the run.
func WithMaxConsecutiveTimeouts(n int) RunnerOption {
	return func(r *Runner) { r.maxConsecutiveTimeouts = n }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(size int) RunnerOption {
	return func(r *Runner) { r.emitter = NewEventEmitter(size) }
}

// NewRunner creates a Runner over the given client and registry.
func NewRunner(client llm.Client, registry *tools.Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:                 client,
		registry:               registry,
		gate:                   NewSafeModeGate(registry),
		emitter:                NewEventEmitter(0),
		log:                    zerolog.Nop(),
		maxConsecutiveTimeouts: defaultMaxConsecutiveTimeouts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events returns the event channel for the host application.
func (r *Runner) Events() <-chan RunEvent {
	return r.emitter.Events()
}

// CloseEvents closes the event channel once no more runs will happen.
func (r *Runner) CloseEvents() {
	r.emitter.Close()
}

// Run executes one task to completion: final answer, exhausted budget,
// cancellation, or unrecoverable failure. The returned error is non-nil
// only alongside OutcomeFailed.
func (r *Runner) Run(ctx context.Context, cfg TaskConfig) (*RunResult, error) {
	cfg.normalize()

	runID := uuid.New().String()
	r.emitter.setRunID(runID)

	profile, ok := ProfileByType(cfg.SubagentType)
	if !ok {
		var types []string
		for _, p := range AvailableProfiles() {
			types = append(types, p.Type)
		}
		return nil, fmt.Errorf("unknown subagent type %q (available: %s)",
			cfg.SubagentType, strings.Join(types, ", "))
	}

	model := profile.Model
	if cfg.Model != "" {
		model = cfg.Model
	}

	history := &History{}
	history.AddSystem(buildSystemPrompt(profile, cfg.SafeMode))
	history.AddUser(cfg.Prompt)

	result := &RunResult{
		RunID: runID,
		Model: model,
		Stats: RunStats{StepsBudgeted: cfg.MaxSteps},
	}

	exec := &stepExecutor{
		client:     r.client,
		registry:   r.registry,
		gate:       r.gate,
		emitter:    r.emitter,
		history:    history,
		log:        r.log.With().Str("run_id", runID).Logger(),
		model:      model,
		provider:   cfg.Provider,
		toolFilter: profile.Tools,
		safeMode:   cfg.SafeMode,
		executed:   make(map[string]bool),
		stats:      &result.Stats,
	}

	r.emitter.Emit(EventRunStart, map[string]any{
		"subagent_type": profile.Type,
		"safe_mode":     cfg.SafeMode,
		"max_steps":     cfg.MaxSteps,
	})
	exec.log.Info().Str("subagent_type", profile.Type).Bool("safe_mode", cfg.SafeMode).
		Int("max_steps", cfg.MaxSteps).Msg("run started")

	start := time.Now()
	defer func() {
		result.Stats.Elapsed = time.Since(start)
		r.emitter.Emit(EventRunEnd, map[string]any{
			"outcome": string(result.Outcome),
			"steps":   result.Stats.StepsUsed,
		})
		exec.log.Info().Str("outcome", string(result.Outcome)).
			Int("steps", result.Stats.StepsUsed).Int("tool_calls", result.Stats.ToolCalls).
			Msg("run finished")
	}()

	consecutiveTimeouts := 0
	steeredEmptyResponse := false

	for result.Stats.StepsUsed < cfg.MaxSteps {
		if ctx.Err() != nil {
			result.Outcome = OutcomeCancelled
			result.Answer = history.LastAssistantText()
			return result, nil
		}

		r.emitter.Emit(EventStepStart, map[string]any{"step": result.Stats.StepsUsed + 1})

		stepCtx := ctx
		var cancel context.CancelFunc
		if r.stepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		}
		outcome, err := exec.runStep(stepCtx)
		if cancel != nil {
			cancel()
		}
		result.Stats.StepsUsed++

		if err != nil {
			if ctx.Err() != nil {
				result.Outcome = OutcomeCancelled
				result.Answer = history.LastAssistantText()
				return result, nil
			}
			if llm.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
				consecutiveTimeouts++
				r.emitter.Emit(EventWarning, map[string]any{
					"message": fmt.Sprintf("step timed out (%d in a row)", consecutiveTimeouts),
				})
				if consecutiveTimeouts >= r.maxConsecutiveTimeouts {
					result.Outcome = OutcomeFailed
					result.Err = fmt.Errorf("%d consecutive step timeouts: %w", consecutiveTimeouts, err)
					r.emitter.Emit(EventError, map[string]any{"error": result.Err.Error()})
					return result, result.Err
				}
				history.AddSteering("The previous step timed out. Try a smaller or faster action.")
				continue
			}
			// The client has already retried what it could.
			result.Outcome = OutcomeFailed
			result.Err = fmt.Errorf("model request failed: %w", err)
			r.emitter.Emit(EventError, map[string]any{"error": result.Err.Error()})
			return result, result.Err
		}
		consecutiveTimeouts = 0

		if outcome == outcomeFinal {
			// An empty response with no tool call gets one steering nudge
			// before it is accepted as the final answer.
			if history.LastAssistantText() == "" && !steeredEmptyResponse {
				steeredEmptyResponse = true
				history.AddSteering("Your previous response was empty. State your final answer, or call a tool if you still need information.")
				r.emitter.Emit(EventWarning, map[string]any{
					"message": "empty model response, steering for a final answer",
				})
				continue
			}
			result.Outcome = OutcomeFinalAnswer
			result.Answer = history.LastAssistantText()
			return result, nil
		}

		if DetectRepeat(history.Turns(), loopDetectionWindow) {
			warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach or answer with what you have.", loopDetectionWindow)
			history.AddSteering(warning)
			r.emitter.Emit(EventLoopWarning, map[string]any{"message": warning})
		}
	}

	result.Outcome = OutcomeBudgetExhausted
	result.Answer = history.LastAssistantText()
	return result, nil
}

// buildSystemPrompt assembles the system prompt for a run.
func buildSystemPrompt(profile Profile, safeMode bool) string {
	prompt := profile.SystemPrompt
	if safeMode {
		prompt += "\n\nThis run is in safe mode: only read-only tools are available. Do not attempt to modify files or run commands that change state."
	}
	return prompt
}
