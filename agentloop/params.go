package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nv8300/cc-agent/llm"
)

const paramGenSystemPrompt = `You turn a task description into run parameters for an engineering agent. Respond with a single JSON object and nothing else:

{"prompt": "<detailed instruction for the agent>", "subagent_type": "<one of: %s>", "safe_mode": <true if the task only inspects and never modifies anything>, "max_steps": <estimated steps needed, 1-20>}

Pick the most specific subagent type that fits. Expand the description into a prompt with enough context for an agent that sees nothing else.`

// GenerateParams asks the model to expand a raw task description into a
// full TaskConfig. Any failure falls back to conservative defaults so a
// flaky parameter call never blocks the run itself.
func GenerateParams(ctx context.Context, client llm.Client, description string) TaskConfig {
	fallback := TaskConfig{
		Description:  description,
		Prompt:       description,
		SubagentType: "general-purpose",
		SafeMode:     false,
		MaxSteps:     DefaultMaxSteps,
	}

	var types []string
	for _, p := range AvailableProfiles() {
		types = append(types, p.Type)
	}

	resp, err := client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			llm.SystemMessage(fmt.Sprintf(paramGenSystemPrompt, strings.Join(types, ", "))),
			llm.UserMessage(description),
		},
	})
	if err != nil {
		return fallback
	}

	body := extractJSONObject(resp.Text)
	if body == "" || !gjson.Valid(body) {
		return fallback
	}

	cfg := fallback
	if v := gjson.Get(body, "prompt"); v.Exists() && v.String() != "" {
		cfg.Prompt = v.String()
	}
	if v := gjson.Get(body, "subagent_type"); v.Exists() {
		if _, ok := ProfileByType(v.String()); ok {
			cfg.SubagentType = v.String()
		}
	}
	if v := gjson.Get(body, "safe_mode"); v.Exists() {
		cfg.SafeMode = v.Bool()
	}
	if v := gjson.Get(body, "max_steps"); v.Exists() && v.Int() > 0 {
		cfg.MaxSteps = int(v.Int())
	}
	cfg.normalize()
	return cfg
}

// extractJSONObject pulls the outermost {...} from model output that may
// wrap the JSON in prose or a code fence.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
