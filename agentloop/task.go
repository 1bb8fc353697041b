package agentloop

const (
	// DefaultMaxSteps bounds a run when the caller does not specify a
	// budget.
	DefaultMaxSteps = 20
	// MaxStepsCeiling is the hard upper bound on any step budget.
	MaxStepsCeiling = 20
)

// TaskConfig describes one bounded run of the agent loop.
type TaskConfig struct {
	// Description is the raw task statement, kept for logging and for
	// parameter generation.
	Description string `json:"description,omitempty"`
	// Prompt is the instruction handed to the model as the user turn.
	Prompt string `json:"prompt"`
	// SubagentType selects the profile; empty means general-purpose.
	SubagentType string `json:"subagent_type,omitempty"`
	// SafeMode restricts the run to read-only tools.
	SafeMode bool `json:"safe_mode"`
	// MaxSteps is the step budget, clamped to [1, 20]; 0 means default.
	MaxSteps int `json:"max_steps"`
	// Model overrides the profile's model when non-empty.
	Model string `json:"model,omitempty"`
	// Provider overrides the client's default provider when non-empty.
	Provider string `json:"provider,omitempty"`
}

// normalize clamps the step budget and fills defaults in place.
func (c *TaskConfig) normalize() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxSteps > MaxStepsCeiling {
		c.MaxSteps = MaxStepsCeiling
	}
	if c.SubagentType == "" {
		c.SubagentType = "general-purpose"
	}
	if c.Prompt == "" {
		c.Prompt = c.Description
	}
}

// Profile configures a subagent type: its system prompt, preferred
// model, and the subset of registered tools it may use.
type Profile struct {
	Type         string
	Description  string
	SystemPrompt string
	Model        string
	// Tools restricts the profile to named tools; empty means all
	// registered tools.
	Tools []string
}

const basePromptSuffix = `

Work step by step. Use one tool at a time and read its result before deciding the next action. When you have enough information, answer directly without calling another tool. Your final response should be a complete, self-contained answer to the task.`

var profiles = []Profile{
	{
		Type:        "general-purpose",
		Description: "General agent for research, code search, and multi-step tasks.",
		SystemPrompt: `You are a capable engineering agent handling a delegated task. You can read and modify files, search the workspace, run shell commands, and fetch web pages.` + basePromptSuffix,
	},
	{
		Type:        "code-reviewer",
		Description: "Reviews code for correctness, style, and potential bugs.",
		SystemPrompt: `You are a meticulous code reviewer. Examine the code the task points at, looking for correctness issues, race conditions, error-handling gaps, and style problems. Cite files and line numbers in your findings. Do not modify anything.` + basePromptSuffix,
		Tools:        []string{"read_file", "glob", "grep", "think"},
	},
	{
		Type:        "researcher",
		Description: "Gathers and synthesizes information from the workspace and the web.",
		SystemPrompt: `You are a research agent. Gather information relevant to the task from workspace files and from the web, then synthesize a concise, well-organized answer. Prefer primary sources and quote sparingly.` + basePromptSuffix,
		Tools:        []string{"read_file", "glob", "grep", "web_search", "web_fetch", "think"},
	},
	{
		Type:        "data-scientist",
		Description: "Analyzes data files and runs computations via shell and python3.",
		SystemPrompt: `You are a data analysis agent. Inspect the data the task names, run computations with shell commands and python3 where needed, and report findings with concrete numbers.` + basePromptSuffix,
		Tools:        []string{"read_file", "glob", "grep", "shell", "write_file", "think"},
	},
}

// ProfileByType returns the profile for a subagent type.
func ProfileByType(subagentType string) (Profile, bool) {
	for _, p := range profiles {
		if p.Type == subagentType {
			return p, true
		}
	}
	return Profile{}, false
}

// AvailableProfiles returns all known profiles.
func AvailableProfiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}
