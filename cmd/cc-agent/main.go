// Command cc-agent runs a bounded, tool-using agent task from the
// terminal.
//
//	cc-agent "summarize the packages in this repo" --safe
//	cc-agent --subagent code-reviewer --max-steps 10 "review internal/server"
//
// Unless --subagent, --safe, or --max-steps are given, the run
// parameters are generated from the task description by the model.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nv8300/cc-agent/agentloop"
	"github.com/nv8300/cc-agent/llm"
	"github.com/nv8300/cc-agent/tools"
)

var (
	flagPath     string
	flagSubagent string
	flagSafe     bool
	flagMaxSteps int
	flagModel    string
	flagProvider string
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:   "cc-agent [flags] \"task description\"",
		Short: "Run a bounded agent task against the current workspace",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
		// Errors are printed with context below.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Flags().StringVar(&flagPath, "path", "", "workspace directory (default: current directory)")
	root.Flags().StringVar(&flagSubagent, "subagent", "", "subagent type: "+profileTypes())
	root.Flags().BoolVar(&flagSafe, "safe", false, "safe mode: read-only tools only")
	root.Flags().IntVar(&flagMaxSteps, "max-steps", 0, "step budget, 1-20 (default 20)")
	root.Flags().StringVar(&flagModel, "model", "", "model name override")
	root.Flags().StringVar(&flagProvider, "provider", "anthropic", "model provider")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log each step and tool call")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cc-agent: %v\n", err)
		os.Exit(1)
	}
}

var defaultModels = map[string]string{
	"anthropic": "claude-3-5-sonnet-20241022",
	"openai":    "gpt-4o",
	"groq":      "llama-3.3-70b-versatile",
	"ollama":    "llama3.1",
}

func profileTypes() string {
	var types []string
	for _, p := range agentloop.AvailableProfiles() {
		types = append(types, p.Type)
	}
	return strings.Join(types, ", ")
}

func run(cmd *cobra.Command, args []string) error {
	description := args[0]

	level := zerolog.WarnLevel
	if flagVerbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("LLM_API_KEY is not set")
	}

	model := flagModel
	if model == "" {
		model = defaultModels[flagProvider]
		if model == "" {
			return fmt.Errorf("no default model for provider %q, pass --model", flagProvider)
		}
	}

	inner, err := llm.NewGollmClient(flagProvider, model, llm.WithAPIKey(apiKey))
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}
	client := llm.NewRetryingClient(inner)

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, tools.NewWorkspace(flagPath))

	cfg := buildTaskConfig(ctx, client, description, model)
	log.Info().Str("subagent_type", cfg.SubagentType).Bool("safe_mode", cfg.SafeMode).
		Int("max_steps", cfg.MaxSteps).Msg("task parameters")

	runner := agentloop.NewRunner(client, registry, agentloop.WithLogger(log))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range runner.Events() {
			if flagVerbose {
				log.Debug().Str("event", string(ev.Kind)).Fields(ev.Data).Msg("")
			}
		}
	}()

	result, err := runner.Run(ctx, cfg)
	runner.CloseEvents()
	<-done

	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	fmt.Fprintln(os.Stderr, result.Summary())
	return nil
}

// buildTaskConfig uses explicit flags when given and asks the model to
// generate the remaining parameters otherwise.
func buildTaskConfig(ctx context.Context, client llm.Client, description, model string) agentloop.TaskConfig {
	explicit := flagSubagent != "" || flagSafe || flagMaxSteps > 0

	var cfg agentloop.TaskConfig
	if explicit {
		cfg = agentloop.TaskConfig{
			Description:  description,
			Prompt:       description,
			SubagentType: flagSubagent,
			SafeMode:     flagSafe,
			MaxSteps:     flagMaxSteps,
		}
	} else {
		cfg = agentloop.GenerateParams(ctx, client, description)
	}
	cfg.Model = model
	cfg.Provider = flagProvider
	return cfg
}
