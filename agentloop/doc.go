// Package agentloop runs bounded, tool-using model tasks.
//
// A Runner takes a TaskConfig (prompt, subagent profile, safe mode,
// step budget) and drives the model/tool loop until the model answers
// without requesting a tool, the step budget runs out, the context is
// cancelled, or an unrecoverable error occurs. Each step is one model
// call followed by at most one tool execution.
//
// The loop enforces run-level safety on top of the tool registry:
// destructive shell commands are always refused, and in safe mode only
// read-only tools may execute. Blocked and duplicate calls still
// produce tool result turns so the model can recover within the run.
//
// # Quick Start
//
//	registry := tools.NewRegistry()
//	tools.RegisterBuiltins(registry, tools.NewWorkspace(dir))
//	runner := agentloop.NewRunner(client, registry)
//
//	result, err := runner.Run(ctx, agentloop.TaskConfig{
//	    Prompt:   "Summarize the repository layout",
//	    SafeMode: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Answer)
//	fmt.Println(result.Summary())
//
// Hosts that want progress can drain runner.Events() concurrently.
package agentloop
