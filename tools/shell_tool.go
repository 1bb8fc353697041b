package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	defaultShellTimeout = 10 * time.Second
	maxShellTimeout     = 10 * time.Minute
)

var pythonTokenRe = regexp.MustCompile(`\bpython\b`)

// rewritePython replaces bare python invocations with python3, leaving
// python3 and commands like ipython alone.
func rewritePython(command string) (string, bool) {
	rewritten := pythonTokenRe.ReplaceAllString(command, "python3")
	return rewritten, rewritten != command
}

// NewShellTool returns the shell tool. Commands run in the workspace
// with a filtered environment; timeouts kill the whole process group.
// Command-level safety policy lives in the safe-mode gate, not here.
func NewShellTool(ws *Workspace) Tool {
	return Tool{
		Name:        "shell",
		Description: "Execute a shell command in the workspace, e.g. 'git reflog' or 'ls -la'. Use python3 rather than python. Optional timeout in seconds (default 10).",
		Parameters: objectSchema(map[string]any{
			"command": map[string]any{"type": "string", "description": "The command to execute."},
			"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds."},
		}, "command"),
		ReadOnly: false,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			command, _ := StringArg(args, "command")

			timeout := defaultShellTimeout
			if secs, ok := IntArg(args, "timeout"); ok && secs > 0 {
				timeout = time.Duration(secs) * time.Second
				if timeout > maxShellTimeout {
					timeout = maxShellTimeout
				}
			}

			// python2 is commonly absent; rewrite bare python invocations.
			note := ""
			if rewritten, changed := rewritePython(command); changed {
				command = rewritten
				note = "Note: command modified to use python3.\n"
			}

			result, err := ws.Exec(ctx, command, timeout)
			if err != nil {
				return "", err
			}
			if result.TimedOut {
				return "", fmt.Errorf("command timed out after %s: %s", timeout, command)
			}

			var sb strings.Builder
			sb.WriteString(note)
			if result.Stdout != "" {
				sb.WriteString("Output:\n" + result.Stdout)
			}
			if result.Stderr != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString("Errors:\n" + result.Stderr)
				appendErrorHint(&sb, result.Stderr)
			}
			fmt.Fprintf(&sb, "\nExit code: %d", result.ExitCode)
			return sb.String(), nil
		},
	}
}

// appendErrorHint recognizes common failure shapes in stderr and adds a
// recovery suggestion the model tends to act on.
func appendErrorHint(sb *strings.Builder, stderr string) {
	switch {
	case strings.Contains(stderr, "No module named"):
		sb.WriteString("\nSuggestion: install the missing module with pip3.")
	case strings.Contains(stderr, "command not found"):
		sb.WriteString("\nSuggestion: install the missing command or check its spelling.")
	}
}
