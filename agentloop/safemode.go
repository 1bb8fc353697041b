package agentloop

import (
	"fmt"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/tidwall/gjson"

	"github.com/nv8300/cc-agent/llm"
	"github.com/nv8300/cc-agent/tools"
)

// safeShellCommands are the only commands the shell tool may run in safe
// mode. Keyed by the first token of the command line.
var safeShellCommands = map[string]bool{
	"ls": true, "cat": true, "grep": true, "find": true,
	"head": true, "tail": true, "pwd": true, "which": true, "wc": true,
	"git": true, // further restricted to read-only subcommands below
}

// safeGitSubcommands are the git subcommands permitted in safe mode.
var safeGitSubcommands = map[string]bool{
	"log": true, "reflog": true, "status": true, "diff": true,
	"show": true, "branch": true,
}

// dangerousPrefixes match commands that are never run, safe mode or not.
var dangerousPrefixes = []string{
	"sudo ",
	"rm -rf ",
	"rm -r ",
	"mv / ",
	"cp / ",
	"dd ",
	"shutdown",
	"reboot",
	"mkfs",
}

// SafeModeGate decides whether a tool call may execute, consulting the
// registry's read-only classification and, for the shell tool, the
// command line itself.
type SafeModeGate struct {
	registry *tools.Registry
}

// NewSafeModeGate creates a gate over the given registry.
func NewSafeModeGate(registry *tools.Registry) *SafeModeGate {
	return &SafeModeGate{registry: registry}
}

// Check returns blocked=true with a reason the model can read when the
// call must not execute. Unknown tools pass through; the registry
// produces the unknown-tool error itself.
func (g *SafeModeGate) Check(call llm.ToolCall, safeMode bool) (blocked bool, reason string) {
	command := ""
	if call.Name == "shell" {
		command = gjson.GetBytes(call.Arguments, "command").String()
		if bad, why := dangerousCommand(command); bad {
			return true, fmt.Sprintf("command blocked: %s. Command was: %s", why, command)
		}
	}

	if !safeMode {
		return false, ""
	}

	readOnly, known := g.registry.ReadOnly(call.Name)
	if !known {
		return false, ""
	}
	if readOnly {
		return false, ""
	}

	if call.Name == "shell" {
		if allowed, why := safeModeShellAllowed(command); !allowed {
			return true, fmt.Sprintf("shell command blocked by safe mode: %s. Command was: %s", why, command)
		}
		return false, ""
	}

	return true, fmt.Sprintf("tool %q blocked by safe mode: it can modify the workspace. Use read-only tools, or re-run the task without safe mode.", call.Name)
}

// dangerousCommand reports whether the command is on the always-blocked
// list regardless of mode.
func dangerousCommand(command string) (bool, string) {
	trimmed := strings.TrimSpace(command)
	for _, prefix := range dangerousPrefixes {
		if strings.HasPrefix(trimmed, prefix) || trimmed == strings.TrimSpace(prefix) {
			return true, fmt.Sprintf("%q is a destructive command pattern", strings.TrimSpace(prefix))
		}
	}
	return false, ""
}

// safeModeShellAllowed permits only simple read-only commands: an
// allowlisted program, no pipes or redirection, and for git only
// read-only subcommands.
func safeModeShellAllowed(command string) (bool, string) {
	if strings.ContainsAny(command, "|><;&$`") {
		return false, "pipes, redirection, and command chaining are not allowed in safe mode"
	}

	tokens, err := shellwords.Parse(command)
	if err != nil {
		return false, fmt.Sprintf("could not parse command: %v", err)
	}
	if len(tokens) == 0 {
		return false, "empty command"
	}

	program := tokens[0]
	if !safeShellCommands[program] {
		return false, fmt.Sprintf("%q is not on the safe-mode allowlist", program)
	}
	if program == "git" {
		if len(tokens) < 2 || !safeGitSubcommands[tokens[1]] {
			return false, "only read-only git subcommands (log, reflog, status, diff, show, branch) are allowed in safe mode"
		}
	}
	return true, ""
}
