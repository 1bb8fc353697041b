package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the outcome of a shell command execution.
type ExecResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// sensitiveEnvSuffixes are case-insensitive suffixes for environment
// variables excluded from child processes.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// alwaysAllowedEnv are passed through regardless of suffix filtering.
var alwaysAllowedEnv = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "PYENV_ROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnv(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filteredEnviron() []string {
	var out []string
	for _, entry := range os.Environ() {
		name, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if alwaysAllowedEnv[name] || !isSensitiveEnv(name) {
			out = append(out, entry)
		}
	}
	return out
}

// Workspace is the directory the built-in tools operate in. Relative
// paths resolve against its root; commands run with a filtered
// environment and are killed as a process group on timeout.
type Workspace struct {
	root string
}

// NewWorkspace creates a workspace rooted at dir, defaulting to the
// current working directory.
func NewWorkspace(dir string) *Workspace {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return &Workspace{root: dir}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.root, path)
}

// ReadFile returns the file content formatted with 1-based line numbers,
// honoring an optional line offset and limit.
func (w *Workspace) ReadFile(path string, offset, limit int) (string, error) {
	data, err := os.ReadFile(w.resolve(path))
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	start := 0
	if offset > 0 {
		start = offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&sb, "%d | %s\n", i+1, lines[i])
	}
	return sb.String(), nil
}

// WriteFile writes content to path, creating parent directories.
func (w *Workspace) WriteFile(path, content string) error {
	resolved := w.resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fmt.Errorf("write_file: %w", err)
	}
	return os.WriteFile(resolved, []byte(content), 0644)
}

// EditFile replaces a unique occurrence of oldStr with newStr. Zero or
// multiple occurrences are errors so the model can disambiguate.
func (w *Workspace) EditFile(path, oldStr, newStr string) error {
	resolved := w.resolve(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("edit_file: %w", err)
	}
	content := string(data)

	switch count := strings.Count(content, oldStr); {
	case count == 0:
		return fmt.Errorf("edit_file: old_string not found in %s", path)
	case count > 1:
		return fmt.Errorf("edit_file: old_string occurs %d times in %s, provide more context", count, path)
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	return os.WriteFile(resolved, []byte(updated), 0644)
}

// Exec runs a shell command in the workspace with the given timeout.
func (w *Workspace) Exec(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, shellArg := "/bin/bash", "-c"
	if runtime.GOOS == "windows" {
		shell, shellArg = "cmd.exe", "/c"
	}

	cmd := exec.CommandContext(ctx, shell, shellArg, command)
	cmd.Dir = w.root
	cmd.Env = filteredEnviron()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("exec: %w", err)
		}
	}
	return result, nil
}

// Grep searches file contents under the workspace, preferring ripgrep
// and falling back to grep. include restricts the search to matching
// file names.
func (w *Workspace) Grep(ctx context.Context, pattern, include string, maxResults int) (string, error) {
	if rgPath, err := exec.LookPath("rg"); err == nil {
		args := []string{pattern, w.root, "--line-number", "--no-heading"}
		if include != "" {
			args = append(args, "--glob", include)
		}
		if maxResults > 0 {
			args = append(args, "--max-count", fmt.Sprintf("%d", maxResults))
		}
		cmd := exec.CommandContext(ctx, rgPath, args...)
		cmd.Dir = w.root
		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		_ = cmd.Run() // exit 1 means no matches
		return stdout.String(), nil
	}

	args := []string{"-rn", pattern, w.root}
	if include != "" {
		args = append([]string{"--include", include}, args...)
	}
	cmd := exec.CommandContext(ctx, "grep", args...)
	cmd.Dir = w.root
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	_ = cmd.Run()
	return stdout.String(), nil
}
