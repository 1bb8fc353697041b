package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// NewReadFileTool returns the read_file tool: file content with line
// numbers, optional offset/limit.
func NewReadFileTool(ws *Workspace) Tool {
	return Tool{
		Name:        "read_file",
		Description: "Read a file from the workspace. Returns content with line numbers. Supports an optional 1-based line offset and a line count limit.",
		Parameters: objectSchema(map[string]any{
			"path":   map[string]any{"type": "string", "description": "File path, relative to the workspace root."},
			"offset": map[string]any{"type": "integer", "description": "1-based line to start from."},
			"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines to return."},
		}, "path"),
		ReadOnly: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := StringArg(args, "path")
			offset, _ := IntArg(args, "offset")
			limit, _ := IntArg(args, "limit")
			return ws.ReadFile(path, offset, limit)
		},
	}
}

// NewWriteFileTool returns the write_file tool.
func NewWriteFileTool(ws *Workspace) Tool {
	return Tool{
		Name:        "write_file",
		Description: "Write content to a file, creating it and any parent directories. Overwrites existing content.",
		Parameters: objectSchema(map[string]any{
			"path":    map[string]any{"type": "string", "description": "File path, relative to the workspace root."},
			"content": map[string]any{"type": "string", "description": "Full file content to write."},
		}, "path", "content"),
		ReadOnly: false,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := StringArg(args, "path")
			content, _ := StringArg(args, "content")
			if err := ws.WriteFile(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
		},
	}
}

// NewEditFileTool returns the edit_file tool: replaces a unique
// old_string occurrence with new_string.
func NewEditFileTool(ws *Workspace) Tool {
	return Tool{
		Name:        "edit_file",
		Description: "Edit a file by replacing an exact, unique occurrence of old_string with new_string. Fails if old_string is absent or ambiguous.",
		Parameters: objectSchema(map[string]any{
			"path":       map[string]any{"type": "string", "description": "File path, relative to the workspace root."},
			"old_string": map[string]any{"type": "string", "description": "Exact text to replace; must occur exactly once."},
			"new_string": map[string]any{"type": "string", "description": "Replacement text."},
		}, "path", "old_string", "new_string"),
		ReadOnly: false,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := StringArg(args, "path")
			oldStr, _ := StringArg(args, "old_string")
			newStr, _ := StringArg(args, "new_string")
			if err := ws.EditFile(path, oldStr, newStr); err != nil {
				return "", err
			}
			return fmt.Sprintf("Edited %s", path), nil
		},
	}
}

// NewGlobTool returns the glob tool, matching files under the workspace
// with doublestar patterns such as "**/*.go".
func NewGlobTool(ws *Workspace) Tool {
	return Tool{
		Name:        "glob",
		Description: "Find files matching a glob pattern (supports ** and {a,b} alternatives), e.g. \"**/*.py\" or \"src/**/*.{ts,tsx}\". Returns matching paths relative to the workspace root.",
		Parameters: objectSchema(map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Glob pattern to match."},
		}, "pattern"),
		ReadOnly: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, _ := StringArg(args, "pattern")
			matches, err := doublestar.Glob(os.DirFS(ws.Root()), pattern)
			if err != nil {
				return "", fmt.Errorf("glob: %w", err)
			}
			if len(matches) == 0 {
				return "No files matched pattern: " + pattern, nil
			}
			return strings.Join(matches, "\n"), nil
		},
	}
}
