package tools

import (
	"context"
	"fmt"
	"regexp"
)

// NewGrepTool returns the grep tool: regex content search scoped by a
// file include pattern. The pattern is validated before the search runs
// so a bad regex is a clean argument error, not a shell failure.
func NewGrepTool(ws *Workspace) Tool {
	return Tool{
		Name:        "grep",
		Description: "Search file contents with a regular expression. Requires an include filter naming which files to search, e.g. \"*.go\" or \"*.{ts,tsx}\". Returns matching lines with file and line number.",
		Parameters: objectSchema(map[string]any{
			"pattern":     map[string]any{"type": "string", "description": "Regular expression to search for."},
			"include":     map[string]any{"type": "string", "description": "File name pattern restricting the search."},
			"max_results": map[string]any{"type": "integer", "description": "Cap on matches per file."},
		}, "pattern", "include"),
		ReadOnly: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, _ := StringArg(args, "pattern")
			include, _ := StringArg(args, "include")
			maxResults, _ := IntArg(args, "max_results")

			if _, err := regexp.Compile(pattern); err != nil {
				return "", fmt.Errorf("invalid regular expression: %w", err)
			}

			out, err := ws.Grep(ctx, pattern, include, maxResults)
			if err != nil {
				return "", err
			}
			if out == "" {
				return "No matches found.", nil
			}
			return out, nil
		},
	}
}
