package tools

import (
	"fmt"
	"strings"
)

// TruncationStrategy selects which part of oversized output survives.
type TruncationStrategy string

const (
	// TruncHeadTail keeps the beginning and end, dropping the middle.
	TruncHeadTail TruncationStrategy = "head_tail"
	// TruncTail keeps only the end.
	TruncTail TruncationStrategy = "tail"
)

// OutputLimit bounds what a tool may feed back to the model. The full
// output still reaches the event stream.
type OutputLimit struct {
	MaxChars int
	MaxLines int
	Strategy TruncationStrategy
}

func defaultOutputLimit(toolName string) OutputLimit {
	switch toolName {
	case "read_file":
		return OutputLimit{MaxChars: 50_000, Strategy: TruncHeadTail}
	case "shell":
		return OutputLimit{MaxChars: 30_000, MaxLines: 256, Strategy: TruncHeadTail}
	case "grep":
		return OutputLimit{MaxChars: 20_000, MaxLines: 200, Strategy: TruncTail}
	case "glob":
		return OutputLimit{MaxChars: 20_000, MaxLines: 500, Strategy: TruncTail}
	case "edit_file", "write_file":
		return OutputLimit{MaxChars: 1_000, Strategy: TruncTail}
	case "web_fetch":
		return OutputLimit{MaxChars: 30_000, Strategy: TruncHeadTail}
	default:
		return OutputLimit{MaxChars: 20_000, Strategy: TruncHeadTail}
	}
}

// Truncate applies the character cap then the line cap.
func Truncate(output string, limit OutputLimit) string {
	out := truncateChars(output, limit.MaxChars, limit.Strategy)
	if limit.MaxLines > 0 {
		out = truncateLines(out, limit.MaxLines)
	}
	return out
}

func truncateChars(s string, max int, strategy TruncationStrategy) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	removed := len(s) - max

	if strategy == TruncTail {
		return fmt.Sprintf("[output truncated: first %d characters removed; "+
			"re-run with narrower parameters for the rest]\n\n", removed) + s[len(s)-max:]
	}

	head := max / 2
	tail := max - head
	return s[:head] +
		fmt.Sprintf("\n\n[output truncated: %d characters removed from the middle; "+
			"re-run with narrower parameters for the rest]\n\n", removed) +
		s[len(s)-tail:]
}

func truncateLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	head := max / 2
	tail := max - head
	omitted := len(lines) - head - tail
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tail:], "\n")
}
