package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// NewThinkTool returns the think tool: logs a reasoning step without
// touching anything. Gives the model a place to brainstorm between
// tool calls.
func NewThinkTool() Tool {
	return Tool{
		Name:        "think",
		Description: "Record a thought while reasoning through a problem. Makes no changes and fetches no information; use it to brainstorm fixes or plan a refactoring before acting.",
		Parameters: objectSchema(map[string]any{
			"thought": map[string]any{"type": "string", "description": "The thought to record."},
		}, "thought"),
		ReadOnly: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			thought, _ := StringArg(args, "thought")
			if strings.TrimSpace(thought) == "" {
				return "", fmt.Errorf("thought cannot be empty")
			}
			return fmt.Sprintf("Thought recorded at %s:\n\n%s",
				time.Now().Format("2006-01-02 15:04:05"), thought), nil
		},
	}
}

// todoItem is one entry in the workspace todo list.
type todoItem struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Status    string `json:"status"`   // pending, in_progress, completed
	Priority  string `json:"priority"` // low, medium, high
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type todoStore struct {
	path string
}

func (s *todoStore) load() ([]todoItem, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []todoItem
	if err := json.Unmarshal(data, &items); err != nil {
		// Corrupt file; start over rather than wedge the run.
		return nil, nil
	}
	return items, nil
}

func (s *todoStore) save(items []todoItem) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func todoSummary(items []todoItem) string {
	var pending, inProgress, completed int
	for _, item := range items {
		switch item.Status {
		case "in_progress":
			inProgress++
		case "completed":
			completed++
		default:
			pending++
		}
	}
	return fmt.Sprintf("Current todo status: %d pending, %d in progress, %d completed",
		pending, inProgress, completed)
}

// NewTodoTool returns the todo tool, persisting task items to
// .todo.json in the workspace. At most one item may be in_progress.
func NewTodoTool(ws *Workspace) Tool {
	store := &todoStore{path: filepath.Join(ws.Root(), ".todo.json")}

	return Tool{
		Name:        "todo",
		Description: "Create and manage todo items for tracking task progress. Operations: create (content, optional status/priority), update (id + fields), delete (id), clear.",
		Parameters: objectSchema(map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []any{"create", "update", "delete", "clear"},
			},
			"content":  map[string]any{"type": "string", "description": "Task description (create)."},
			"id":       map[string]any{"type": "string", "description": "Item id (update/delete)."},
			"status":   map[string]any{"type": "string", "enum": []any{"pending", "in_progress", "completed"}},
			"priority": map[string]any{"type": "string", "enum": []any{"low", "medium", "high"}},
		}, "operation"),
		ReadOnly: false,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			operation, _ := StringArg(args, "operation")
			items, err := store.load()
			if err != nil {
				return "", err
			}

			now := time.Now().Format(time.RFC3339)
			var msg string

			switch operation {
			case "create":
				content, ok := StringArg(args, "content")
				if !ok || content == "" {
					return "", fmt.Errorf("create requires 'content'")
				}
				status, _ := StringArg(args, "status")
				if status == "" {
					status = "pending"
				}
				priority, _ := StringArg(args, "priority")
				if priority == "" {
					priority = "medium"
				}
				if status == "in_progress" && hasInProgress(items) {
					return "", fmt.Errorf("cannot have more than one task in_progress at a time")
				}
				item := todoItem{
					ID:        strconv.Itoa(len(items) + 1),
					Content:   content,
					Status:    status,
					Priority:  priority,
					CreatedAt: now,
					UpdatedAt: now,
				}
				items = append(items, item)
				msg = fmt.Sprintf("Created todo %s: %s", item.ID, item.Content)

			case "update":
				id, ok := StringArg(args, "id")
				if !ok {
					return "", fmt.Errorf("update requires 'id'")
				}
				idx := -1
				for i := range items {
					if items[i].ID == id {
						idx = i
						break
					}
				}
				if idx == -1 {
					return "", fmt.Errorf("todo %s not found", id)
				}
				if status, ok := StringArg(args, "status"); ok {
					if status == "in_progress" && hasInProgress(items) && items[idx].Status != "in_progress" {
						return "", fmt.Errorf("cannot have more than one task in_progress at a time")
					}
					items[idx].Status = status
				}
				if content, ok := StringArg(args, "content"); ok {
					items[idx].Content = content
				}
				if priority, ok := StringArg(args, "priority"); ok {
					items[idx].Priority = priority
				}
				items[idx].UpdatedAt = now
				msg = fmt.Sprintf("Updated todo %s", id)

			case "delete":
				id, ok := StringArg(args, "id")
				if !ok {
					return "", fmt.Errorf("delete requires 'id'")
				}
				kept := items[:0]
				found := false
				for _, item := range items {
					if item.ID == id {
						found = true
						continue
					}
					kept = append(kept, item)
				}
				if !found {
					return "", fmt.Errorf("todo %s not found", id)
				}
				items = kept
				msg = fmt.Sprintf("Deleted todo %s", id)

			case "clear":
				items = nil
				msg = "Cleared all todo items"

			default:
				return "", fmt.Errorf("unknown operation: %s", operation)
			}

			if err := store.save(items); err != nil {
				return "", err
			}
			return msg + "\n\n" + todoSummary(items), nil
		},
	}
}

func hasInProgress(items []todoItem) bool {
	for _, item := range items {
		if item.Status == "in_progress" {
			return true
		}
	}
	return false
}
