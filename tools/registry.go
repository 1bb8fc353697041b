// Package tools provides the tool registry and the built-in tool set the
// agent loop dispatches into. Every registered tool declares a JSON
// Schema for its arguments, compiled at registration; invocation
// validates arguments before execution and wraps every outcome,
// including executor faults, into a Result the model can read and react
// to. Tools also carry a static read-only classification consumed by the
// safe-mode gate.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nv8300/cc-agent/llm"
)

// Executor runs a tool with schema-validated arguments.
type Executor func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a definition with its executor and classification.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
	// ReadOnly marks tools that cannot mutate the workspace or the
	// outside world. Static configuration, consulted by the safe-mode
	// gate before dispatch.
	ReadOnly bool
	Execute  Executor
	Limit    OutputLimit

	schema *jsonschema.Schema
}

// Result is the outcome of one tool invocation. Err is empty on success;
// on failure it carries a descriptive message the model can act on.
type Result struct {
	ToolCallID string `json:"tool_call_id"`
	Payload    string `json:"payload,omitempty"`
	Err        string `json:"error,omitempty"`

	// Full is the untruncated payload, for the event stream only.
	Full string `json:"-"`
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.Err == "" }

// Text returns the content to feed back to the model.
func (r Result) Text() string {
	if r.Err != "" {
		return r.Err
	}
	return r.Payload
}

// Registry holds the invocable tools. Safe for concurrent use; runs
// share a registry and it holds no per-run state.
type Registry struct {
	tools map[string]*Tool
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool, compiling its parameter schema.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Execute == nil {
		return fmt.Errorf("tool %s: executor is required", t.Name)
	}
	schema, err := compileSchema(t.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: %w", t.Name, err)
	}
	t.schema = schema
	if t.Limit.MaxChars == 0 {
		t.Limit = defaultOutputLimit(t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = &t
	return nil
}

// MustRegister registers a tool and panics on a definition error. Used
// for the built-in set, whose schemas are static.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ReadOnly reports the static classification of a tool. The second
// return is false for unregistered names.
func (r *Registry) ReadOnly(name string) (readOnly, known bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return false, false
	}
	return t.ReadOnly, true
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the tool schemas to send to the model. When filter
// is non-empty, only named tools are included.
func (r *Registry) Definitions(filter []string) []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allowed := map[string]bool{}
	for _, name := range filter {
		allowed[name] = true
	}

	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		if len(allowed) > 0 && !allowed[t.Name] {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke executes a tool call end to end: lookup, argument validation,
// execution, truncation. Every failure mode becomes an error Result so
// the loop continues and the model can self-correct.
func (r *Registry) Invoke(ctx context.Context, call llm.ToolCall) Result {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return Result{
			ToolCallID: call.ID,
			Err:        fmt.Sprintf("unknown tool: %s (available: %s)", call.Name, strings.Join(r.Names(), ", ")),
		}
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return Result{
				ToolCallID: call.ID,
				Err:        fmt.Sprintf("invalid arguments for %s: not valid JSON: %v", call.Name, err),
			}
		}
	}

	if err := t.schema.Validate(anyMap(args)); err != nil {
		return Result{
			ToolCallID: call.ID,
			Err:        fmt.Sprintf("invalid arguments for %s: %v", call.Name, err),
		}
	}

	payload, err := t.Execute(ctx, args)
	if err != nil {
		return Result{
			ToolCallID: call.ID,
			Err:        fmt.Sprintf("tool %s failed: %v", call.Name, err),
		}
	}

	return Result{
		ToolCallID: call.ID,
		Payload:    Truncate(payload, t.Limit),
		Full:       payload,
	}
}

// anyMap widens the map for the schema validator, which expects
// interface{} values produced by encoding/json.
func anyMap(m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

// StringArg extracts a string argument.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntArg extracts an integer argument, accepting JSON numbers.
func IntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// BoolArg extracts a boolean argument.
func BoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
