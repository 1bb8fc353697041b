package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmClient implements Client on top of a gollm.LLM instance. It
// translates the conversation into a gollm prompt, passes the tool
// schemas through, and extracts tool calls from the generated text.
type GollmClient struct {
	provider string
	model    string
	llm      gollm.LLM
}

// GollmOption configures a GollmClient.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key. When empty, gollm reads it from the
// provider's conventional environment variable.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithMaxTokens sets the default max tokens per completion.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) GollmOption {
	return func(c *gollmConfig) { c.temperature = t }
}

// WithGollmOptions appends raw gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmClient creates a client for the given provider and model.
func NewGollmClient(provider, model string, opts ...GollmOption) (*GollmClient, error) {
	cfg := &gollmConfig{
		maxTokens:   4096,
		temperature: 0.6,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retry is handled by RetryingClient
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	instance, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmClient{
		provider: provider,
		model:    model,
		llm:      instance,
	}, nil
}

// Provider returns the provider identifier.
func (c *GollmClient) Provider() string { return c.provider }

// Complete implements Client.
func (c *GollmClient) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := c.translateRequest(req)

	if req.Model != "" {
		c.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		c.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		c.llm.SetOption("max_tokens", *req.MaxTokens)
	}

	text, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, translateGollmError(ctx, err)
	}

	return c.buildResponse(req, text), nil
}

// translateRequest flattens the conversation into a gollm prompt. Prior
// assistant turns and tool results are carried as labeled context lines;
// the system prompt and tool definitions ride on prompt options.
func (c *GollmClient) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.Content + "\n"
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
			if msg.ToolCall != nil {
				parts = append(parts, fmt.Sprintf("[Assistant tool call]: %s %s",
					msg.ToolCall.Name, string(msg.ToolCall.Arguments)))
			}
		case RoleTool:
			prefix := "[Tool result]"
			if msg.IsError {
				prefix = "[Tool error]"
			}
			parts = append(parts, prefix+": "+msg.Content)
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if systemPrompt != "" {
		promptOpts = append(promptOpts,
			gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

func (c *GollmClient) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = c.model
	}

	resp := &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     c.provider,
		FinishReason: FinishStop,
		Usage: Usage{
			// gollm does not expose usage; approximate from text length.
			InputTokens:  approximateRequestTokens(req),
			OutputTokens: len(text) / 4,
			TotalTokens:  approximateRequestTokens(req) + len(text)/4,
		},
	}

	if call, remainder := ParseToolCall(text); call != nil {
		resp.ToolCall = call
		resp.Text = remainder
		resp.FinishReason = FinishToolCall
	} else {
		resp.Text = text
	}
	return resp
}

func approximateRequestTokens(req Request) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	return chars / 4
}

const (
	funcCallBegin = "<FunctionCallBegin>"
	funcCallEnd   = "<FunctionCallEnd>"
)

// ParseToolCall extracts a tool invocation from generated text. It
// recognizes the tagged form <FunctionCallBegin>{"name":...,
// "parameters":{...}}<FunctionCallEnd> and a bare JSON array of
// {"name","arguments"} objects. Returns the call and the surrounding
// text with the call payload removed, or nil when the text is a plain
// answer.
func ParseToolCall(text string) (*ToolCall, string) {
	if start := strings.Index(text, funcCallBegin); start != -1 {
		end := strings.Index(text, funcCallEnd)
		if end > start {
			payload := strings.TrimSpace(text[start+len(funcCallBegin) : end])
			var tagged struct {
				Name       string          `json:"name"`
				Parameters json.RawMessage `json:"parameters"`
				Arguments  json.RawMessage `json:"arguments"`
			}
			if err := json.Unmarshal([]byte(payload), &tagged); err == nil && tagged.Name != "" {
				args := tagged.Parameters
				if len(args) == 0 {
					args = tagged.Arguments
				}
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				remainder := strings.TrimSpace(text[:start] + text[end+len(funcCallEnd):])
				return &ToolCall{
					ID:        "call_" + uuid.New().String()[:8],
					Name:      tagged.Name,
					Arguments: args,
				}, remainder
			}
		}
	}

	if start := strings.Index(text, `[{"name"`); start != -1 {
		var rawCalls []struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err == nil && len(rawCalls) > 0 {
			return &ToolCall{
				ID:        "call_" + uuid.New().String()[:8],
				Name:      rawCalls[0].Name,
				Arguments: rawCalls[0].Arguments,
			}, strings.TrimSpace(text[:start])
		}
	}

	return nil, ""
}

// translateGollmError classifies a gollm failure into the client error
// taxonomy. gollm surfaces provider failures as opaque wrapped errors, so
// classification falls back to message inspection.
func translateGollmError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &TimeoutError{ClientError: ClientError{
			Message: "model call deadline exceeded",
			Cause:   err,
		}}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return &RateLimitError{ClientError: ClientError{Message: "provider rate limited", Cause: err}}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return &TimeoutError{ClientError: ClientError{Message: "model call timed out", Cause: err}}
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized"):
		return &AuthenticationError{ClientError: ClientError{Message: "provider rejected credentials", Cause: err}}
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request"):
		return &InvalidRequestError{ClientError: ClientError{Message: "provider rejected request", Cause: err}}
	default:
		return &UpstreamError{ClientError: ClientError{Message: "provider call failed", Cause: err}}
	}
}
