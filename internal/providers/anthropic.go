package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an AnthropicAdapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicAdapter implements Provider over the Anthropic Messages API.
// Grounded on internal/agent/providers/anthropic.go: message/tool
// conversion, streaming event handling (content_block_start/delta/stop,
// message_start/delta for usage), and thinking-block passthrough are kept;
// the beta computer-use path and the doc-comment-per-example density of the
// teacher's version are dropped as out of scope here.
type AnthropicAdapter struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicAdapter constructs an adapter backed by the Anthropic SDK.
func NewAnthropicAdapter(cfg AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("providers: anthropic api key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicAdapter{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "claude-sonnet-4-20250514", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
		{ID: "claude-opus-4-20250514", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
		{ID: "claude-3-5-sonnet-20241022", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
		{ID: "claude-3-haiku-20240307", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
	}
}

// CountTokens has no local Anthropic tokenizer available; approximate.
func (a *AnthropicAdapter) CountTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

func (a *AnthropicAdapter) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages, err := a.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = a.convertTools(req.Tools)
	}
	return params, nil
}

func (a *AnthropicAdapter) convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case RoleTool:
			for _, tr := range m.ToolResults {
				result = append(result, anthropic.NewUserMessage(
					anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError),
				))
			}
		default:
			return nil, fmt.Errorf("providers: anthropic unsupported role %q", m.Role)
		}
	}
	return result, nil
}

func (a *AnthropicAdapter) convertTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			continue
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, toolParam)
	}
	return out
}

// Complete drains Stream into a single Response, matching the teacher's
// stream-only call surface (the Anthropic SDK used here has no
// non-streaming Messages.New path wired in the original either).
func (a *AnthropicAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	chunks, err := a.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	var toolCalls []ToolCall
	var usage Usage
	for c := range chunks {
		if c.Err != nil {
			return nil, c.Err
		}
		if c.Text != "" {
			text.WriteString(c.Text)
		}
		if c.ToolCall != nil {
			toolCalls = append(toolCalls, *c.ToolCall)
		}
		if c.Done {
			usage = Usage{InputTokens: c.InputTokens, OutputTokens: c.OutputTokens}
		}
	}
	return &Response{Text: text.String(), ToolCalls: toolCalls, Usage: usage}, nil
}

func (a *AnthropicAdapter) Stream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return nil, NewError(a.Name(), req.Model, err)
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	out := make(chan *Chunk, 16)

	go func() {
		defer close(out)
		var toolCall *ToolCall
		var toolInput strings.Builder
		var inputTokens, outputTokens int

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				if ms.Message.Usage.InputTokens > 0 {
					inputTokens = int(ms.Message.Usage.InputTokens)
				}
			case "content_block_start":
				cb := event.AsContentBlockStart().ContentBlock
				if cb.Type == "tool_use" {
					tu := cb.AsToolUse()
					toolCall = &ToolCall{ID: tu.ID, Name: tu.Name}
					toolInput.Reset()
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						out <- &Chunk{Text: delta.Text}
					}
				case "input_json_delta":
					toolInput.WriteString(delta.PartialJSON)
				}
			case "content_block_stop":
				if toolCall != nil {
					toolCall.Arguments = json.RawMessage(toolInput.String())
					out <- &Chunk{ToolCall: toolCall}
					toolCall = nil
				}
			case "message_delta":
				md := event.AsMessageDelta()
				if md.Usage.OutputTokens > 0 {
					outputTokens = int(md.Usage.OutputTokens)
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- &Chunk{Err: NewError(a.Name(), req.Model, err)}
			return
		}
		out <- &Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
	}()

	return out, nil
}
