package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter implements Provider over the OpenAI chat completion API.
// Grounded on internal/agent/providers/openai.go's message/tool conversion
// and stream-chunk tool-call accumulation by index.
type OpenAIAdapter struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIAdapter constructs an adapter backed by the go-openai client.
func NewOpenAIAdapter(apiKey, defaultModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("providers: openai api key is required")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &OpenAIAdapter{client: openai.NewClient(apiKey), defaultModel: defaultModel}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "gpt-4o", ContextWindow: 128000, SupportsVision: true, SupportsTools: true},
		{ID: "gpt-4-turbo", ContextWindow: 128000, SupportsVision: true, SupportsTools: true},
		{ID: "gpt-3.5-turbo", ContextWindow: 16385, SupportsTools: true},
	}
}

func (o *OpenAIAdapter) CountTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

func (o *OpenAIAdapter) convertMessages(req *Request) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: string(tc.Arguments)},
				})
			}
			result = append(result, msg)
		case RoleTool:
			for _, tr := range m.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		}
	}
	return result
}

func (o *OpenAIAdapter) convertTools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return result
}

func (o *OpenAIAdapter) buildChatRequest(req *Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}
	cr := openai.ChatCompletionRequest{
		Model:    model,
		Messages: o.convertMessages(req),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		cr.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		cr.Tools = o.convertTools(req.Tools)
	}
	return cr
}

func (o *OpenAIAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	chunks, err := o.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	var text, toolCalls = "", []ToolCall{}
	var usage Usage
	for c := range chunks {
		if c.Err != nil {
			return nil, c.Err
		}
		if c.Text != "" {
			text += c.Text
		}
		if c.ToolCall != nil {
			toolCalls = append(toolCalls, *c.ToolCall)
		}
		if c.Done {
			usage = Usage{InputTokens: c.InputTokens, OutputTokens: c.OutputTokens}
		}
	}
	return &Response{Text: text, ToolCalls: toolCalls, Usage: usage}, nil
}

func (o *OpenAIAdapter) Stream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	chatReq := o.buildChatRequest(req)

	stream, err := o.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, NewError(o.Name(), req.Model, err)
	}

	out := make(chan *Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		toolCalls := make(map[int]*ToolCall)
		flush := func() {
			for _, tc := range toolCalls {
				if tc.ID != "" && tc.Name != "" {
					out <- &Chunk{ToolCall: tc}
				}
			}
			toolCalls = make(map[int]*ToolCall)
		}

		for {
			select {
			case <-ctx.Done():
				out <- &Chunk{Err: ctx.Err()}
				return
			default:
			}

			resp, err := stream.Recv()
			if err != nil {
				if err == io.EOF {
					flush()
					out <- &Chunk{Done: true}
					return
				}
				out <- &Chunk{Err: NewError(o.Name(), req.Model, err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				out <- &Chunk{Text: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				if toolCalls[idx] == nil {
					toolCalls[idx] = &ToolCall{}
				}
				if tc.ID != "" {
					toolCalls[idx].ID = tc.ID
				}
				if tc.Function.Name != "" {
					toolCalls[idx].Name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					toolCalls[idx].Arguments = append(toolCalls[idx].Arguments, []byte(tc.Function.Arguments)...)
				}
			}
			if resp.Choices[0].FinishReason == "tool_calls" {
				flush()
			}
		}
	}()

	return out, nil
}
