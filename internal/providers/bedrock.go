package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockConfig configures a BedrockAdapter.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// BedrockAdapter implements Provider over AWS Bedrock's Converse/
// ConverseStream API. Grounded on internal/agent/providers/bedrock.go:
// Converse-format message conversion and the
// ContentBlockStart/Delta/Stop/MessageStop event switch used to rebuild
// text and tool-use chunks from the event stream.
type BedrockAdapter struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// NewBedrockAdapter constructs an adapter over the Bedrock runtime client.
func NewBedrockAdapter(ctx context.Context, cfg BedrockConfig) (*BedrockAdapter, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("providers: bedrock aws config: %w", err)
	}

	return &BedrockAdapter{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (b *BedrockAdapter) Name() string { return "bedrock" }

func (b *BedrockAdapter) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", ContextWindow: 200000, SupportsTools: true},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", ContextWindow: 200000, SupportsTools: true},
		{ID: "meta.llama3-70b-instruct-v1:0", ContextWindow: 8192},
	}
}

func (b *BedrockAdapter) CountTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

func (b *BedrockAdapter) convertMessages(messages []Message) []types.Message {
	result := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			result = append(result, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		case RoleAssistant:
			result = append(result, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		case RoleTool:
			for _, tr := range m.ToolResults {
				result = append(result, types.Message{
					Role: types.ConversationRoleUser,
					Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{
						Value: types.ToolResultBlock{
							ToolUseId: aws.String(tr.ToolCallID),
							Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
						},
					}},
				})
			}
		}
	}
	return result
}

func (b *BedrockAdapter) buildRequest(req *Request) *bedrockruntime.ConverseStreamInput {
	model := req.Model
	if model == "" {
		model = b.defaultModel
	}
	in := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: b.convertMessages(req.Messages),
	}
	if req.System != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		in.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}
	return in
}

func (b *BedrockAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	chunks, err := b.Stream(ctx, req)
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

func (b *BedrockAdapter) Stream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	in := b.buildRequest(req)
	stream, err := b.client.ConverseStream(ctx, in)
	if err != nil {
		return nil, NewError(b.Name(), req.Model, err)
	}

	out := make(chan *Chunk)
	go func() {
		defer close(out)
		eventStream := stream.GetStream()
		defer eventStream.Close()

		var toolCall *ToolCall
		var toolInput strings.Builder

		for {
			select {
			case <-ctx.Done():
				out <- &Chunk{Err: ctx.Err()}
				return
			case event, ok := <-eventStream.Events():
				if !ok {
					if toolCall != nil {
						toolCall.Arguments = json.RawMessage(toolInput.String())
						out <- &Chunk{ToolCall: toolCall}
					}
					if err := eventStream.Err(); err != nil {
						out <- &Chunk{Err: NewError(b.Name(), req.Model, err)}
					} else {
						out <- &Chunk{Done: true}
					}
					return
				}
				switch ev := event.(type) {
				case *types.ConverseStreamOutputMemberContentBlockStart:
					if tu, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
						toolCall = &ToolCall{ID: aws.ToString(tu.Value.ToolUseId), Name: aws.ToString(tu.Value.Name)}
						toolInput.Reset()
					}
				case *types.ConverseStreamOutputMemberContentBlockDelta:
					switch delta := ev.Value.Delta.(type) {
					case *types.ContentBlockDeltaMemberText:
						if delta.Value != "" {
							out <- &Chunk{Text: delta.Value}
						}
					case *types.ContentBlockDeltaMemberToolUse:
						if delta.Value.Input != nil {
							toolInput.WriteString(*delta.Value.Input)
						}
					}
				case *types.ConverseStreamOutputMemberContentBlockStop:
					if toolCall != nil {
						toolCall.Arguments = json.RawMessage(toolInput.String())
						out <- &Chunk{ToolCall: toolCall}
						toolCall = nil
					}
				case *types.ConverseStreamOutputMemberMessageStop:
					out <- &Chunk{Done: true}
					return
				}
			}
		}
	}()

	return out, nil
}
