package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient adapts the Anthropic Messages API to the Model Client
// port. It owns request shaping (system prompt extraction, tool-use
// block translation) and usage extraction; the ReAct loop never touches
// the SDK directly.
type AnthropicClient struct {
	client       *anthropic.Client
	defaultModel string
}

func NewAnthropicClient(apiKey, defaultModel string) *AnthropicClient {
	c := anthropic.NewClient(option.WithAuthToken(apiKey))
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-6"
	}
	return &AnthropicClient{client: &c, defaultModel: defaultModel}
}

func (a *AnthropicClient) DefaultModel() string { return a.defaultModel }

func (a *AnthropicClient) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, opts map[string]any) (*Response, error) {
	var system []anthropic.TextBlockParam
	var anthMessages []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "user":
			if m.ToolCallID != "" {
				anthMessages = append(anthMessages, anthropic.NewUserMessage(
					anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
				))
			} else {
				anthMessages = append(anthMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case "assistant":
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			anthMessages = append(anthMessages, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			anthMessages = append(anthMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		}
	}

	var anthTools []anthropic.ToolUnionParam
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Parameters["properties"]},
		}
		if req, ok := t.Parameters["required"].([]string); ok {
			tool.InputSchema.Required = req
		}
		anthTools = append(anthTools, anthropic.ToolUnionParam{OfTool: &tool})
	}

	maxTokens := int64(4096)
	if v, ok := opts["max_tokens"].(int); ok {
		maxTokens = int64(v)
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System:    system,
		Messages:  anthMessages,
		Tools:     anthTools,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	out := &Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(tu.Input, &args); err != nil {
				args = map[string]any{"raw": string(tu.Input)}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID: tu.ID, Type: "function", Name: tu.Name, Arguments: args,
			})
		}
	}
	switch resp.StopReason {
	case anthropic.StopReasonMaxTokens:
		out.FinishReason = "truncated"
	default:
		out.FinishReason = "stop"
	}
	out.Usage = &UsageInfo{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return out, nil
}
