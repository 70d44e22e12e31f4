package prover

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/proofport/gateway/models/gateway"
)

// AnthropicProvider implements LLMProvider with forced tool-choice
// routing, matching the anthropic-sdk-go dependency already present in
// the wider example pack (jordigilh-kubernaut, TheApeMachine-a2a-go).
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider builds a provider authenticated with apiKey.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: client, model: anthropic.ModelClaude3_5SonnetLatest}
}

// RouteToolCall calls the model with toolChoice=required, returning
// its first tool call or nil if it answered in plain text (NotRoutable
// per spec.md section 4.6).
func (p *AnthropicProvider) RouteToolCall(ctx context.Context, systemPrompt, userText string, tools []ToolSchema) (*ToolCall, error) {
	toolParams := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		toolParams = append(toolParams, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Parameters,
				},
			},
		})
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userText)),
		},
		Tools: toolParams,
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfToolChoiceAny: &anthropic.ToolChoiceAnyParam{},
		},
	})
	if err != nil {
		return nil, gateway.Wrap(gateway.KindUpstreamFailure, "anthropic routing call failed", err)
	}

	for _, block := range msg.Content {
		if use := block.AsToolUse(); use.Name != "" {
			var args map[string]any
			if err := use.Input.UnmarshalTo(&args); err != nil {
				args = map[string]any{}
			}
			return &ToolCall{Name: use.Name, Arguments: args}, nil
		}
	}
	return nil, nil
}
