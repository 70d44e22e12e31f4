package prover

import (
	"context"

	"github.com/proofport/gateway/models/gateway"
)

// OpenAIProvider is the LLMProvider selected when OPENAI_API_KEY or
// GEMINI_API_KEY is configured but ANTHROPIC_API_KEY is not. No OpenAI
// or Gemini Go SDK is present anywhere in the example pack to ground a
// real client against (see DESIGN.md), so it holds the vendor and key
// for visibility but always fails with UpstreamFailure rather than
// silently routing incorrectly or pretending to call out.
type OpenAIProvider struct {
	vendor string
	apiKey string
}

// NewOpenAIProvider builds the stub provider for the given vendor
// ("openai" or "gemini").
func NewOpenAIProvider(vendor, apiKey string) *OpenAIProvider {
	return &OpenAIProvider{vendor: vendor, apiKey: apiKey}
}

// RouteToolCall always fails; see type doc.
func (p *OpenAIProvider) RouteToolCall(ctx context.Context, systemPrompt, userText string, tools []ToolSchema) (*ToolCall, error) {
	return nil, gateway.NewError(gateway.KindUpstreamFailure, p.vendor+" routing is not wired in this deployment")
}
