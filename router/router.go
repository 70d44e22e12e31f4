// Package router resolves a skill name and parameters from an inbound
// message, either from a structured data part or from free-form text
// via LLM forced tool-choice routing (spec.md section 4.6, component
// C9).
package router

import (
	"context"
	"time"

	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/prover"
)

// Source reports which path resolved the skill call.
type Source string

const (
	SourceData Source = "data"
	SourceText Source = "text"
)

// llmDeadline matches spec.md section 4.6's 30-second hard deadline.
const llmDeadline = 30 * time.Second

// catalog is the tool catalog matching the six canonical skills,
// passed to the LLM's forced tool-choice call.
var catalog = []prover.ToolSchema{
	{Name: "request_signing", Description: "Start a new signing session for a circuit.", Parameters: map[string]any{
		"circuitId":   map[string]any{"type": "string"},
		"scope":       map[string]any{"type": "string"},
		"countryList": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"isIncluded":  map[string]any{"type": "boolean"},
	}},
	{Name: "check_status", Description: "Check the phase of a signing/payment session.", Parameters: map[string]any{
		"requestId": map[string]any{"type": "string"},
	}},
	{Name: "request_payment", Description: "Request payment for a completed signing session.", Parameters: map[string]any{
		"requestId": map[string]any{"type": "string"},
	}},
	{Name: "generate_proof", Description: "Generate a zero-knowledge proof from a session or direct inputs.", Parameters: map[string]any{
		"requestId": map[string]any{"type": "string"},
		"address":   map[string]any{"type": "string"},
		"signature": map[string]any{"type": "string"},
		"scope":     map[string]any{"type": "string"},
		"circuitId": map[string]any{"type": "string"},
	}},
	{Name: "verify_proof", Description: "Verify a previously generated proof on-chain.", Parameters: map[string]any{
		"circuitId":    map[string]any{"type": "string"},
		"proof":        map[string]any{"type": "string"},
		"publicInputs": map[string]any{"type": "string"},
		"chainId":      map[string]any{"type": "string"},
	}},
	{Name: "get_supported_circuits", Description: "List supported circuits and their verifier addresses.", Parameters: map[string]any{
		"chainId": map[string]any{"type": "string"},
	}},
}

const systemPrompt = "You route proof-serving gateway requests to exactly one of the six available tools. Always call a tool; never answer in plain text."

// requestIDSkills are the skills whose requestId argument must be
// overridden from the session's context->request index, because LLMs
// are observed to hallucinate placeholder ids (spec.md section 4.6).
var requestIDSkills = map[string]bool{
	"check_status":    true,
	"request_payment": true,
	"generate_proof":  true,
}

// ContextResolver resolves the context's bound request id, if any.
type ContextResolver interface {
	GetContextRequest(ctx context.Context, contextID string) (string, bool, error)
}

// ResolveSkill implements spec.md section 4.6's resolveSkill.
func ResolveSkill(ctx context.Context, message gateway.Message, llm prover.LLMProvider, contexts ContextResolver) (skillName string, params map[string]any, source Source, err error) {
	if name, rest, ok := message.FirstSkillData(); ok {
		params = rest
		skillName = name
		source = SourceData
		if params == nil {
			params = map[string]any{}
		}
		if _, hasID := params["requestId"]; !hasID {
			overrideRequestID(ctx, message.ContextID, params, contexts)
		}
		return skillName, params, source, nil
	}

	text := message.Text()
	if text == "" {
		return "", nil, "", gateway.NewError(gateway.KindNotRoutable, "no routable content: no skill data part and no text")
	}
	if llm == nil {
		return "", nil, "", gateway.NewError(gateway.KindNotRoutable, "text routing unavailable: no LLM provider configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, llmDeadline)
	defer cancel()

	call, err := llm.RouteToolCall(callCtx, systemPrompt, text, catalog)
	if err != nil {
		return "", nil, "", gateway.Wrap(gateway.KindUpstreamTimeout, "skill routing call failed", err)
	}
	if call == nil {
		return "", nil, "", gateway.NewError(gateway.KindNotRoutable, "router model did not return a tool call")
	}

	params = call.Arguments
	if params == nil {
		params = map[string]any{}
	}
	if requestIDSkills[call.Name] {
		overrideRequestID(ctx, message.ContextID, params, contexts)
	}
	return call.Name, params, SourceText, nil
}

func overrideRequestID(ctx context.Context, contextID string, params map[string]any, contexts ContextResolver) {
	if contexts == nil || contextID == "" {
		return
	}
	requestID, ok, err := contexts.GetContextRequest(ctx, contextID)
	if err != nil || !ok {
		return
	}
	params["requestId"] = requestID
}
