package router_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/prover"
	"github.com/proofport/gateway/router"
)

type fakeLLM struct {
	call *prover.ToolCall
	err  error
}

func (f *fakeLLM) RouteToolCall(ctx context.Context, systemPrompt, userText string, tools []prover.ToolSchema) (*prover.ToolCall, error) {
	return f.call, f.err
}

type fakeContexts struct {
	requestID string
	ok        bool
}

func (f *fakeContexts) GetContextRequest(ctx context.Context, contextID string) (string, bool, error) {
	return f.requestID, f.ok, nil
}

func TestResolveSkill_DataPart(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves directly from a structured data part", func(t *testing.T) {
		msg := gateway.Message{Parts: []gateway.Part{
			gateway.DataPart(map[string]any{"skill": "request_signing", "circuitId": "c1", "scope": "login"}),
		}}
		name, params, source, err := router.ResolveSkill(ctx, msg, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "request_signing", name)
		assert.Equal(t, router.SourceData, source)
		assert.Equal(t, "c1", params["circuitId"])
		_, hasSkillKey := params["skill"]
		assert.False(t, hasSkillKey)
	})

	t.Run("overrides a requestId missing from the data part using the context index", func(t *testing.T) {
		msg := gateway.Message{ContextID: "ctx-1", Parts: []gateway.Part{
			gateway.DataPart(map[string]any{"skill": "check_status"}),
		}}
		contexts := &fakeContexts{requestID: "req-bound", ok: true}
		_, params, _, err := router.ResolveSkill(ctx, msg, nil, contexts)
		require.NoError(t, err)
		assert.Equal(t, "req-bound", params["requestId"])
	})

	t.Run("does not override a requestId already present on the data part", func(t *testing.T) {
		msg := gateway.Message{ContextID: "ctx-1", Parts: []gateway.Part{
			gateway.DataPart(map[string]any{"skill": "check_status", "requestId": "req-explicit"}),
		}}
		contexts := &fakeContexts{requestID: "req-bound", ok: true}
		_, params, _, err := router.ResolveSkill(ctx, msg, nil, contexts)
		require.NoError(t, err)
		assert.Equal(t, "req-explicit", params["requestId"])
	})
}

func TestResolveSkill_TextFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("routes free-form text via the LLM forced tool call", func(t *testing.T) {
		msg := gateway.Message{Parts: []gateway.Part{gateway.TextPart("check on my proof please")}}
		llm := &fakeLLM{call: &prover.ToolCall{Name: "check_status", Arguments: map[string]any{"requestId": "req-1"}}}
		name, params, source, err := router.ResolveSkill(ctx, msg, llm, nil)
		require.NoError(t, err)
		assert.Equal(t, "check_status", name)
		assert.Equal(t, router.SourceText, source)
		assert.Equal(t, "req-1", params["requestId"])
	})

	t.Run("overrides the requestId the LLM hallucinated for requestId-bearing skills", func(t *testing.T) {
		msg := gateway.Message{ContextID: "ctx-9", Parts: []gateway.Part{gateway.TextPart("generate my proof")}}
		llm := &fakeLLM{call: &prover.ToolCall{Name: "generate_proof", Arguments: map[string]any{"requestId": "hallucinated"}}}
		contexts := &fakeContexts{requestID: "req-real", ok: true}
		_, params, _, err := router.ResolveSkill(ctx, msg, llm, contexts)
		require.NoError(t, err)
		assert.Equal(t, "req-real", params["requestId"])
	})

	t.Run("fails as not routable when there is no data part and no text", func(t *testing.T) {
		msg := gateway.Message{}
		_, _, _, err := router.ResolveSkill(ctx, msg, &fakeLLM{}, nil)
		require.Error(t, err)
		assert.Equal(t, gateway.KindNotRoutable, gateway.KindOf(err))
	})

	t.Run("fails as not routable when text is present but no LLM is configured", func(t *testing.T) {
		msg := gateway.Message{Parts: []gateway.Part{gateway.TextPart("hello")}}
		_, _, _, err := router.ResolveSkill(ctx, msg, nil, nil)
		require.Error(t, err)
		assert.Equal(t, gateway.KindNotRoutable, gateway.KindOf(err))
	})

	t.Run("fails as not routable when the LLM returns no tool call", func(t *testing.T) {
		msg := gateway.Message{Parts: []gateway.Part{gateway.TextPart("tell me a joke")}}
		_, _, _, err := router.ResolveSkill(ctx, msg, &fakeLLM{call: nil}, nil)
		require.Error(t, err)
		assert.Equal(t, gateway.KindNotRoutable, gateway.KindOf(err))
	})
}
