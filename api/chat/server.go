// Package chat implements the OpenAI-compatible /v1/chat/completions
// and /v1/models surface (spec.md section 4.10, component C13). Tool
// calling is bounded: at most 3 rounds, and at most one
// generate_proof/verify_proof call per request, to keep a single chat
// turn from draining the payment-gated proof budget.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/proofport/gateway/api/httperr"
	"github.com/proofport/gateway/api/sse"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/paymentgate"
	"github.com/proofport/gateway/prover"
	"github.com/proofport/gateway/skill"
)

const maxToolRounds = 3
const modelName = "proof-serving-gateway-1"

// Server serves a minimal OpenAI chat-completions-compatible endpoint
// backed by the same six skills and LLM tool router used elsewhere.
type Server struct {
	deps skill.Deps
	llm  prover.LLMProvider
	gate *paymentgate.Gate
}

// NewServer builds a chat Server.
func NewServer(deps skill.Deps, llm prover.LLMProvider, gate *paymentgate.Gate) *Server {
	return &Server{deps: deps, llm: llm, gate: gate}
}

// RegisterRoutes wires the OpenAI-compatible routes.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/models", s.ListModels)
	e.POST("/v1/chat/completions", s.ChatCompletions)
}

// ListModels serves GET /v1/models.
func (s *Server) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": modelName, "object": "model", "owned_by": "proofport"},
		},
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64         `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// ChatCompletions serves POST /v1/chat/completions, running a bounded
// tool-calling loop over the skill catalog before answering in plain
// text.
func (s *Server) ChatCompletions(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}

	ctx := c.Request().Context()
	reply, err := s.run(ctx, c, lastUserText(req.Messages))
	if err != nil {
		return httperr.Respond(c, err)
	}

	resp := chatResponse{
		ID: "chatcmpl-" + newID(), Object: "chat.completion", Model: modelName,
		Choices: []chatChoice{{Index: 0, Message: chatMessage{Role: "assistant", Content: reply}, FinishReason: "stop"}},
	}

	if req.Stream {
		return s.streamReply(c, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// run executes the bounded tool-calling loop: route to a skill, run
// it (gated for paid skills), feed the result back as context, and
// stop once no further tool call is produced, the round cap is hit, or
// a generate_proof/verify_proof call has already been made once.
func (s *Server) run(ctx context.Context, c echo.Context, text string) (string, error) {
	if s.llm == nil {
		return "I can't route free-form requests without a configured language model; use the structured skill endpoints directly.", nil
	}

	usedProofSkill := false
	for round := 0; round < maxToolRounds; round++ {
		call, err := s.llm.RouteToolCall(ctx, chatSystemPrompt, text, chatCatalog)
		if err != nil {
			return "", err
		}
		if call == nil {
			break
		}
		if call.Name == "generate_proof" || call.Name == "verify_proof" {
			if usedProofSkill {
				return "Only one proof operation is allowed per chat turn; please start a new request.", nil
			}
			usedProofSkill = true
		}
		if !paymentgate.IsFreeSkill(call.Name) {
			handled := false
			if gateErr := s.gate.Require()(func(echo.Context) error { handled = true; return nil })(c); gateErr != nil || !handled {
				return "", gateway.NewError(gateway.KindPaymentRequired, "payment required to continue")
			}
		}

		result, err := dispatch(ctx, s.deps, call.Name, call.Arguments)
		if err != nil {
			return "", err
		}
		text = summarize(call.Name, result)
	}
	return text, nil
}

func (s *Server) streamReply(c echo.Context, resp chatResponse) error {
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	sse.Write(w, "chat.completion.chunk", resp)
	_, _ = w.Write([]byte("data: [DONE]\n\n"))
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func lastUserText(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// summarize folds a skill result back into the running chat turn so the
// next round (or the final reply, if this was the last round) carries
// the signing URL, payment URL, or proof/verification outcome instead
// of a generic acknowledgement.
func summarize(skillName string, result any) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return "the " + skillName + " call completed"
	}
	return "the " + skillName + " call completed with result: " + string(raw)
}

func newID() string {
	return time.Now().UTC().Format("20060102T150405.000000000")
}

func dispatch(ctx context.Context, deps skill.Deps, name string, args map[string]any) (any, error) {
	switch name {
	case "request_signing":
		in := skill.RequestSigningInput{}
		in.CircuitID, _ = args["circuitId"].(string)
		in.Scope, _ = args["scope"].(string)
		return skill.RequestSigning(ctx, deps, in)
	case "check_status":
		requestID, _ := args["requestId"].(string)
		return skill.CheckStatus(ctx, deps, requestID)
	case "request_payment":
		requestID, _ := args["requestId"].(string)
		return skill.RequestPayment(ctx, deps, requestID)
	case "generate_proof":
		in := skill.GenerateProofInput{}
		in.RequestID, _ = args["requestId"].(string)
		in.Address, _ = args["address"].(string)
		in.Signature, _ = args["signature"].(string)
		in.Scope, _ = args["scope"].(string)
		in.CircuitID, _ = args["circuitId"].(string)
		return skill.GenerateProof(ctx, deps, in)
	case "verify_proof":
		in := skill.VerifyProofInput{}
		in.CircuitID, _ = args["circuitId"].(string)
		in.ProofHex, _ = args["proof"].(string)
		in.PublicInputsHex, _ = args["publicInputs"].(string)
		in.ChainID, _ = args["chainId"].(string)
		return skill.VerifyProof(ctx, deps, in)
	case "get_supported_circuits":
		chainID, _ := args["chainId"].(string)
		return skill.GetSupportedCircuits(deps, chainID), nil
	default:
		return nil, gateway.NewError(gateway.KindNotRoutable, "unknown tool: "+name)
	}
}

const chatSystemPrompt = "You help users obtain zero-knowledge proof attestations. Call a tool when the user's request maps to one of the six available skills; otherwise answer directly."

var chatCatalog = []prover.ToolSchema{
	{Name: "request_signing", Description: "Start a signing session for a circuit.", Parameters: map[string]any{
		"circuitId": map[string]any{"type": "string"}, "scope": map[string]any{"type": "string"},
	}},
	{Name: "check_status", Description: "Check a session's current phase.", Parameters: map[string]any{
		"requestId": map[string]any{"type": "string"},
	}},
	{Name: "request_payment", Description: "Request payment for a signed session.", Parameters: map[string]any{
		"requestId": map[string]any{"type": "string"},
	}},
	{Name: "generate_proof", Description: "Generate a zero-knowledge proof.", Parameters: map[string]any{
		"requestId": map[string]any{"type": "string"},
	}},
	{Name: "verify_proof", Description: "Verify a proof on-chain.", Parameters: map[string]any{
		"circuitId": map[string]any{"type": "string"}, "proof": map[string]any{"type": "string"},
		"publicInputs": map[string]any{"type": "string"}, "chainId": map[string]any{"type": "string"},
	}},
	{Name: "get_supported_circuits", Description: "List supported circuits and verifier addresses.", Parameters: map[string]any{
		"chainId": map[string]any{"type": "string"},
	}},
}
