// Package mcp implements a stateless StreamableHTTP MCP server (spec.md
// section 4.8, component C11) exposing the six canonical skills as MCP
// tools. Unlike A2A, tool calls execute synchronously against the
// skill layer — there is no task queue involved.
package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/paymentgate"
	"github.com/proofport/gateway/skill"
)

const protocolVersion = "2024-11-05"

// rpcRequest is a minimal JSON-RPC 2.0 envelope, the wire shape MCP's
// StreamableHTTP transport carries.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolDef describes one MCP tool entry returned by tools/list.
type toolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Server dispatches MCP's initialize/tools/list/tools/call methods
// directly against the skill layer.
type Server struct {
	deps skill.Deps
	gate *paymentgate.Gate
}

// NewServer builds an MCP Server.
func NewServer(deps skill.Deps, gate *paymentgate.Gate) *Server {
	return &Server{deps: deps, gate: gate}
}

// RegisterRoutes wires the single StreamableHTTP POST endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.POST("/mcp", s.Handle)
}

// Handle dispatches one JSON-RPC request.
func (s *Server) Handle(c echo.Context) error {
	var req rpcRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
	}

	switch req.Method {
	case "initialize":
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "proof-serving gateway", "version": "1.0.0"},
		}})
	case "tools/list":
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"tools": toolCatalog()}})
	case "tools/call":
		return s.handleToolCall(c, req)
	default:
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found"}})
	}
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolCall(c echo.Context, req rpcRequest) error {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}})
	}

	if !paymentgate.IsFreeSkill(params.Name) {
		if blocked := s.requirePayment(c); blocked != nil {
			return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32002, Message: blocked.Error()}})
		}
	}

	result, err := dispatch(c.Request().Context(), s.deps, params.Name, params.Arguments)
	if err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: errorCode(err), Message: err.Error()}})
	}
	text, err := json.Marshal(result)
	if err != nil {
		return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32603, Message: err.Error()}})
	}
	return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
		"content":           []map[string]any{{"type": "text", "text": string(text)}},
		"structuredContent": result,
	}})
}

// requirePayment runs the shared x402 gate out-of-band for a
// synchronous tool call. It never blocks the wider MCP handler chain;
// a nil return means payment was not required or was already settled.
func (s *Server) requirePayment(c echo.Context) error {
	handled := false
	_ = s.gate.Require()(func(echo.Context) error { handled = true; return nil })(c)
	if !handled {
		return gateway.NewError(gateway.KindPaymentRequired, "payment required")
	}
	return nil
}

func errorCode(err error) int {
	gerr, ok := err.(*gateway.Error)
	if !ok {
		return -32603
	}
	switch gerr.Kind {
	case gateway.KindInvalidArgument:
		return -32602
	case gateway.KindNotRoutable:
		return -32601
	case gateway.KindPaymentRequired:
		return -32002
	default:
		return -32001
	}
}

func dispatch(ctx context.Context, deps skill.Deps, name string, args map[string]any) (any, error) {
	switch name {
	case "request_signing":
		return skill.RequestSigning(ctx, deps, decodeRequestSigning(args))
	case "check_status":
		requestID, _ := args["requestId"].(string)
		return skill.CheckStatus(ctx, deps, requestID)
	case "request_payment":
		requestID, _ := args["requestId"].(string)
		return skill.RequestPayment(ctx, deps, requestID)
	case "generate_proof":
		return skill.GenerateProof(ctx, deps, decodeGenerateProof(args))
	case "verify_proof":
		return skill.VerifyProof(ctx, deps, decodeVerifyProof(args))
	case "get_supported_circuits":
		chainID, _ := args["chainId"].(string)
		return skill.GetSupportedCircuits(deps, chainID), nil
	default:
		return nil, gateway.NewError(gateway.KindNotRoutable, "unknown tool: "+name)
	}
}

func decodeRequestSigning(args map[string]any) skill.RequestSigningInput {
	in := skill.RequestSigningInput{}
	in.CircuitID, _ = args["circuitId"].(string)
	in.Scope, _ = args["scope"].(string)
	in.CountryList = stringSlice(args["countryList"])
	if v, ok := args["isIncluded"].(bool); ok {
		in.IsIncluded = &v
	}
	return in
}

func decodeGenerateProof(args map[string]any) skill.GenerateProofInput {
	in := skill.GenerateProofInput{}
	in.RequestID, _ = args["requestId"].(string)
	in.Address, _ = args["address"].(string)
	in.Signature, _ = args["signature"].(string)
	in.Scope, _ = args["scope"].(string)
	in.CircuitID, _ = args["circuitId"].(string)
	in.CountryList = stringSlice(args["countryList"])
	if v, ok := args["isIncluded"].(bool); ok {
		in.IsIncluded = &v
	}
	return in
}

func decodeVerifyProof(args map[string]any) skill.VerifyProofInput {
	in := skill.VerifyProofInput{}
	in.CircuitID, _ = args["circuitId"].(string)
	in.ProofHex, _ = args["proof"].(string)
	if v, ok := args["publicInputs"].(string); ok {
		in.PublicInputsHex = v
	} else {
		in.PublicInputsWords = stringSlice(args["publicInputs"])
	}
	in.ChainID, _ = args["chainId"].(string)
	return in
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func toolCatalog() []toolDef {
	return []toolDef{
		{Name: "request_signing", Description: "Start a signing session for a circuit.", InputSchema: map[string]any{"type": "object", "properties": map[string]any{
			"circuitId": map[string]any{"type": "string"}, "scope": map[string]any{"type": "string"},
			"countryList": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"isIncluded":  map[string]any{"type": "boolean"},
		}}},
		{Name: "check_status", Description: "Check a session's current phase.", InputSchema: map[string]any{"type": "object", "properties": map[string]any{
			"requestId": map[string]any{"type": "string"},
		}}},
		{Name: "request_payment", Description: "Request payment for a signed session.", InputSchema: map[string]any{"type": "object", "properties": map[string]any{
			"requestId": map[string]any{"type": "string"},
		}}},
		{Name: "generate_proof", Description: "Generate a zero-knowledge proof.", InputSchema: map[string]any{"type": "object", "properties": map[string]any{
			"requestId": map[string]any{"type": "string"}, "address": map[string]any{"type": "string"},
			"signature": map[string]any{"type": "string"}, "scope": map[string]any{"type": "string"},
			"circuitId": map[string]any{"type": "string"},
		}}},
		{Name: "verify_proof", Description: "Verify a proof on-chain.", InputSchema: map[string]any{"type": "object", "properties": map[string]any{
			"circuitId": map[string]any{"type": "string"}, "proof": map[string]any{"type": "string"},
			"publicInputs": map[string]any{"type": "string"}, "chainId": map[string]any{"type": "string"},
		}}},
		{Name: "get_supported_circuits", Description: "List supported circuits and verifier addresses.", InputSchema: map[string]any{"type": "object", "properties": map[string]any{
			"chainId": map[string]any{"type": "string"},
		}}},
	}
}
