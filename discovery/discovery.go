// Package discovery serves the agent-discovery documents (A2A v0.3
// Agent Card, OASF manifest, MCP manifest) and implements the
// ERC-8004 reputation side effect the worker fires after a completed
// task (spec.md section 4.12, component C15).
package discovery

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Card describes the minimal fields of an A2A v0.3 Agent Card this
// gateway advertises at /.well-known/agent.json (and the agent-card.json
// alias).
type Card struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	ProtocolVersion    string       `json:"protocolVersion"`
	Capabilities       Capabilities `json:"capabilities"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Skills             []SkillCard  `json:"skills"`
}

// Capabilities lists the A2A capability flags this gateway supports.
type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// SkillCard is one entry in the Agent Card's skills array.
type SkillCard struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Documents bundles every discovery document this gateway serves.
type Documents struct {
	AgentCard Card
	OASF      map[string]any
	MCP       map[string]any
}

// NewDocuments builds the discovery documents from the gateway's
// public base URL.
func NewDocuments(baseURL, version string) Documents {
	skills := []SkillCard{
		{ID: "request_signing", Name: "Request Signing", Description: "Start a signing session for a circuit.", Tags: []string{"zk", "signing"}},
		{ID: "check_status", Name: "Check Status", Description: "Check a session's current phase.", Tags: []string{"zk", "status"}},
		{ID: "request_payment", Name: "Request Payment", Description: "Request payment for a signed session.", Tags: []string{"zk", "payment", "x402"}},
		{ID: "generate_proof", Name: "Generate Proof", Description: "Generate a zero-knowledge proof.", Tags: []string{"zk", "proof"}},
		{ID: "verify_proof", Name: "Verify Proof", Description: "Verify a proof on-chain.", Tags: []string{"zk", "verify"}},
		{ID: "get_supported_circuits", Name: "Supported Circuits", Description: "List supported circuits and verifier addresses.", Tags: []string{"zk", "discovery"}},
	}

	card := Card{
		Name:               "proof-serving gateway",
		Description:        "Serves zero-knowledge proofs over A2A, MCP, OpenAI-compatible chat and REST, gated by x402 micropayments.",
		URL:                baseURL,
		Version:            version,
		ProtocolVersion:    "0.3",
		Capabilities:       Capabilities{Streaming: true, PushNotifications: false},
		DefaultInputModes:  []string{"text", "data"},
		DefaultOutputModes: []string{"text", "data"},
		Skills:             skills,
	}

	oasf := map[string]any{
		"schema_version": "0.1",
		"name":           card.Name,
		"description":    card.Description,
		"capabilities":   []string{"zk-proof-generation", "zk-proof-verification", "x402-payments"},
	}

	mcp := map[string]any{
		"mcpVersion": "2024-11-05",
		"name":       card.Name,
		"transport":  "streamable-http",
		"url":        baseURL + "/mcp",
	}

	return Documents{AgentCard: card, OASF: oasf, MCP: mcp}
}

// RegisterRoutes wires the .well-known discovery endpoints, including
// the agent-card.json alias some A2A clients expect.
func RegisterRoutes(e *echo.Echo, docs Documents) {
	e.GET("/.well-known/agent.json", func(c echo.Context) error { return c.JSON(http.StatusOK, docs.AgentCard) })
	e.GET("/.well-known/agent-card.json", func(c echo.Context) error { return c.JSON(http.StatusOK, docs.AgentCard) })
	e.GET("/.well-known/oasf.json", func(c echo.Context) error { return c.JSON(http.StatusOK, docs.OASF) })
	e.GET("/.well-known/mcp.json", func(c echo.Context) error { return c.JSON(http.StatusOK, docs.MCP) })
}
