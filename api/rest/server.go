// Package rest implements the plain REST surface (spec.md section
// 4.9, component C12), grounded on the example pack's echo Controller
// pattern.
package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/proofport/gateway/api/httperr"
	"github.com/proofport/gateway/api/sse"
	"github.com/proofport/gateway/flow"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/paymentgate"
	"github.com/proofport/gateway/skill"
)

// Controller serves the REST endpoints directly against the skill
// layer; unlike A2A/MCP it never goes through the task queue.
type Controller struct {
	deps  skill.Deps
	flows *flow.Orchestrator
	gate  *paymentgate.Gate
}

// NewController builds a Controller.
func NewController(deps skill.Deps, flows *flow.Orchestrator, gate *paymentgate.Gate) *Controller {
	return &Controller{deps: deps, flows: flows, gate: gate}
}

// RegisterRoutes wires every /api/v1 route (spec.md section 4.9).
func (c *Controller) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/api/v1")
	v1.GET("/circuits", c.GetCircuits)
	v1.POST("/signing", c.PostSigning)
	v1.GET("/signing/:id/status", c.GetSigningStatus)
	v1.POST("/signing/:id/payment", c.PostSigningPayment)
	v1.POST("/proofs", c.PostProofs, c.gate.Require())
	v1.POST("/proofs/verify", c.PostProofsVerify)
	v1.GET("/verify/:proofId", c.GetVerify)
	v1.POST("/flow", c.PostFlow)
	v1.GET("/flow/:id", c.GetFlow)
	v1.GET("/flow/:id/events", c.GetFlowEvents)
}

// GetCircuits serves GET /api/v1/circuits.
func (c *Controller) GetCircuits(ctx echo.Context) error {
	result := skill.GetSupportedCircuits(c.deps, ctx.QueryParam("chainId"))
	return ctx.JSON(http.StatusOK, result)
}

type signingRequest struct {
	CircuitID   string   `json:"circuitId"`
	Scope       string   `json:"scope"`
	CountryList []string `json:"countryList"`
	IsIncluded  *bool    `json:"isIncluded"`
}

// PostSigning serves POST /api/v1/signing.
func (c *Controller) PostSigning(ctx echo.Context) error {
	var req signingRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	result, err := skill.RequestSigning(ctx.Request().Context(), c.deps, skill.RequestSigningInput{
		CircuitID: req.CircuitID, Scope: req.Scope, CountryList: req.CountryList, IsIncluded: req.IsIncluded,
	})
	if err != nil {
		return httperr.Respond(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetSigningStatus serves GET /api/v1/signing/{id}/status.
func (c *Controller) GetSigningStatus(ctx echo.Context) error {
	result, err := skill.CheckStatus(ctx.Request().Context(), c.deps, ctx.Param("id"))
	if err != nil {
		return httperr.Respond(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

// PostSigningPayment serves POST /api/v1/signing/{id}/payment.
func (c *Controller) PostSigningPayment(ctx echo.Context) error {
	result, err := skill.RequestPayment(ctx.Request().Context(), c.deps, ctx.Param("id"))
	if err != nil {
		return httperr.Respond(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

type proofRequest struct {
	RequestID   string   `json:"requestId"`
	Address     string   `json:"address"`
	Signature   string   `json:"signature"`
	Scope       string   `json:"scope"`
	CircuitID   string   `json:"circuitId"`
	CountryList []string `json:"countryList"`
	IsIncluded  *bool    `json:"isIncluded"`
}

// PostProofs serves POST /api/v1/proofs, sitting behind the payment
// gate middleware.
func (c *Controller) PostProofs(ctx echo.Context) error {
	var req proofRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	result, err := skill.GenerateProof(ctx.Request().Context(), c.deps, skill.GenerateProofInput{
		RequestID: req.RequestID, Address: req.Address, Signature: req.Signature, Scope: req.Scope,
		CircuitID: req.CircuitID, CountryList: req.CountryList, IsIncluded: req.IsIncluded,
	})
	if err != nil {
		return httperr.Respond(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

type verifyRequest struct {
	CircuitID         string   `json:"circuitId"`
	Proof             string   `json:"proof"`
	PublicInputs      string   `json:"publicInputs"`
	PublicInputsWords []string `json:"publicInputsWords"`
	ChainID           string   `json:"chainId"`
}

// PostProofsVerify serves POST /api/v1/proofs/verify.
func (c *Controller) PostProofsVerify(ctx echo.Context) error {
	var req verifyRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	result, err := skill.VerifyProof(ctx.Request().Context(), c.deps, skill.VerifyProofInput{
		CircuitID: req.CircuitID, ProofHex: req.Proof, PublicInputsHex: req.PublicInputs,
		PublicInputsWords: req.PublicInputsWords, ChainID: req.ChainID,
	})
	if err != nil {
		return httperr.Respond(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetVerify serves GET /api/v1/verify/{proofId}: a lookup of a
// previously generated proof for out-of-band verification.
func (c *Controller) GetVerify(ctx echo.Context) error {
	circuitID, proof, publicInputs, nullifier, err := c.deps.LoadProof(ctx.Request().Context(), ctx.Param("proofId"))
	if err != nil {
		return httperr.Respond(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"circuitId":    circuitID,
		"proof":        hexString(proof),
		"publicInputs": hexString(publicInputs),
		"nullifier":    nullifier,
	})
}

type flowRequest struct {
	CircuitID   string   `json:"circuitId"`
	Scope       string   `json:"scope"`
	CountryList []string `json:"countryList"`
	IsIncluded  *bool    `json:"isIncluded"`
}

// PostFlow serves POST /api/v1/flow.
func (c *Controller) PostFlow(ctx echo.Context) error {
	var req flowRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	f, err := c.flows.CreateFlow(ctx.Request().Context(), flow.CreateParams{
		CircuitID: req.CircuitID, Scope: req.Scope, CountryList: req.CountryList, IsIncluded: req.IsIncluded,
	})
	if err != nil {
		return httperr.Respond(ctx, err)
	}
	return ctx.JSON(http.StatusOK, f)
}

// GetFlow serves GET /api/v1/flow/{id}, advancing the flow one step
// before returning its current state.
func (c *Controller) GetFlow(ctx echo.Context) error {
	f, err := c.flows.AdvanceFlow(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return httperr.Respond(ctx, err)
	}
	return ctx.JSON(http.StatusOK, f)
}

// GetFlowEvents serves GET /api/v1/flow/{id}/events: subscribes to the
// flow's kv pub/sub channel so orchestrator-driven advances are
// forwarded as soon as they're published, runs a 5-second auto-advance
// fallback alongside it, and emits the allowed `phase`/`done` event
// pair (spec.md section 4.4/4.9).
func (c *Controller) GetFlowEvents(ctx echo.Context) error {
	id := ctx.Param("id")
	reqCtx := ctx.Request().Context()

	sub, err := c.deps.KV.Subscribe(reqCtx, flow.EventsChannel(id))
	if err != nil {
		return httperr.Respond(ctx, err)
	}
	defer sub.Close()

	w := ctx.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var lastPhase gateway.FlowPhase
	emitPhase := func(f gateway.ProofFlow) bool {
		if f.Phase == lastPhase {
			return false
		}
		lastPhase = f.Phase
		sse.Write(w, "phase", f)
		if f.Phase.IsTerminal() {
			sse.Write(w, "done", f)
			return true
		}
		return false
	}

	advance := func() (gateway.ProofFlow, bool) {
		f, err := c.flows.AdvanceFlow(reqCtx, id)
		if err != nil {
			sse.Write(w, "done", map[string]string{"error": err.Error()})
			return gateway.ProofFlow{}, true
		}
		return f, emitPhase(f)
	}

	if _, done := advance(); done {
		return nil
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-reqCtx.Done():
			return nil
		case msg := <-sub.Channel():
			var f gateway.ProofFlow
			if err := json.Unmarshal(msg.Payload, &f); err != nil {
				continue
			}
			if emitPhase(f) {
				return nil
			}
		case <-ticker.C:
			if _, done := advance(); done {
				return nil
			}
		}
	}
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
