// Package payment wraps the external payment facilitator and persists
// PaymentRecord settlement state (spec.md section 4.11, component C5).
// The verify/settle sequencing and the x402 wire shapes are grounded on
// the example pack's x402 gateway middleware.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/proofport/gateway/models/gateway"
)

// VerifyResult is the facilitator's response to a verify call.
type VerifyResult struct {
	Success bool   `json:"success"`
	Payer   string `json:"payer"`
}

// SettleResult is the facilitator's response to a settle call.
type SettleResult struct {
	Success      bool   `json:"success"`
	Transaction  string `json:"transaction"`
	Network      string `json:"network"`
	ErrorMessage string `json:"errorMessage"`
	ErrorReason  string `json:"errorReason"`
}

// Facilitator talks to the external x402 facilitator HTTP service.
type Facilitator struct {
	baseURL string
	client  *http.Client
}

// NewFacilitator builds a Facilitator pointed at baseURL
// (paymentFacilitatorUrl, spec.md section 6).
func NewFacilitator(baseURL string, timeout time.Duration) *Facilitator {
	return &Facilitator{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type verifyRequest struct {
	PaymentPayload gateway.PaymentPayload    `json:"paymentPayload"`
	Requirements   gateway.PaymentChallenge  `json:"paymentRequirements"`
}

// Verify asks the facilitator to validate the signed payload against
// requirements without submitting it on-chain.
func (f *Facilitator) Verify(ctx context.Context, payload gateway.PaymentPayload, requirements gateway.PaymentChallenge) (VerifyResult, error) {
	var out VerifyResult
	if err := f.call(ctx, "/verify", verifyRequest{PaymentPayload: payload, Requirements: requirements}, &out); err != nil {
		return VerifyResult{}, err
	}
	if !out.Success {
		return out, gateway.NewError(gateway.KindPaymentRequired, "facilitator rejected payment")
	}
	return out, nil
}

// Settle asks the facilitator to submit the payload on-chain.
func (f *Facilitator) Settle(ctx context.Context, payload gateway.PaymentPayload, requirements gateway.PaymentChallenge) (SettleResult, error) {
	var out SettleResult
	if err := f.call(ctx, "/settle", verifyRequest{PaymentPayload: payload, Requirements: requirements}, &out); err != nil {
		return SettleResult{}, err
	}
	if !out.Success {
		return out, gateway.NewError(gateway.KindPaymentRequired, fmt.Sprintf("settlement failed: %s", out.ErrorMessage))
	}
	return out, nil
}

// StatusResult is the facilitator's response to a settlement status poll.
type StatusResult struct {
	Confirmed bool   `json:"confirmed"`
	Failed    bool   `json:"failed"`
	Transaction string `json:"transaction"`
}

// CheckStatus asks the facilitator whether a previously-settled
// transaction has confirmed on-chain, for the settlement worker's
// 30-second reconciliation pass (spec.md section 4.11).
func (f *Facilitator) CheckStatus(ctx context.Context, facilitatorRef string) (StatusResult, error) {
	var out StatusResult
	err := f.call(ctx, "/status/"+facilitatorRef, struct{}{}, &out)
	return out, err
}

func (f *Facilitator) call(ctx context.Context, path string, body, out any) error {
	enc, err := json.Marshal(body)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode facilitator request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(enc))
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not build facilitator request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return gateway.Wrap(gateway.KindUpstreamTimeout, "facilitator call timed out", err)
		}
		return gateway.Wrap(gateway.KindUpstreamFailure, "facilitator call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return gateway.NewError(gateway.KindUpstreamFailure, fmt.Sprintf("facilitator returned %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gateway.Wrap(gateway.KindUpstreamFailure, "could not decode facilitator response", err)
	}
	return nil
}
