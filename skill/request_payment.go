package skill

import (
	"context"

	"github.com/proofport/gateway/config"
	"github.com/proofport/gateway/models/gateway"
)

// RequestPaymentResult is request_payment(requestId)'s structured
// response.
type RequestPaymentResult struct {
	PaymentURL string `json:"paymentUrl"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Network    string `json:"network"`
}

// RequestPayment idempotently marks a session's payment sub-status
// pending and returns the payment URL and price (spec.md section 4.3).
func RequestPayment(ctx context.Context, deps Deps, requestID string) (RequestPaymentResult, error) {
	if deps.PaymentMode == config.PaymentDisabled {
		return RequestPaymentResult{}, gateway.NewError(gateway.KindInvalidArgument, "payment is disabled")
	}

	record, err := deps.Sessions.Get(ctx, requestID)
	if err != nil {
		return RequestPaymentResult{}, err
	}
	if record.Status != gateway.SigningCompleted {
		return RequestPaymentResult{}, gateway.NewError(gateway.KindInvalidArgument, "signing is not complete")
	}
	if record.PaymentStatus == gateway.PaymentCompleted {
		return RequestPaymentResult{}, gateway.NewError(gateway.KindInvalidArgument, "payment is already complete")
	}

	if record.PaymentStatus != gateway.PaymentPending {
		record.PaymentStatus = gateway.PaymentPending
		if err := deps.Sessions.Save(ctx, record); err != nil {
			return RequestPaymentResult{}, err
		}
	}

	return RequestPaymentResult{
		PaymentURL: deps.BaseURL + "/pay/" + requestID,
		Amount:     deps.ProofPrice,
		Currency:   "USDC",
		Network:    deps.PaymentNetwork,
	}, nil
}
