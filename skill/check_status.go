package skill

import (
	"context"

	"github.com/proofport/gateway/config"
	"github.com/proofport/gateway/models/gateway"
)

// SigningStatusView is the status body's nested "signing" object.
type SigningStatusView struct {
	Status gateway.SigningStatus `json:"status"`
}

// PaymentStatusView is the status body's nested "payment" object. A
// session with payment disabled reports
// "not_required" rather than echoing PaymentStatus's pending/completed
// pair verbatim.
type PaymentStatusView struct {
	Status string `json:"status"`
}

const paymentNotRequired = "not_required"

// CheckStatusResult is check_status(requestId)'s structured response
// (spec.md section 4.3/6: `{phase, signing, payment, expiresAt}`).
type CheckStatusResult struct {
	RequestID  string             `json:"requestId"`
	Phase      gateway.Phase      `json:"phase"`
	Signing    SigningStatusView  `json:"signing"`
	Payment    PaymentStatusView  `json:"payment"`
	ExpiresAt  string             `json:"expiresAt"`
	PaymentURL string             `json:"paymentUrl,omitempty"`
}

// CheckStatus computes the session's externally-visible phase per the
// rule table in spec.md section 4.3.
func CheckStatus(ctx context.Context, deps Deps, requestID string) (CheckStatusResult, error) {
	record, err := deps.Sessions.Get(ctx, requestID)
	if err != nil {
		return CheckStatusResult{}, err
	}

	result := CheckStatusResult{
		RequestID: requestID,
		Signing:   SigningStatusView{Status: record.Status},
		Payment:   paymentStatusView(deps, record),
		ExpiresAt: record.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	now := deps.now()
	switch {
	case record.Expired(now):
		result.Phase = gateway.PhaseExpired
	case record.Status != gateway.SigningCompleted:
		result.Phase = gateway.PhaseSigning
	case deps.paymentRequired(record) && record.PaymentStatus != gateway.PaymentCompleted:
		result.Phase = gateway.PhasePayment
		result.PaymentURL = deps.BaseURL + "/pay/" + requestID
	default:
		result.Phase = gateway.PhaseReady
	}
	return result, nil
}

// paymentStatusView derives the payment sub-object's status string:
// "not_required" when payment mode is disabled, the record's own
// PaymentStatus otherwise.
func paymentStatusView(deps Deps, record gateway.ProofRequestRecord) PaymentStatusView {
	if !deps.paymentRequired(record) {
		return PaymentStatusView{Status: paymentNotRequired}
	}
	return PaymentStatusView{Status: string(record.PaymentStatus)}
}

// paymentRequired reports whether payment mode demands settlement
// before a session can reach PhaseReady. Payment mode `disabled`
// short-circuits payment to "not required" (spec.md section 4.3).
func (d Deps) paymentRequired(record gateway.ProofRequestRecord) bool {
	return d.PaymentMode != config.PaymentDisabled
}
