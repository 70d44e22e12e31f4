package gateway

import "time"

// PaymentStatusRecord is the lifecycle of one settled (or settling)
// micropayment, independent from the session-level PaymentStatus flag.
type PaymentStatusRecord string

const (
	PayRecordPending  PaymentStatusRecord = "pending"
	PayRecordSettled  PaymentStatusRecord = "settled"
	PayRecordRefunded PaymentStatusRecord = "refunded"
)

// PaymentRecord tracks one EIP-3009 TransferWithAuthorization payment
// from acceptance through on-chain settlement (spec.md section 3, 4.11).
type PaymentRecord struct {
	ID             string              `json:"id"`
	TaskID         string              `json:"taskId,omitempty"`
	PayerAddress   string              `json:"payerAddress"`
	Amount         string              `json:"amount"`
	Network        string              `json:"network"`
	Scheme         string              `json:"scheme"`
	Status         PaymentStatusRecord `json:"status"`
	FacilitatorRef string              `json:"facilitatorRef,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// PaymentChallenge is the machine-readable 402 body (spec.md section 6).
type PaymentChallenge struct {
	Scheme            string                   `json:"scheme"`
	Network           string                   `json:"network"`
	Amount            string                   `json:"amount"`
	Asset             string                   `json:"asset"`
	PayTo             string                   `json:"payTo"`
	MaxTimeoutSeconds int                      `json:"maxTimeoutSeconds"`
	Extra             PaymentChallengeExtra    `json:"extra"`
	Resource          PaymentChallengeResource `json:"resource"`
}

// PaymentChallengeExtra carries EIP-712 domain metadata for USDC.
type PaymentChallengeExtra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentChallengeResource identifies the paid resource.
type PaymentChallengeResource struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// TransferAuthorization is the EIP-3009 payload signed by the payer.
type TransferAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// PaymentPayload is the decoded X-PAYMENT / PAYMENT-SIGNATURE header
// value (spec.md section 6).
type PaymentPayload struct {
	X402Version int    `json:"x402Version"`
	Resource    string `json:"resource"`
	Accepted    bool   `json:"accepted"`
	Payload     struct {
		Authorization TransferAuthorization `json:"authorization"`
		Signature     string                `json:"signature"`
	} `json:"payload"`
}
