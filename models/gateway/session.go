package gateway

import "time"

// SigningStatus and PaymentStatus are the two independent sub-machines
// tracked on a ProofRequestRecord.
type SigningStatus string
type PaymentStatus string

const (
	SigningPending   SigningStatus = "pending"
	SigningCompleted SigningStatus = "completed"

	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

// ProofRequestRecord is the session record: the one-shot bearer
// capability that feeds a single proof generation (spec.md section 3,
// design note in section 9). Consumed (loaded then deleted) by
// generate_proof in session mode.
type ProofRequestRecord struct {
	ID            string        `json:"id"`
	Scope         string        `json:"scope"`
	CircuitID     string        `json:"circuitId"`
	Status        SigningStatus `json:"status"`
	Address       string        `json:"address,omitempty"`
	Signature     string        `json:"signature,omitempty"`
	SignalHash    string        `json:"signalHash,omitempty"`
	CountryList   []string      `json:"countryList,omitempty"`
	IsIncluded    *bool         `json:"isIncluded,omitempty"`
	PaymentStatus PaymentStatus `json:"paymentStatus,omitempty"`
	PaymentTxHash string        `json:"paymentTxHash,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	ExpiresAt     time.Time     `json:"expiresAt"`
}

// Expired reports whether now is past ExpiresAt.
func (r ProofRequestRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Phase is the derived, externally-visible state of a session, per
// the rule table in spec.md section 4.3 (check_status).
type Phase string

const (
	PhaseExpired Phase = "expired"
	PhaseSigning Phase = "signing"
	PhasePayment Phase = "payment"
	PhaseReady   Phase = "ready"
)

// FlowPhase is the macro-state of a ProofFlow (spec.md section 3).
type FlowPhase string

const (
	FlowSigning    FlowPhase = "signing"
	FlowPayment    FlowPhase = "payment"
	FlowGenerating FlowPhase = "generating"
	FlowCompleted  FlowPhase = "completed"
	FlowFailed     FlowPhase = "failed"
	FlowExpired    FlowPhase = "expired"
)

// IsTerminal reports whether phase never advances further.
func (p FlowPhase) IsTerminal() bool {
	switch p {
	case FlowCompleted, FlowFailed, FlowExpired:
		return true
	default:
		return false
	}
}

// ProofFlow is the orchestrated macro-state machine combining session
// lifecycle and proof outcome (spec.md section 3, 4.4).
type ProofFlow struct {
	FlowID      string         `json:"flowId"`
	RequestID   string         `json:"requestId"`
	CircuitID   string         `json:"circuitId"`
	Scope       string         `json:"scope"`
	CountryList []string       `json:"countryList,omitempty"`
	IsIncluded  *bool          `json:"isIncluded,omitempty"`
	Phase       FlowPhase      `json:"phase"`
	SigningURL  string         `json:"signingUrl"`
	PaymentURL  string         `json:"paymentUrl,omitempty"`
	ProofResult map[string]any `json:"proofResult,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
