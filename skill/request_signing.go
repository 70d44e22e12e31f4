package skill

import (
	"context"
	"strings"

	"github.com/proofport/gateway/config"
	"github.com/proofport/gateway/models/gateway"
)

// RequestSigningInput is the request_signing(circuitId, scope,
// [countryList, isIncluded]) argument set.
type RequestSigningInput struct {
	CircuitID   string
	Scope       string
	CountryList []string
	IsIncluded  *bool
}

// RequestSigningResult is the skill's structured response.
type RequestSigningResult struct {
	RequestID  string   `json:"requestId"`
	SigningURL string   `json:"signingUrl"`
	ExpiresAt  string   `json:"expiresAt"`
	CircuitID  string   `json:"circuitId"`
	Scope      string   `json:"scope"`
}

// RequestSigning allocates a fresh signing session. Pure allocation —
// no blocking I/O beyond the kv write (spec.md section 4.3).
func RequestSigning(ctx context.Context, deps Deps, in RequestSigningInput) (RequestSigningResult, error) {
	if _, ok := deps.Registry.Get(in.CircuitID); !ok {
		return RequestSigningResult{}, gateway.NewError(gateway.KindInvalidArgument, "unknown circuitId")
	}
	if strings.TrimSpace(in.Scope) == "" {
		return RequestSigningResult{}, gateway.NewError(gateway.KindInvalidArgument, "scope must not be blank")
	}
	if in.CircuitID == gateway.CircuitCoinbaseCountryAttestation {
		if len(in.CountryList) == 0 || in.IsIncluded == nil {
			return RequestSigningResult{}, gateway.NewError(gateway.KindInvalidArgument, "countryList and isIncluded are required for this circuit")
		}
	}

	now := deps.now().UTC()
	record := gateway.ProofRequestRecord{
		ID:          newID(),
		Scope:       in.Scope,
		CircuitID:   in.CircuitID,
		Status:      gateway.SigningPending,
		CountryList: in.CountryList,
		IsIncluded:  in.IsIncluded,
		CreatedAt:   now,
		ExpiresAt:   now.Add(deps.SigningTTL),
	}
	if deps.PaymentMode == config.PaymentDisabled {
		record.PaymentStatus = gateway.PaymentCompleted
	}

	if err := deps.Sessions.Create(ctx, record); err != nil {
		return RequestSigningResult{}, err
	}

	return RequestSigningResult{
		RequestID:  record.ID,
		SigningURL: deps.BaseURL + "/s/" + record.ID,
		ExpiresAt:  record.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		CircuitID:  record.CircuitID,
		Scope:      record.Scope,
	}, nil
}
