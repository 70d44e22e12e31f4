package skill

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/proofport/gateway/config"
	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/prover"
)

const proofTTL = 24 * time.Hour

func proofKey(id string) string { return "proof:" + id }

// GenerateProofInput is generate_proof's two-mode argument set
// (spec.md section 4.3). Session mode supplies RequestID; direct mode
// supplies the remaining fields directly and is only valid when
// payment is disabled.
type GenerateProofInput struct {
	RequestID   string
	Address     string
	Signature   string
	Scope       string
	CircuitID   string
	CountryList []string
	IsIncluded  *bool
}

// GenerateProofResult is the skill's structured response.
type GenerateProofResult struct {
	Proof         string `json:"proof"`
	PublicInputs  string `json:"publicInputs"`
	Nullifier     string `json:"nullifier"`
	SignalHash    string `json:"signalHash"`
	ProofID       string `json:"proofId"`
	VerifyURL     string `json:"verifyUrl"`
	Cached        bool   `json:"cached,omitempty"`
	Attestation   string `json:"attestation,omitempty"`
	PaymentTxHash string `json:"paymentTxHash,omitempty"`
}

// storedProof is the compact blob persisted under proof:{proofId} for
// later verification-URL lookup.
type storedProof struct {
	CircuitID    string
	Proof        []byte
	PublicInputs []byte
	Nullifier    string
}

// GenerateProof resolves session or direct mode inputs, enforces the
// rate limiter and proof cache, and invokes the configured prover
// (local binary or TEE), per spec.md section 4.3.
func GenerateProof(ctx context.Context, deps Deps, in GenerateProofInput) (GenerateProofResult, error) {
	params, paymentTxHash, err := deps.resolveProveParams(ctx, in)
	if err != nil {
		return GenerateProofResult{}, err
	}

	if _, ok := deps.Registry.Get(params.CircuitID); !ok {
		return GenerateProofResult{}, gateway.NewError(gateway.KindInvalidArgument, "unknown circuitId")
	}
	if params.CircuitID == gateway.CircuitCoinbaseCountryAttestation && len(params.CountryList) == 0 {
		return GenerateProofResult{}, gateway.NewError(gateway.KindInvalidArgument, "countryList is required for this circuit")
	}

	if deps.RateLimit != nil {
		if ok, retryAfter := deps.RateLimit.Allow(params.Address); !ok {
			return GenerateProofResult{}, gateway.RateLimitedErr(retryAfter)
		}
	}

	cacheKey := proofCacheKey(params)
	if deps.ProofCache != nil {
		if cached, ok := deps.ProofCache.Get(cacheKey); ok {
			result := cached.(GenerateProofResult)
			result.Cached = true
			result.PaymentTxHash = paymentTxHash
			return result, nil
		}
	}

	proof, err := deps.prove(ctx, params)
	if err != nil {
		return GenerateProofResult{}, err
	}

	var attestation string
	if deps.TeeMode == config.TeeNitro && deps.TeeProvider != nil {
		digest := sha256.Sum256(proof.Proof)
		raw, err := deps.TeeProvider.Attest(ctx, digest)
		if err != nil {
			return GenerateProofResult{}, err
		}
		attestation = hex.EncodeToString(raw)
	}

	proofID := newID()
	if err := deps.storeProof(ctx, proofID, params.CircuitID, proof); err != nil {
		return GenerateProofResult{}, err
	}

	result := GenerateProofResult{
		Proof:        hex.EncodeToString(proof.Proof),
		PublicInputs: hex.EncodeToString(proof.PublicInputs),
		Nullifier:    proof.Nullifier,
		SignalHash:   proof.SignalHash,
		ProofID:      proofID,
		VerifyURL:    deps.BaseURL + "/api/v1/verify/" + proofID,
		Attestation:  attestation,
	}
	if deps.ProofCache != nil {
		deps.ProofCache.SetWithTTL(cacheKey, result, 1, proofTTL)
	}
	result.PaymentTxHash = paymentTxHash
	return result, nil
}

// resolveProveParams implements the session/direct dual-mode input
// resolution. Session mode deletes the record exactly once on success
// (spec.md section 8, invariant 3) — the record is the single source
// of truth, preventing callers from substituting addresses.
func (d Deps) resolveProveParams(ctx context.Context, in GenerateProofInput) (prover.Params, string, error) {
	if in.RequestID != "" {
		record, err := d.Sessions.Get(ctx, in.RequestID)
		if err != nil {
			return prover.Params{}, "", err
		}
		if record.Status != gateway.SigningCompleted {
			return prover.Params{}, "", gateway.NewError(gateway.KindInvalidArgument, "signing is not complete")
		}
		if d.paymentRequired(record) && record.PaymentStatus != gateway.PaymentCompleted {
			return prover.Params{}, "", gateway.NewError(gateway.KindPaymentRequired, "payment is required")
		}

		isIncluded := false
		if record.IsIncluded != nil {
			isIncluded = *record.IsIncluded
		}
		params := prover.Params{
			CircuitID:   record.CircuitID,
			Address:     record.Address,
			Signature:   record.Signature,
			Scope:       record.Scope,
			SignalHash:  record.SignalHash,
			CountryList: record.CountryList,
			IsIncluded:  isIncluded,
		}
		if err := d.Sessions.Delete(ctx, in.RequestID); err != nil {
			return prover.Params{}, "", err
		}
		return params, record.PaymentTxHash, nil
	}

	if d.PaymentMode != config.PaymentDisabled {
		return prover.Params{}, "", gateway.NewError(gateway.KindInvalidArgument, "direct mode requires payment to be disabled")
	}
	if in.Address == "" || in.Signature == "" || in.Scope == "" || in.CircuitID == "" {
		return prover.Params{}, "", gateway.NewError(gateway.KindInvalidArgument, "address, signature, scope and circuitId are required")
	}
	isIncluded := false
	if in.IsIncluded != nil {
		isIncluded = *in.IsIncluded
	}
	return prover.Params{
		CircuitID:   in.CircuitID,
		Address:     in.Address,
		Signature:   in.Signature,
		Scope:       in.Scope,
		CountryList: in.CountryList,
		IsIncluded:  isIncluded,
	}, "", nil
}

func (d Deps) prove(ctx context.Context, params prover.Params) (prover.Proof, error) {
	if d.TeeMode == config.TeeNitro && d.TeeProvider != nil {
		return d.TeeProvider.Prove(ctx, params)
	}
	return d.Prover.Prove(ctx, params)
}

func (d Deps) storeProof(ctx context.Context, proofID, circuitID string, proof prover.Proof) error {
	enc, err := kv.Encode(storedProof{
		CircuitID:    circuitID,
		Proof:        proof.Proof,
		PublicInputs: proof.PublicInputs,
		Nullifier:    proof.Nullifier,
	})
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode stored proof", err)
	}
	if err := d.KV.Set(ctx, proofKey(proofID), enc, proofTTL); err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not persist proof", err)
	}
	return nil
}

// LoadProof loads a previously generated proof for GET
// /api/v1/verify/{proofId} (spec.md section 4.9).
func (d Deps) LoadProof(ctx context.Context, proofID string) (circuitID string, proof, publicInputs []byte, nullifier string, err error) {
	raw, err := d.KV.Get(ctx, proofKey(proofID))
	if err == kv.ErrNotFound {
		return "", nil, nil, "", gateway.NewError(gateway.KindNotFound, fmt.Sprintf("proof %q not found", proofID))
	}
	if err != nil {
		return "", nil, nil, "", gateway.Wrap(gateway.KindInternal, "could not load proof", err)
	}
	var stored storedProof
	if err := kv.Decode(raw, &stored); err != nil {
		return "", nil, nil, "", gateway.Wrap(gateway.KindInternal, "could not decode proof", err)
	}
	return stored.CircuitID, stored.Proof, stored.PublicInputs, stored.Nullifier, nil
}

// proofCacheKey matches (circuitId, address, scope, countryList,
// isIncluded) — deliberately no chain id (Open Question (d) resolved
// as "no").
func proofCacheKey(params prover.Params) string {
	key := fmt.Sprintf("%s|%s|%s|%v|%t", params.CircuitID, params.Address, params.Scope, params.CountryList, params.IsIncluded)
	return key
}
