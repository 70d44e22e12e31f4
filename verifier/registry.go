// Package verifier resolves circuits to their deployed on-chain
// verifier contracts and performs the view call described in spec.md
// section 4.3's verify_proof.
package verifier

import (
	"github.com/proofport/gateway/models/gateway"
)

// Registry is the static circuit->verifier-address table backing both
// get_supported_circuits and verify_proof.
type Registry struct {
	circuits map[string]gateway.CircuitMeta
}

// NewRegistry builds a Registry from the known circuit set. Verifier
// addresses are supplied per-chain by the caller (config), since they
// vary across testnet/mainnet deployments.
func NewRegistry(verifiers map[string]map[string]string) *Registry {
	r := &Registry{circuits: make(map[string]gateway.CircuitMeta)}
	r.circuits[gateway.CircuitCoinbaseAttestation] = gateway.CircuitMeta{
		ID:          gateway.CircuitCoinbaseAttestation,
		Name:        "Coinbase Attestation",
		Description: "Proves a Coinbase-issued attestation without revealing the signer set.",
		Verifiers:   verifiers[gateway.CircuitCoinbaseAttestation],
	}
	r.circuits[gateway.CircuitCoinbaseCountryAttestation] = gateway.CircuitMeta{
		ID:          gateway.CircuitCoinbaseCountryAttestation,
		Name:        "Coinbase Country Attestation",
		Description: "Proves residency in (or exclusion from) a declared country list.",
		Verifiers:   verifiers[gateway.CircuitCoinbaseCountryAttestation],
	}
	return r
}

// List returns every known circuit with all of its per-chain verifier
// addresses; it does no chain filtering.
func (r *Registry) List() []gateway.CircuitMeta {
	out := make([]gateway.CircuitMeta, 0, len(r.circuits))
	for _, c := range r.circuits {
		out = append(out, c)
	}
	return out
}

// Get returns the metadata for circuitID, or false if unknown.
func (r *Registry) Get(circuitID string) (gateway.CircuitMeta, bool) {
	c, ok := r.circuits[circuitID]
	return c, ok
}

// VerifierAddress resolves the deployed verifier contract for
// (circuitID, chainID). Returns false if either is unknown
// (NoVerifierDeployed per spec.md section 4.3).
func (r *Registry) VerifierAddress(circuitID, chainID string) (string, bool) {
	c, ok := r.circuits[circuitID]
	if !ok {
		return "", false
	}
	addr, ok := c.Verifiers[chainID]
	return addr, ok
}
