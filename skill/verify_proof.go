package skill

import (
	"context"
	"encoding/hex"

	"github.com/proofport/gateway/verifier"
)

// VerifyProofInput is verify_proof(circuitId, proof, publicInputs,
// chainId?)'s argument set. PublicInputsHex XOR PublicInputsWords is
// populated depending on how the caller supplied them.
type VerifyProofInput struct {
	CircuitID         string
	ProofHex          string
	PublicInputsHex   string
	PublicInputsWords []string
	ChainID           string
}

// VerifyProofResult is the skill's structured response. Contract
// reverts surface as Valid=false with a non-empty Error, never as a Go
// error (spec.md section 4.3).
type VerifyProofResult struct {
	Valid           bool   `json:"valid"`
	Error           string `json:"error,omitempty"`
	VerifierAddress string `json:"verifierAddress,omitempty"`
}

// VerifyProof normalizes publicInputs and calls the resolved
// verifier's verify(bytes,bytes32[]) view.
func VerifyProof(ctx context.Context, deps Deps, in VerifyProofInput) (VerifyProofResult, error) {
	words, err := verifier.SplitPublicInputs(in.PublicInputsHex, in.PublicInputsWords)
	if err != nil {
		return VerifyProofResult{}, err
	}

	proofBytes, err := hex.DecodeString(trimHexPrefix(in.ProofHex))
	if err != nil {
		return VerifyProofResult{Valid: false, Error: "malformed proof encoding"}, nil
	}

	result, err := deps.Chain.Verify(ctx, in.CircuitID, in.ChainID, proofBytes, words)
	if err != nil {
		return VerifyProofResult{}, err
	}
	return VerifyProofResult{Valid: result.Valid, Error: result.Error, VerifierAddress: result.VerifierAddress}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
