package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/proofport/gateway/models/gateway"
)

// LocalProver shells out to a configured bb/nargo binary, matching the
// teacher's pattern of wrapping an external tool invocation behind a
// narrow interface (rosetta/invoker wraps the Cadence script invoker
// the same way). The binary's stdin/stdout contract — JSON params in,
// JSON proof out — is this gateway's own, not the prover's.
type LocalProver struct {
	binaryPath string
	circuitsDir string
}

// NewLocalProver builds a LocalProver invoking binaryPath with a
// circuit definitions directory circuitsDir.
func NewLocalProver(binaryPath, circuitsDir string) *LocalProver {
	return &LocalProver{binaryPath: binaryPath, circuitsDir: circuitsDir}
}

type localProveInput struct {
	CircuitsDir string `json:"circuitsDir"`
	Params      Params `json:"params"`
}

type localProveOutput struct {
	Proof        string `json:"proof"`
	PublicInputs string `json:"publicInputs"`
	Nullifier    string `json:"nullifier"`
	SignalHash   string `json:"signalHash"`
	Error        string `json:"error"`
}

// Prove invokes the configured binary, bounded by ctx.
func (p *LocalProver) Prove(ctx context.Context, params Params) (Proof, error) {
	input, err := json.Marshal(localProveInput{CircuitsDir: p.circuitsDir, Params: params})
	if err != nil {
		return Proof{}, gateway.Wrap(gateway.KindInternal, "could not encode prove input", err)
	}

	cmd := exec.CommandContext(ctx, p.binaryPath, "prove")
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Proof{}, gateway.Wrap(gateway.KindUpstreamTimeout, "prover invocation timed out", err)
		}
		return Proof{}, gateway.Wrap(gateway.KindUpstreamFailure, fmt.Sprintf("prover invocation failed: %s", stderr.String()), err)
	}

	var out localProveOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Proof{}, gateway.Wrap(gateway.KindUpstreamFailure, "could not decode prover output", err)
	}
	if out.Error != "" {
		return Proof{}, gateway.NewError(gateway.KindUpstreamFailure, out.Error)
	}

	return Proof{
		Proof:        []byte(out.Proof),
		PublicInputs: []byte(out.PublicInputs),
		Nullifier:    out.Nullifier,
		SignalHash:   out.SignalHash,
	}, nil
}
