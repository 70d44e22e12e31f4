// Package prover defines the opaque collaborators the skill layer
// drives to produce a proof: the prover itself, the optional TEE
// enclave, and the LLM used only by the skill router (spec.md section
// 1, "explicitly out of scope").
package prover

import "context"

// Params is the computed circuit input the skill layer assembles from
// a ProofRequestRecord or direct-mode arguments before invoking Prove.
type Params struct {
	CircuitID   string
	Address     string
	Signature   string
	Scope       string
	SignalHash  string
	CountryList []string
	IsIncluded  bool
}

// Proof is the raw output of a successful prove call.
type Proof struct {
	Proof        []byte
	PublicInputs []byte
	Nullifier    string
	SignalHash   string
}

// Prover is the opaque ZK proving capability (bb/nargo invocation,
// witness construction — out of scope per spec.md section 1).
type Prover interface {
	Prove(ctx context.Context, params Params) (Proof, error)
}

// TeeProvider is the opaque Nitro enclave boundary.
type TeeProvider interface {
	Prove(ctx context.Context, params Params) (Proof, error)
	Attest(ctx context.Context, digest [32]byte) ([]byte, error)
}

// ToolCall is one forced tool invocation an LLMProvider returns.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// LLMProvider is the opaque natural-language skill router collaborator.
type LLMProvider interface {
	RouteToolCall(ctx context.Context, systemPrompt, userText string, tools []ToolSchema) (*ToolCall, error)
}

// ToolSchema is one entry in the tool catalog passed to the LLM's
// forced tool-choice call (spec.md section 4.6).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}
