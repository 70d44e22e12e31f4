package skill

import (
	"github.com/proofport/gateway/models/gateway"
)

// GetSupportedCircuitsResult is get_supported_circuits(chainId?)'s
// structured response.
type GetSupportedCircuitsResult struct {
	ChainID  string               `json:"chainId,omitempty"`
	Circuits []gateway.CircuitMeta `json:"circuits"`
}

// GetSupportedCircuits is pure — static circuit metadata plus
// per-chain verifier addresses (spec.md section 4.3).
func GetSupportedCircuits(deps Deps, chainID string) GetSupportedCircuitsResult {
	circuits := deps.Registry.List()
	if chainID == "" {
		return GetSupportedCircuitsResult{Circuits: circuits}
	}

	narrowed := make([]gateway.CircuitMeta, len(circuits))
	for i, c := range circuits {
		addr := c.Verifiers[chainID]
		narrowed[i] = gateway.CircuitMeta{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Verifiers:   map[string]string{chainID: addr},
		}
	}
	return GetSupportedCircuitsResult{ChainID: chainID, Circuits: narrowed}
}
