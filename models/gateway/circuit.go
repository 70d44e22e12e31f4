package gateway

// CircuitMeta describes one supported circuit and, per chain, the
// deployed verifier contract address (spec.md section 4.3
// get_supported_circuits).
type CircuitMeta struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Verifiers   map[string]string `json:"verifiers"` // chainId -> contract address
}

// Known circuit identifiers.
const (
	CircuitCoinbaseAttestation        = "coinbase_attestation"
	CircuitCoinbaseCountryAttestation = "coinbase_country_attestation"
)
