// Package config loads the gateway's environment-driven configuration
// (spec.md section 6). cmd/gateway-server copies its port, level,
// base-url and sign-page-url flag values into Config, and ApplyEnv then
// lets the matching environment variable override each of them, so the
// gateway can run unmodified under container orchestration.
package config

import (
	"os"
	"strconv"
)

// PaymentMode governs whether the payment gate is active and which
// network it settles against.
type PaymentMode string

const (
	PaymentDisabled PaymentMode = "disabled"
	PaymentTestnet  PaymentMode = "testnet"
	PaymentMainnet  PaymentMode = "mainnet"
)

// TeeMode selects how generate_proof obtains a proof.
type TeeMode string

const (
	TeeAuto     TeeMode = "auto"
	TeeDisabled TeeMode = "disabled"
	TeeLocal    TeeMode = "local"
	TeeNitro    TeeMode = "nitro"
)

// Config is the fully-resolved process configuration.
type Config struct {
	Port int

	RedisURL string

	A2ABaseURL  string
	SignPageURL string

	SigningTTLSeconds int

	PaymentMode        PaymentMode
	PaymentPayTo       string
	PaymentFacilitatorURL string
	PaymentProofPrice  string

	TeeMode               TeeMode
	EnclaveCID            int
	EnclavePort           int
	TeeAttestationEnabled bool

	ChainRPCURL      string
	BaseRPCURL       string
	EASGraphQLEndpoint string

	ERC8004IdentityAddress   string
	ERC8004ReputationAddress string
	ProverPrivateKey         string

	OpenAIAPIKey string
	GeminiAPIKey string
	AnthropicAPIKey string

	CORSOrigins []string

	LogLevel  string
	DeployEnv string
	NodeEnv   string
}

// Default returns the configuration baseline before flags/env are
// applied, matching the teacher's inline flag defaults.
func Default() Config {
	return Config{
		Port:              8080,
		SigningTTLSeconds: 300,
		PaymentMode:       PaymentDisabled,
		TeeMode:           TeeAuto,
		EnclavePort:       5005,
		LogLevel:          "info",
	}
}

// ApplyEnv overlays recognized environment variables onto cfg,
// matching spec.md section 6 exactly. Flags (set by cmd/gateway-server)
// are applied before this call; env vars take precedence, mirroring
// twelve-factor deployment conventions used across the example pack.
func (c *Config) ApplyEnv() {
	if v, ok := lookupInt("PORT"); ok {
		c.Port = v
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok {
		c.RedisURL = v
	}
	if v, ok := os.LookupEnv("A2A_BASE_URL"); ok {
		c.A2ABaseURL = v
	}
	if v, ok := os.LookupEnv("SIGN_PAGE_URL"); ok {
		c.SignPageURL = v
	}
	if v, ok := lookupInt("SIGNING_TTL_SECONDS"); ok {
		c.SigningTTLSeconds = v
	}
	if v, ok := os.LookupEnv("PAYMENT_MODE"); ok {
		c.PaymentMode = PaymentMode(v)
	}
	if v, ok := os.LookupEnv("PAYMENT_PAY_TO"); ok {
		c.PaymentPayTo = v
	}
	if v, ok := os.LookupEnv("PAYMENT_FACILITATOR_URL"); ok {
		c.PaymentFacilitatorURL = v
	}
	if v, ok := os.LookupEnv("PAYMENT_PROOF_PRICE"); ok {
		c.PaymentProofPrice = v
	}
	if v, ok := os.LookupEnv("TEE_MODE"); ok {
		c.TeeMode = TeeMode(v)
	}
	if v, ok := lookupInt("ENCLAVE_CID"); ok {
		c.EnclaveCID = v
	}
	if v, ok := lookupInt("ENCLAVE_PORT"); ok {
		c.EnclavePort = v
	}
	if v, ok := os.LookupEnv("TEE_ATTESTATION_ENABLED"); ok {
		c.TeeAttestationEnabled = v == "true" || v == "1"
	}
	if v, ok := os.LookupEnv("CHAIN_RPC_URL"); ok {
		c.ChainRPCURL = v
	}
	if v, ok := os.LookupEnv("BASE_RPC_URL"); ok {
		c.BaseRPCURL = v
	}
	if v, ok := os.LookupEnv("EAS_GRAPHQL_ENDPOINT"); ok {
		c.EASGraphQLEndpoint = v
	}
	if v, ok := os.LookupEnv("ERC8004_IDENTITY_ADDRESS"); ok {
		c.ERC8004IdentityAddress = v
	}
	if v, ok := os.LookupEnv("ERC8004_REPUTATION_ADDRESS"); ok {
		c.ERC8004ReputationAddress = v
	}
	if v, ok := os.LookupEnv("PROVER_PRIVATE_KEY"); ok {
		c.ProverPrivateKey = v
	}
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		c.OpenAIAPIKey = v
	}
	if v, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
		c.GeminiAPIKey = v
	}
	if v, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
		c.AnthropicAPIKey = v
	}
	if v, ok := os.LookupEnv("A2A_CORS_ORIGINS"); ok {
		c.CORSOrigins = splitCSV(v)
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv("DEPLOY_ENV"); ok {
		c.DeployEnv = v
	}
	if v, ok := os.LookupEnv("NODE_ENV"); ok {
		c.NodeEnv = v
	}
}

// PaymentEnabled reports whether the payment gate should be wired in.
func (c Config) PaymentEnabled() bool {
	return c.PaymentMode != PaymentDisabled && c.PaymentMode != ""
}

func lookupInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitCSV(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
