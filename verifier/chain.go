package verifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/proofport/gateway/models/gateway"
)

// verifierABIJSON is the minimal ABI for the single view method every
// deployed verifier contract exposes (spec.md section 4.3).
const verifierABIJSON = `[{
	"constant": true,
	"inputs": [
		{"name": "proof", "type": "bytes"},
		{"name": "publicInputs", "type": "bytes32[]"}
	],
	"name": "verify",
	"outputs": [{"name": "", "type": "bool"}],
	"stateMutability": "view",
	"type": "function"
}]`

// Chain calls deployed verifier contracts via a JSON-RPC node,
// grounded on go-ethereum's ethclient + accounts/abi packages (spec.md
// section 4.3; the abi.Pack/Unpack path is consumed from go-ethereum
// rather than reimplemented).
type Chain struct {
	registry *Registry
	clients  map[string]*ethclient.Client
	abi      abi.ABI
	timeout  time.Duration
}

// NewChain builds a Chain caller. rpcURLs maps chainId -> JSON-RPC
// endpoint (chainRpcUrl/baseRpcUrl, spec.md section 6).
func NewChain(registry *Registry, rpcURLs map[string]string, timeout time.Duration) (*Chain, error) {
	parsed, err := abi.JSON(strings.NewReader(verifierABIJSON))
	if err != nil {
		return nil, fmt.Errorf("could not parse verifier ABI: %w", err)
	}
	clients := make(map[string]*ethclient.Client, len(rpcURLs))
	for chainID, url := range rpcURLs {
		client, err := ethclient.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("could not dial chain %q RPC: %w", chainID, err)
		}
		clients[chainID] = client
	}
	return &Chain{registry: registry, clients: clients, abi: parsed, timeout: timeout}, nil
}

// Result is the outcome of an on-chain verify call.
type Result struct {
	Valid           bool
	Error           string
	VerifierAddress string
}

// Verify calls the resolved verifier's verify(bytes,bytes32[]) view.
// Contract reverts are captured into Result.Error rather than
// propagated, per spec.md section 4.3.
func (c *Chain) Verify(ctx context.Context, circuitID, chainID string, proof []byte, publicInputs [][32]byte) (Result, error) {
	address, ok := c.registry.VerifierAddress(circuitID, chainID)
	if !ok {
		return Result{}, gateway.NewError(gateway.KindNotFound, fmt.Sprintf("no verifier deployed for circuit %q on chain %q", circuitID, chainID))
	}
	client, ok := c.clients[chainID]
	if !ok {
		return Result{}, gateway.NewError(gateway.KindNotFound, fmt.Sprintf("no RPC endpoint configured for chain %q", chainID))
	}

	data, err := c.abi.Pack("verify", proof, publicInputs)
	if err != nil {
		return Result{}, gateway.Wrap(gateway.KindInternal, "could not encode verify call", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	to := common.HexToAddress(address)
	out, err := client.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		if callCtx.Err() != nil {
			return Result{}, gateway.Wrap(gateway.KindUpstreamTimeout, "verifier call timed out", err)
		}
		// A revert surfaces here as an RPC error; per spec this is a
		// negative verification result, not a system failure.
		return Result{Valid: false, Error: err.Error(), VerifierAddress: address}, nil
	}

	unpacked, err := c.abi.Unpack("verify", out)
	if err != nil || len(unpacked) == 0 {
		return Result{}, gateway.Wrap(gateway.KindUpstreamFailure, "could not decode verify result", err)
	}
	valid, _ := unpacked[0].(bool)
	return Result{Valid: valid, VerifierAddress: address}, nil
}

// SplitPublicInputs normalizes publicInputs from either a contiguous
// hex string (split into 32-byte words, right-padded) or a
// pre-split array, per spec.md section 4.3.
func SplitPublicInputs(hexBlob string, words []string) ([][32]byte, error) {
	if hexBlob != "" {
		raw := common.FromHex(hexBlob)
		var out [][32]byte
		for i := 0; i < len(raw); i += 32 {
			var word [32]byte
			end := i + 32
			if end > len(raw) {
				end = len(raw)
			}
			copy(word[:], raw[i:end])
			out = append(out, word)
		}
		return out, nil
	}
	out := make([][32]byte, 0, len(words))
	for _, w := range words {
		raw := common.FromHex(w)
		var word [32]byte
		copy(word[:], raw)
		out = append(out, word)
	}
	return out, nil
}
