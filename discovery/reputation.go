package discovery

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/proofport/gateway/models/gateway"
)

// reputationABIJSON is the minimal ABI for the ERC-8004 reputation
// registry's increment(address) entry point.
const reputationABIJSON = `[{"name":"increment","type":"function","inputs":[{"name":"agent","type":"address"}],"outputs":[]}]`

// ReputationRegistry fires the fire-and-forget ERC-8004 reputation
// side effect the worker calls after a completed task (spec.md section
// 4.5 [EXPANDED]). Transactions are signed with the gateway's own
// proverPrivateKey and submitted without waiting for confirmation.
type ReputationRegistry struct {
	client     *ethclient.Client
	chainID    *big.Int
	abi        abi.ABI
	contract   common.Address
	privateKey string
	log        zerolog.Logger
}

// NewReputationRegistry dials rpcURL and builds a ReputationRegistry
// bound to contractAddress on chainID.
func NewReputationRegistry(rpcURL string, chainID int64, contractAddress, privateKeyHex string, log zerolog.Logger) (*ReputationRegistry, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, gateway.Wrap(gateway.KindUpstreamFailure, "could not dial reputation chain rpc", err)
	}
	parsed, err := abi.JSON(strings.NewReader(reputationABIJSON))
	if err != nil {
		return nil, gateway.Wrap(gateway.KindInternal, "could not parse reputation abi", err)
	}
	return &ReputationRegistry{
		client:     client,
		chainID:    big.NewInt(chainID),
		abi:        parsed,
		contract:   common.HexToAddress(contractAddress),
		privateKey: privateKeyHex,
		log:        log.With().Str("component", "reputation").Logger(),
	}, nil
}

// Increment submits an increment(address) transaction for address,
// signed with the gateway's operator key. Errors are the caller's to
// log-and-swallow; this registry never retries.
func (r *ReputationRegistry) Increment(ctx context.Context, address string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(r.privateKey, "0x"))
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not parse reputation signer key", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, r.chainID)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not build reputation transactor", err)
	}
	auth.Context = ctx

	data, err := r.abi.Pack("increment", common.HexToAddress(address))
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode reputation call", err)
	}

	nonce, err := r.client.PendingNonceAt(ctx, auth.From)
	if err != nil {
		return gateway.Wrap(gateway.KindUpstreamFailure, "could not fetch reputation signer nonce", err)
	}
	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return gateway.Wrap(gateway.KindUpstreamFailure, "could not fetch gas price", err)
	}

	tx := types.NewTransaction(nonce, r.contract, big.NewInt(0), 100_000, gasPrice, data)
	signed, err := auth.Signer(auth.From, tx)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not sign reputation transaction", err)
	}

	if err := r.client.SendTransaction(ctx, signed); err != nil {
		return gateway.Wrap(gateway.KindUpstreamFailure, "could not submit reputation transaction", err)
	}
	return nil
}
