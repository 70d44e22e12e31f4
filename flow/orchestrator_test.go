package flow_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofport/gateway/config"
	"github.com/proofport/gateway/flow"
	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/prover"
	"github.com/proofport/gateway/service/sessionstore"
	"github.com/proofport/gateway/skill"
	"github.com/proofport/gateway/verifier"
)

type stubProver struct{}

func (stubProver) Prove(ctx context.Context, params prover.Params) (prover.Proof, error) {
	return prover.Proof{Proof: []byte{1}, PublicInputs: []byte{2}, Nullifier: "n", SignalHash: "s"}, nil
}

func newTestOrchestrator(t *testing.T) (*flow.Orchestrator, skill.Deps) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kv.NewRedis("redis://" + mr.Addr())
	require.NoError(t, err)

	registry := verifier.NewRegistry(map[string]map[string]string{
		gateway.CircuitCoinbaseAttestation: {"8453": "0xVerifier"},
	})
	deps := skill.Deps{
		KV:          store,
		Sessions:    sessionstore.New(store, 5*time.Minute),
		BaseURL:     "https://gateway.example",
		SigningTTL:  5 * time.Minute,
		PaymentMode: config.PaymentDisabled,
		Registry:    registry,
		Prover:      stubProver{},
	}
	return flow.New(store, deps, zerolog.Nop()), deps
}

func TestOrchestrator_CreateFlow(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	f, err := o.CreateFlow(ctx, flow.CreateParams{CircuitID: gateway.CircuitCoinbaseAttestation, Scope: "login"})
	require.NoError(t, err)
	assert.Equal(t, gateway.FlowSigning, f.Phase)
	assert.NotEmpty(t, f.SigningURL)

	loaded, err := o.GetFlow(ctx, f.FlowID)
	require.NoError(t, err)
	assert.Equal(t, f.RequestID, loaded.RequestID)
}

func TestOrchestrator_AdvanceFlow_SigningToCompleted(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	f, err := o.CreateFlow(ctx, flow.CreateParams{CircuitID: gateway.CircuitCoinbaseAttestation, Scope: "login"})
	require.NoError(t, err)

	advanced, err := o.AdvanceFlow(ctx, f.FlowID)
	require.NoError(t, err)
	assert.Equal(t, gateway.FlowSigning, advanced.Phase, "a not-yet-signed session stays in signing")

	record, err := deps.Sessions.Get(ctx, f.RequestID)
	require.NoError(t, err)
	record.Status = gateway.SigningCompleted
	record.Address = "0xabc"
	record.Signature = "0xsig"
	require.NoError(t, deps.Sessions.Save(ctx, record))

	completed, err := o.AdvanceFlow(ctx, f.FlowID)
	require.NoError(t, err)
	assert.Equal(t, gateway.FlowCompleted, completed.Phase)
	assert.NotNil(t, completed.ProofResult)
}

func TestOrchestrator_AdvanceFlow_IsIdempotentOnceTerminal(t *testing.T) {
	o, deps := newTestOrchestrator(t)
	ctx := context.Background()

	f, err := o.CreateFlow(ctx, flow.CreateParams{CircuitID: gateway.CircuitCoinbaseAttestation, Scope: "login"})
	require.NoError(t, err)

	record, err := deps.Sessions.Get(ctx, f.RequestID)
	require.NoError(t, err)
	record.Status = gateway.SigningCompleted
	record.Address = "0xabc"
	record.Signature = "0xsig"
	require.NoError(t, deps.Sessions.Save(ctx, record))

	completed, err := o.AdvanceFlow(ctx, f.FlowID)
	require.NoError(t, err)
	require.Equal(t, gateway.FlowCompleted, completed.Phase)

	again, err := o.AdvanceFlow(ctx, f.FlowID)
	require.NoError(t, err)
	assert.Equal(t, completed, again, "advancing a terminal flow must return it unchanged")
}

func TestOrchestrator_GetFlow_NotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.GetFlow(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Equal(t, gateway.KindNotFound, gateway.KindOf(err))
}
