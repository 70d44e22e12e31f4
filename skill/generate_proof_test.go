package skill_test

import (
	"context"
	"testing"

	"github.com/dgraph-io/ristretto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/prover"
	"github.com/proofport/gateway/skill"
)

type fakeProver struct {
	calls int
	proof prover.Proof
	err   error
}

func (f *fakeProver) Prove(ctx context.Context, params prover.Params) (prover.Proof, error) {
	f.calls++
	if f.err != nil {
		return prover.Proof{}, f.err
	}
	return f.proof, nil
}

func directInput() skill.GenerateProofInput {
	return skill.GenerateProofInput{
		Address:   "0xabc",
		Signature: "0xsig",
		Scope:     "login",
		CircuitID: gateway.CircuitCoinbaseAttestation,
	}
}

func TestGenerateProof_DirectMode(t *testing.T) {
	ctx := context.Background()

	t.Run("invokes the prover and returns a verify URL", func(t *testing.T) {
		deps := newTestDeps(t)
		fp := &fakeProver{proof: prover.Proof{Proof: []byte{1, 2, 3}, PublicInputs: []byte{4, 5}, Nullifier: "null", SignalHash: "hash"}}
		deps.Prover = fp

		result, err := skill.GenerateProof(ctx, deps, directInput())
		require.NoError(t, err)
		assert.Equal(t, 1, fp.calls)
		assert.Equal(t, "010203", result.Proof)
		assert.Contains(t, result.VerifyURL, result.ProofID)
		assert.False(t, result.Cached)

		circuitID, proofBytes, _, nullifier, err := deps.LoadProof(ctx, result.ProofID)
		require.NoError(t, err)
		assert.Equal(t, gateway.CircuitCoinbaseAttestation, circuitID)
		assert.Equal(t, []byte{1, 2, 3}, proofBytes)
		assert.Equal(t, "null", nullifier)
	})

	t.Run("rejects direct mode when payment is not disabled", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.PaymentMode = "testnet"
		deps.Prover = &fakeProver{}

		_, err := skill.GenerateProof(ctx, deps, directInput())
		require.Error(t, err)
		assert.Equal(t, gateway.KindInvalidArgument, gateway.KindOf(err))
	})

	t.Run("rejects an unknown circuit", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.Prover = &fakeProver{}

		in := directInput()
		in.CircuitID = "unknown"
		_, err := skill.GenerateProof(ctx, deps, in)
		require.Error(t, err)
		assert.Equal(t, gateway.KindInvalidArgument, gateway.KindOf(err))
	})

	t.Run("serves a cached result on repeat identical input without re-invoking the prover", func(t *testing.T) {
		deps := newTestDeps(t)
		cache, err := ristretto.NewCache(&ristretto.Config{NumCounters: 100, MaxCost: 1 << 20, BufferItems: 64})
		require.NoError(t, err)
		deps.ProofCache = cache

		fp := &fakeProver{proof: prover.Proof{Proof: []byte{9}, PublicInputs: []byte{9}, Nullifier: "n", SignalHash: "s"}}
		deps.Prover = fp

		_, err = skill.GenerateProof(ctx, deps, directInput())
		require.NoError(t, err)
		cache.Wait()

		result, err := skill.GenerateProof(ctx, deps, directInput())
		require.NoError(t, err)
		assert.True(t, result.Cached)
		assert.Equal(t, 1, fp.calls, "second identical call should be served from cache")
	})

	t.Run("enforces the rate limiter by address", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.Prover = &fakeProver{proof: prover.Proof{Proof: []byte{1}}}
		deps.RateLimit = skill.NewRateLimiter(0, 1)

		_, err := skill.GenerateProof(ctx, deps, directInput())
		require.NoError(t, err)

		second := directInput()
		second.Scope = "a-different-scope-to-bypass-the-cache"
		_, err = skill.GenerateProof(ctx, deps, second)
		require.Error(t, err)
		assert.Equal(t, gateway.KindRateLimited, gateway.KindOf(err))
	})
}

func TestGenerateProof_SessionMode(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes the session record exactly once", func(t *testing.T) {
		deps := newTestDeps(t)
		fp := &fakeProver{proof: prover.Proof{Proof: []byte{7}, PublicInputs: []byte{8}}}
		deps.Prover = fp

		signed, err := skill.RequestSigning(ctx, deps, skill.RequestSigningInput{
			CircuitID: gateway.CircuitCoinbaseAttestation,
			Scope:     "login",
		})
		require.NoError(t, err)

		record, err := deps.Sessions.Get(ctx, signed.RequestID)
		require.NoError(t, err)
		record.Status = gateway.SigningCompleted
		record.Address = "0xabc"
		record.Signature = "0xsig"
		require.NoError(t, deps.Sessions.Save(ctx, record))

		_, err = skill.GenerateProof(ctx, deps, skill.GenerateProofInput{RequestID: signed.RequestID})
		require.NoError(t, err)
		assert.Equal(t, 1, fp.calls)

		_, err = skill.GenerateProof(ctx, deps, skill.GenerateProofInput{RequestID: signed.RequestID})
		require.Error(t, err, "the session record must not be reusable once consumed")
		assert.Equal(t, gateway.KindNotFound, gateway.KindOf(err))
	})

	t.Run("rejects a session whose signing step is not complete", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.Prover = &fakeProver{}

		signed, err := skill.RequestSigning(ctx, deps, skill.RequestSigningInput{
			CircuitID: gateway.CircuitCoinbaseAttestation,
			Scope:     "login",
		})
		require.NoError(t, err)

		_, err = skill.GenerateProof(ctx, deps, skill.GenerateProofInput{RequestID: signed.RequestID})
		require.Error(t, err)
		assert.Equal(t, gateway.KindInvalidArgument, gateway.KindOf(err))
	})
}
