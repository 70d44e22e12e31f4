package skill_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofport/gateway/config"
	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/service/sessionstore"
	"github.com/proofport/gateway/skill"
	"github.com/proofport/gateway/verifier"
)

func newTestStore(t *testing.T) kv.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kv.NewRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	return store
}

func newTestDeps(t *testing.T) skill.Deps {
	t.Helper()
	store := newTestStore(t)
	registry := verifier.NewRegistry(map[string]map[string]string{
		gateway.CircuitCoinbaseAttestation: {"8453": "0xVerifier"},
	})
	return skill.Deps{
		KV:          store,
		Sessions:    sessionstore.New(store, 5*time.Minute),
		BaseURL:     "https://gateway.example",
		SigningTTL:  5 * time.Minute,
		PaymentMode: config.PaymentDisabled,
		Registry:    registry,
	}
}

func TestRequestSigning(t *testing.T) {
	ctx := context.Background()

	t.Run("allocates a pending session for a known circuit", func(t *testing.T) {
		deps := newTestDeps(t)
		result, err := skill.RequestSigning(ctx, deps, skill.RequestSigningInput{
			CircuitID: gateway.CircuitCoinbaseAttestation,
			Scope:     "login",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.RequestID)
		assert.Equal(t, deps.BaseURL+"/s/"+result.RequestID, result.SigningURL)

		record, err := deps.Sessions.Get(ctx, result.RequestID)
		require.NoError(t, err)
		assert.Equal(t, gateway.SigningPending, record.Status)
		assert.Equal(t, gateway.PaymentCompleted, record.PaymentStatus, "payment disabled short-circuits to completed")
	})

	t.Run("rejects an unknown circuit", func(t *testing.T) {
		deps := newTestDeps(t)
		_, err := skill.RequestSigning(ctx, deps, skill.RequestSigningInput{
			CircuitID: "does-not-exist",
			Scope:     "login",
		})
		require.Error(t, err)
		assert.Equal(t, gateway.KindInvalidArgument, gateway.KindOf(err))
	})

	t.Run("rejects a blank scope", func(t *testing.T) {
		deps := newTestDeps(t)
		_, err := skill.RequestSigning(ctx, deps, skill.RequestSigningInput{
			CircuitID: gateway.CircuitCoinbaseAttestation,
			Scope:     "   ",
		})
		require.Error(t, err)
		assert.Equal(t, gateway.KindInvalidArgument, gateway.KindOf(err))
	})

	t.Run("country attestation requires countryList and isIncluded", func(t *testing.T) {
		deps := newTestDeps(t)
		deps.Registry = verifier.NewRegistry(map[string]map[string]string{
			gateway.CircuitCoinbaseCountryAttestation: {"8453": "0xVerifier"},
		})
		_, err := skill.RequestSigning(ctx, deps, skill.RequestSigningInput{
			CircuitID: gateway.CircuitCoinbaseCountryAttestation,
			Scope:     "residency",
		})
		require.Error(t, err)
		assert.Equal(t, gateway.KindInvalidArgument, gateway.KindOf(err))

		included := true
		result, err := skill.RequestSigning(ctx, deps, skill.RequestSigningInput{
			CircuitID:   gateway.CircuitCoinbaseCountryAttestation,
			Scope:       "residency",
			CountryList: []string{"US"},
			IsIncluded:  &included,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, result.RequestID)
	})
}
