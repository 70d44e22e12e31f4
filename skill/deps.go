// Package skill holds the six canonical skills — the single source of
// truth every protocol endpoint and the task worker dispatch into
// (spec.md section 4.3, component C6).
package skill

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/proofport/gateway/config"
	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/prover"
	"github.com/proofport/gateway/service/sessionstore"
	"github.com/proofport/gateway/verifier"
)

// Deps bundles every collaborator the six skills share (spec.md
// section 4.3: "kv store, sign-page base URL, signing TTL, payment
// mode, price, chain RPCs, prover binaries, circuits dir, optional TEE
// provider, optional rate limiter, optional proof cache").
type Deps struct {
	KV       kv.Store
	Sessions *sessionstore.Store

	BaseURL     string
	SigningTTL  time.Duration
	PaymentMode config.PaymentMode
	ProofPrice  string
	PaymentNetwork string

	Registry *verifier.Registry
	Chain    *verifier.Chain

	Prover      prover.Prover
	TeeProvider prover.TeeProvider
	TeeMode     config.TeeMode

	ProofCache *ristretto.Cache
	RateLimit  *RateLimiter

	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func newID() string { return uuid.NewString() }
