// Package flow implements the higher-level macro state machine sitting
// above the skill layer (spec.md section 4.4, component C7).
package flow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/skill"
)

const flowTTL = 5 * time.Minute

func flowKey(id string) string       { return "flow:" + id }
func reqIndexKey(requestID string) string { return "flow:req:" + requestID }
func eventsChannel(id string) string { return "flow:events:" + id }

// EventsChannel returns the kv pub/sub channel name flow state changes
// for flowID are published on (spec.md section 4.4/4.9), for callers
// such as api/rest's SSE endpoint that subscribe directly.
func EventsChannel(flowID string) string { return eventsChannel(flowID) }

// CreateParams is createFlow's argument set, forwarded verbatim into
// request_signing.
type CreateParams struct {
	CircuitID   string
	Scope       string
	CountryList []string
	IsIncluded  *bool
}

// Orchestrator runs createFlow/advanceFlow over the shared skill deps.
type Orchestrator struct {
	kv   kv.Store
	deps skill.Deps
	log  zerolog.Logger
	now  func() time.Time
}

// New builds an Orchestrator.
func New(store kv.Store, deps skill.Deps, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{kv: store, deps: deps, log: log.With().Str("component", "flow").Logger(), now: time.Now}
}

// CreateFlow allocates a signing request, persists the bound
// ProofFlow in phase "signing", writes the reverse index, and
// publishes the initial event (spec.md section 4.4).
func (o *Orchestrator) CreateFlow(ctx context.Context, params CreateParams) (gateway.ProofFlow, error) {
	signing, err := skill.RequestSigning(ctx, o.deps, skill.RequestSigningInput{
		CircuitID:   params.CircuitID,
		Scope:       params.Scope,
		CountryList: params.CountryList,
		IsIncluded:  params.IsIncluded,
	})
	if err != nil {
		return gateway.ProofFlow{}, err
	}

	now := o.now().UTC()
	f := gateway.ProofFlow{
		FlowID:      uuid.NewString(),
		RequestID:   signing.RequestID,
		CircuitID:   params.CircuitID,
		Scope:       params.Scope,
		CountryList: params.CountryList,
		IsIncluded:  params.IsIncluded,
		Phase:       gateway.FlowSigning,
		SigningURL:  signing.SigningURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.write(ctx, f); err != nil {
		return gateway.ProofFlow{}, err
	}
	if err := o.indexRequest(ctx, f.RequestID, f.FlowID); err != nil {
		return gateway.ProofFlow{}, err
	}
	o.publish(ctx, f)
	return f, nil
}

// GetFlow loads a flow by id.
func (o *Orchestrator) GetFlow(ctx context.Context, flowID string) (gateway.ProofFlow, error) {
	raw, err := o.kv.Get(ctx, flowKey(flowID))
	if err == kv.ErrNotFound {
		return gateway.ProofFlow{}, gateway.NewError(gateway.KindNotFound, "flow not found")
	}
	if err != nil {
		return gateway.ProofFlow{}, gateway.Wrap(gateway.KindInternal, "could not load flow", err)
	}
	var f gateway.ProofFlow
	if err := kv.Decode(raw, &f); err != nil {
		return gateway.ProofFlow{}, gateway.Wrap(gateway.KindInternal, "could not decode flow", err)
	}
	return f, nil
}

// AdvanceFlow is idempotent and re-entrant (spec.md section 4.4,
// section 8 invariant 4: once terminal, further calls return the flow
// unchanged).
func (o *Orchestrator) AdvanceFlow(ctx context.Context, flowID string) (gateway.ProofFlow, error) {
	f, err := o.GetFlow(ctx, flowID)
	if err != nil {
		return gateway.ProofFlow{}, err
	}
	if f.Phase.IsTerminal() {
		return f, nil
	}

	status, err := skill.CheckStatus(ctx, o.deps, f.RequestID)
	if err != nil {
		f.Phase = gateway.FlowFailed
		f.Error = err.Error()
		f.UpdatedAt = o.now().UTC()
		if werr := o.write(ctx, f); werr != nil {
			return gateway.ProofFlow{}, werr
		}
		o.publish(ctx, f)
		return f, nil
	}

	switch status.Phase {
	case gateway.PhaseExpired:
		f.Phase = gateway.FlowExpired
		f.UpdatedAt = o.now().UTC()
		if err := o.write(ctx, f); err != nil {
			return gateway.ProofFlow{}, err
		}
		o.publish(ctx, f)
		return f, nil

	case gateway.PhaseSigning:
		return f, nil

	case gateway.PhasePayment:
		if f.Phase == gateway.FlowSigning {
			payment, err := skill.RequestPayment(ctx, o.deps, f.RequestID)
			if err != nil {
				return gateway.ProofFlow{}, err
			}
			f.Phase = gateway.FlowPayment
			f.PaymentURL = payment.PaymentURL
			f.UpdatedAt = o.now().UTC()
			if err := o.write(ctx, f); err != nil {
				return gateway.ProofFlow{}, err
			}
			o.publish(ctx, f)
		}
		return f, nil

	case gateway.PhaseReady:
		if f.Phase == gateway.FlowGenerating || f.Phase == gateway.FlowCompleted {
			return f, nil
		}
		// Set generating and publish first so concurrent readers see
		// the correct phase before the (possibly slow) prove call.
		f.Phase = gateway.FlowGenerating
		f.UpdatedAt = o.now().UTC()
		if err := o.write(ctx, f); err != nil {
			return gateway.ProofFlow{}, err
		}
		o.publish(ctx, f)

		result, err := skill.GenerateProof(ctx, o.deps, skill.GenerateProofInput{RequestID: f.RequestID})
		if err != nil {
			f.Phase = gateway.FlowFailed
			f.Error = err.Error()
		} else {
			f.Phase = gateway.FlowCompleted
			f.ProofResult = proofResultToMap(result)
		}
		f.UpdatedAt = o.now().UTC()
		if err := o.write(ctx, f); err != nil {
			return gateway.ProofFlow{}, err
		}
		o.publish(ctx, f)
		return f, nil
	}

	return f, nil
}

func (o *Orchestrator) write(ctx context.Context, f gateway.ProofFlow) error {
	enc, err := kv.Encode(f)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode flow", err)
	}
	return o.kv.Set(ctx, flowKey(f.FlowID), enc, flowTTL)
}

func (o *Orchestrator) indexRequest(ctx context.Context, requestID, flowID string) error {
	enc, err := kv.Encode(flowID)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode flow request index", err)
	}
	return o.kv.Set(ctx, reqIndexKey(requestID), enc, flowTTL)
}

// publish writes to the flow:events:{flowId} channel so the SSE
// endpoint can forward without polling (spec.md section 4.4). Errors
// are logged, not propagated: a missed publish is recovered by the
// 5-second polling fallback the REST endpoint runs alongside it.
func (o *Orchestrator) publish(ctx context.Context, f gateway.ProofFlow) {
	payload, err := json.Marshal(f)
	if err != nil {
		o.log.Warn().Err(err).Str("flowId", f.FlowID).Msg("could not encode flow event")
		return
	}
	if err := o.kv.Publish(ctx, eventsChannel(f.FlowID), payload); err != nil {
		o.log.Warn().Err(err).Str("flowId", f.FlowID).Msg("could not publish flow event")
	}
}

func proofResultToMap(result skill.GenerateProofResult) map[string]any {
	raw, _ := json.Marshal(result)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}
