// Package worker is the single dedicated polling loop driving queued
// tasks through the skill layer (spec.md section 4.5, component C8).
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/skill"
	"github.com/proofport/gateway/service/taskstore"
)

// pollInterval matches spec.md section 4.5's 2-second cadence.
const pollInterval = 2 * time.Second

// ReputationSink is the fire-and-forget ERC-8004 reputation side
// effect (spec.md section 4.5 [EXPANDED]); errors are logged and
// swallowed, never surfaced to the caller.
type ReputationSink interface {
	Increment(ctx context.Context, address string) error
}

// Worker polls the submitted queue and dispatches each task into the
// skill layer. It is the sole consumer of the queue, giving
// single-consumer semantics without additional locking.
type Worker struct {
	tasks *taskstore.Store
	deps  skill.Deps
	rep   ReputationSink
	log   zerolog.Logger
}

// New builds a Worker.
func New(tasks *taskstore.Store, deps skill.Deps, rep ReputationSink, log zerolog.Logger) *Worker {
	return &Worker{tasks: tasks, deps: deps, rep: rep, log: log.With().Str("component", "worker").Logger()}
}

// Run blocks, polling until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	id, err := w.tasks.PopQueued(ctx)
	if err == kv.ErrNotFound {
		return
	}
	if err != nil {
		w.log.Error().Err(err).Msg("could not pop queued task")
		return
	}
	w.process(ctx, id)
}

func (w *Worker) process(ctx context.Context, id string) {
	task, err := w.tasks.GetTask(ctx, id)
	if err != nil {
		w.log.Error().Err(err).Str("taskId", id).Msg("could not load dequeued task")
		return
	}
	if task.Status.State != gateway.TaskQueued {
		// Already canceled or otherwise moved on; nothing to do.
		return
	}

	if _, err := w.tasks.UpdateTaskStatus(ctx, id, gateway.TaskRunning, nil); err != nil {
		w.log.Error().Err(err).Str("taskId", id).Msg("could not transition task to running")
		return
	}

	result, skillErr := w.dispatch(ctx, task)
	if skillErr != nil {
		w.fail(ctx, id, skillErr)
		return
	}

	// A newly allocated signing session binds to this task's context so
	// a later message in the same A2A context can omit requestId and
	// still reach the right session (spec.md section 4.6/9).
	if task.Skill == "request_signing" && task.ContextID != "" {
		if signing, ok := result.(skill.RequestSigningResult); ok {
			if err := w.deps.Sessions.SetContextRequest(ctx, task.ContextID, signing.RequestID); err != nil {
				w.log.Warn().Err(err).Str("taskId", id).Msg("could not index context->request binding")
			}
		}
	}

	if err := w.complete(ctx, id, result); err != nil {
		w.log.Error().Err(err).Str("taskId", id).Msg("could not record task completion")
		return
	}

	if w.rep != nil && task.Params != nil {
		if address, ok := task.Params["address"].(string); ok && address != "" {
			go func() {
				repCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := w.rep.Increment(repCtx, address); err != nil {
					w.log.Warn().Err(err).Str("taskId", id).Msg("reputation increment failed")
				}
			}()
		}
	}
}

// dispatch invokes the named skill with the task's params. It never
// mutates the task store itself — that remains the worker's job per
// spec.md section 4.3's invariant.
func (w *Worker) dispatch(ctx context.Context, task gateway.Task) (any, error) {
	switch task.Skill {
	case "request_signing":
		return skill.RequestSigning(ctx, w.deps, decodeRequestSigning(task.Params))
	case "check_status":
		requestID, _ := task.Params["requestId"].(string)
		return skill.CheckStatus(ctx, w.deps, requestID)
	case "request_payment":
		requestID, _ := task.Params["requestId"].(string)
		return skill.RequestPayment(ctx, w.deps, requestID)
	case "generate_proof":
		return skill.GenerateProof(ctx, w.deps, decodeGenerateProof(task.Params))
	case "verify_proof":
		return skill.VerifyProof(ctx, w.deps, decodeVerifyProof(task.Params))
	case "get_supported_circuits":
		chainID, _ := task.Params["chainId"].(string)
		return skill.GetSupportedCircuits(w.deps, chainID), nil
	default:
		return nil, gateway.NewError(gateway.KindNotRoutable, "unknown skill: "+task.Skill)
	}
}

func (w *Worker) complete(ctx context.Context, id string, result any) error {
	payload, err := toDataMap(result)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode skill result", err)
	}
	artifact := gateway.Artifact{
		ID:       id + "-result",
		MimeType: "application/json",
		Parts: []gateway.Part{
			gateway.TextPart("proof-serving gateway completed the request"),
			gateway.DataPart(payload),
		},
	}
	if _, err := w.tasks.AddArtifact(ctx, id, artifact, true); err != nil {
		return err
	}
	_, err = w.tasks.UpdateTaskStatus(ctx, id, gateway.TaskCompleted, nil)
	return err
}

func (w *Worker) fail(ctx context.Context, id string, skillErr error) {
	artifact := gateway.Artifact{
		ID:       id + "-error",
		MimeType: "text/plain",
		Parts: []gateway.Part{
			gateway.TextPart(skillErr.Error()),
		},
	}
	if _, err := w.tasks.AddArtifact(ctx, id, artifact, true); err != nil {
		w.log.Error().Err(err).Str("taskId", id).Msg("could not record failure artifact")
	}
	if _, err := w.tasks.UpdateTaskStatus(ctx, id, gateway.TaskFailed, nil); err != nil {
		w.log.Error().Err(err).Str("taskId", id).Msg("could not transition task to failed")
	}
}

func decodeRequestSigning(params map[string]any) skill.RequestSigningInput {
	in := skill.RequestSigningInput{}
	in.CircuitID, _ = params["circuitId"].(string)
	in.Scope, _ = params["scope"].(string)
	in.CountryList = stringSlice(params["countryList"])
	if v, ok := params["isIncluded"].(bool); ok {
		in.IsIncluded = &v
	}
	return in
}

func decodeGenerateProof(params map[string]any) skill.GenerateProofInput {
	in := skill.GenerateProofInput{}
	in.RequestID, _ = params["requestId"].(string)
	in.Address, _ = params["address"].(string)
	in.Signature, _ = params["signature"].(string)
	in.Scope, _ = params["scope"].(string)
	in.CircuitID, _ = params["circuitId"].(string)
	in.CountryList = stringSlice(params["countryList"])
	if v, ok := params["isIncluded"].(bool); ok {
		in.IsIncluded = &v
	}
	return in
}

func decodeVerifyProof(params map[string]any) skill.VerifyProofInput {
	in := skill.VerifyProofInput{}
	in.CircuitID, _ = params["circuitId"].(string)
	in.ProofHex, _ = params["proof"].(string)
	if v, ok := params["publicInputs"].(string); ok {
		in.PublicInputsHex = v
	} else {
		in.PublicInputsWords = stringSlice(params["publicInputs"])
	}
	in.ChainID, _ = params["chainId"].(string)
	return in
}

func toDataMap(result any) (map[string]any, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
