// Package sessionstore persists ProofRequestRecord sessions (signing +
// payment sub-state) and the context->request reverse index used to
// override hallucinated LLM-provided request ids (spec.md section
// 4.1/4.6, component C3).
package sessionstore

import (
	"context"
	"fmt"
	"time"

	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/models/gateway"
)

const ctxTTL = 24 * time.Hour

func signingKey(id string) string  { return "signing:" + id }
func ctxKey(contextID string) string { return "a2a:ctx:" + contextID }

// Store is the session persistence port backing component C3.
type Store struct {
	kv  kv.Store
	ttl time.Duration
}

// New builds a Store with the given default signing TTL
// (signingTtlSeconds, spec.md section 6, default 300).
func New(store kv.Store, signingTTL time.Duration) *Store {
	return &Store{kv: store, ttl: signingTTL}
}

// Create writes a brand-new pending ProofRequestRecord.
func (s *Store) Create(ctx context.Context, record gateway.ProofRequestRecord) error {
	return s.save(ctx, record)
}

// Get loads a record by id, returning KindNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (gateway.ProofRequestRecord, error) {
	raw, err := s.kv.Get(ctx, signingKey(id))
	if err == kv.ErrNotFound {
		return gateway.ProofRequestRecord{}, gateway.NewError(gateway.KindNotFound, fmt.Sprintf("session %q not found", id))
	}
	if err != nil {
		return gateway.ProofRequestRecord{}, gateway.Wrap(gateway.KindInternal, "could not load session", err)
	}
	var record gateway.ProofRequestRecord
	if err := kv.Decode(raw, &record); err != nil {
		return gateway.ProofRequestRecord{}, gateway.Wrap(gateway.KindInternal, "could not decode session", err)
	}
	return record, nil
}

// Save overwrites the full serialized record, preserving its original
// TTL window (derived from ExpiresAt) rather than resetting the clock.
func (s *Store) Save(ctx context.Context, record gateway.ProofRequestRecord) error {
	return s.save(ctx, record)
}

// Delete removes the record — the one-shot consume step of session-mode
// generate_proof (spec.md section 4.3, 9 "session record as capability").
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.kv.Del(ctx, signingKey(id))
}

func (s *Store) save(ctx context.Context, record gateway.ProofRequestRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		ttl = s.ttl
	}
	enc, err := kv.Encode(record)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode session", err)
	}
	if err := s.kv.Set(ctx, signingKey(record.ID), enc, ttl); err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not persist session", err)
	}
	return nil
}

// SetContextRequest records the context -> request-id reverse index.
func (s *Store) SetContextRequest(ctx context.Context, contextID, requestID string) error {
	if contextID == "" {
		return nil
	}
	enc, err := kv.Encode(requestID)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode context index", err)
	}
	return s.kv.Set(ctx, ctxKey(contextID), enc, ctxTTL)
}

// GetContextRequest resolves the context's bound request id, if any.
// The skill router and executors use this to override any
// LLM-hallucinated requestId (spec.md section 4.6/9).
func (s *Store) GetContextRequest(ctx context.Context, contextID string) (string, bool, error) {
	if contextID == "" {
		return "", false, nil
	}
	raw, err := s.kv.Get(ctx, ctxKey(contextID))
	if err == kv.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, gateway.Wrap(gateway.KindInternal, "could not load context index", err)
	}
	var requestID string
	if err := kv.Decode(raw, &requestID); err != nil {
		return "", false, gateway.Wrap(gateway.KindInternal, "could not decode context index", err)
	}
	return requestID, true, nil
}
