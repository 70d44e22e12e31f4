package payment

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/proofport/gateway/models/gateway"
)

// settlementInterval matches spec.md section 4.11's 30-second cadence.
const settlementInterval = 30 * time.Second

// SettlementWorker reconciles pending PaymentRecords against the
// facilitator on a fixed cadence, grounded on the task worker's single
// polling-loop shape (spec.md section 4.5).
type SettlementWorker struct {
	store       *Store
	facilitator *Facilitator
	log         zerolog.Logger
}

// NewSettlementWorker builds a SettlementWorker.
func NewSettlementWorker(store *Store, facilitator *Facilitator, log zerolog.Logger) *SettlementWorker {
	return &SettlementWorker{store: store, facilitator: facilitator, log: log.With().Str("component", "settlement-worker").Logger()}
}

// Run blocks, reconciling every settlementInterval until ctx is canceled.
func (w *SettlementWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(settlementInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reconcileOnce(ctx)
		}
	}
}

func (w *SettlementWorker) reconcileOnce(ctx context.Context) {
	ids, err := w.store.ListPending(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("could not list pending payments")
		return
	}
	for _, id := range ids {
		if err := w.reconcileOne(ctx, id); err != nil {
			w.log.Warn().Err(err).Str("paymentId", id).Msg("reconciliation failed, will retry next tick")
		}
	}
}

func (w *SettlementWorker) reconcileOne(ctx context.Context, id string) error {
	record, err := w.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != gateway.PayRecordPending {
		// Stale entry in the pending index; the record has already moved on.
		return nil
	}
	if record.FacilitatorRef == "" {
		// No settlement was ever submitted for this record; nothing to poll yet.
		return nil
	}
	status, err := w.facilitator.CheckStatus(ctx, record.FacilitatorRef)
	if err != nil {
		return err
	}
	switch {
	case status.Confirmed:
		return w.store.MarkSettled(ctx, id, record.FacilitatorRef)
	case status.Failed:
		w.log.Info().Str("paymentId", id).Msg("payment settlement failed, refunding")
		return w.store.MarkRefunded(ctx, id)
	default:
		return nil
	}
}
