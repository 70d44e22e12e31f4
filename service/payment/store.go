package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/models/gateway"
)

const recordTTL = 24 * time.Hour

func recordKey(id string) string          { return "payment:" + id }
func taskIndexKey(taskID string) string    { return "payment:task:" + taskID }
func statusIndexKey(status gateway.PaymentStatusRecord) string {
	return "payment:status:" + string(status)
}

// Store persists PaymentRecord rows plus the taskId and status indexes
// the settlement worker and status endpoints query (spec.md section 3).
type Store struct {
	kv  kv.Store
	now func() time.Time
}

// NewStore builds a Store over the shared kv.Store.
func NewStore(store kv.Store) *Store {
	return &Store{kv: store, now: time.Now}
}

// Create writes a brand-new pending PaymentRecord and indexes it by
// task id and status, satisfying the "record-then-settle" invariant
// (spec.md section 9 "At-most-once payment").
func (s *Store) Create(ctx context.Context, record gateway.PaymentRecord) error {
	now := s.now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = gateway.PayRecordPending
	}
	if err := s.write(ctx, record); err != nil {
		return err
	}
	if record.TaskID != "" {
		if err := s.indexByTask(ctx, record.TaskID, record.ID); err != nil {
			return err
		}
	}
	return s.indexByStatus(ctx, record.Status, record.ID)
}

// Get loads a PaymentRecord by id.
func (s *Store) Get(ctx context.Context, id string) (gateway.PaymentRecord, error) {
	raw, err := s.kv.Get(ctx, recordKey(id))
	if err == kv.ErrNotFound {
		return gateway.PaymentRecord{}, gateway.NewError(gateway.KindNotFound, fmt.Sprintf("payment %q not found", id))
	}
	if err != nil {
		return gateway.PaymentRecord{}, gateway.Wrap(gateway.KindInternal, "could not load payment", err)
	}
	var record gateway.PaymentRecord
	if err := kv.Decode(raw, &record); err != nil {
		return gateway.PaymentRecord{}, gateway.Wrap(gateway.KindInternal, "could not decode payment", err)
	}
	return record, nil
}

// GetByTask resolves the payment record bound to taskID, if any.
func (s *Store) GetByTask(ctx context.Context, taskID string) (gateway.PaymentRecord, bool, error) {
	raw, err := s.kv.Get(ctx, taskIndexKey(taskID))
	if err == kv.ErrNotFound {
		return gateway.PaymentRecord{}, false, nil
	}
	if err != nil {
		return gateway.PaymentRecord{}, false, gateway.Wrap(gateway.KindInternal, "could not load payment task index", err)
	}
	var id string
	if err := kv.Decode(raw, &id); err != nil {
		return gateway.PaymentRecord{}, false, gateway.Wrap(gateway.KindInternal, "could not decode payment task index", err)
	}
	record, err := s.Get(ctx, id)
	if err != nil {
		return gateway.PaymentRecord{}, false, err
	}
	return record, true, nil
}

// ListPending lists every payment id currently indexed as pending, for
// the settlement worker's 30-second reconciliation pass.
func (s *Store) ListPending(ctx context.Context) ([]string, error) {
	return s.listStatus(ctx, gateway.PayRecordPending)
}

func (s *Store) listStatus(ctx context.Context, status gateway.PaymentStatusRecord) ([]string, error) {
	raw, err := s.kv.LRange(ctx, statusIndexKey(status), 0, -1)
	if err != nil {
		return nil, gateway.Wrap(gateway.KindInternal, "could not list payment status index", err)
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		var id string
		if err := kv.Decode(item, &id); err != nil {
			return nil, gateway.Wrap(gateway.KindInternal, "could not decode payment status index entry", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MarkSettled transitions record id to settled, recording the
// facilitator's transaction reference.
func (s *Store) MarkSettled(ctx context.Context, id, facilitatorRef string) error {
	return s.transition(ctx, id, gateway.PayRecordSettled, facilitatorRef)
}

// MarkRefunded transitions record id to refunded.
func (s *Store) MarkRefunded(ctx context.Context, id string) error {
	return s.transition(ctx, id, gateway.PayRecordRefunded, "")
}

func (s *Store) transition(ctx context.Context, id string, status gateway.PaymentStatusRecord, facilitatorRef string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	from := record.Status
	record.Status = status
	record.UpdatedAt = s.now().UTC()
	if facilitatorRef != "" {
		record.FacilitatorRef = facilitatorRef
	}
	if err := s.write(ctx, record); err != nil {
		return err
	}
	return s.reindexStatus(ctx, from, status, id)
}

func (s *Store) write(ctx context.Context, record gateway.PaymentRecord) error {
	enc, err := kv.Encode(record)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode payment", err)
	}
	if err := s.kv.Set(ctx, recordKey(record.ID), enc, recordTTL); err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not persist payment", err)
	}
	return nil
}

func (s *Store) indexByTask(ctx context.Context, taskID, id string) error {
	enc, err := kv.Encode(id)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode payment task index", err)
	}
	return s.kv.Set(ctx, taskIndexKey(taskID), enc, recordTTL)
}

func (s *Store) indexByStatus(ctx context.Context, status gateway.PaymentStatusRecord, id string) error {
	enc, err := kv.Encode(id)
	if err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not encode payment status index", err)
	}
	return s.kv.LPush(ctx, statusIndexKey(status), enc, recordTTL)
}

// reindexStatus removes id from the `from` status list and adds it to
// `to`. The index is a best-effort list (not a set); LRange scans
// in the settlement worker tolerate the rare stale entry since Get
// re-checks the record's actual status before acting on it.
func (s *Store) reindexStatus(ctx context.Context, from, to gateway.PaymentStatusRecord, id string) error {
	ids, err := s.listStatus(ctx, from)
	if err != nil {
		return err
	}
	remaining := ids[:0]
	for _, existing := range ids {
		if existing != id {
			remaining = append(remaining, existing)
		}
	}
	if err := s.rewriteStatusIndex(ctx, from, remaining); err != nil {
		return err
	}
	return s.indexByStatus(ctx, to, id)
}

func (s *Store) rewriteStatusIndex(ctx context.Context, status gateway.PaymentStatusRecord, ids []string) error {
	if err := s.kv.Del(ctx, statusIndexKey(status)); err != nil {
		return gateway.Wrap(gateway.KindInternal, "could not clear payment status index", err)
	}
	for _, id := range ids {
		if err := s.indexByStatus(ctx, status, id); err != nil {
			return err
		}
	}
	return nil
}
