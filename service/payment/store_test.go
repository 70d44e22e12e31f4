package payment_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proofport/gateway/kv"
	"github.com/proofport/gateway/models/gateway"
	"github.com/proofport/gateway/service/payment"
)

func newTestKV(t *testing.T) kv.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := kv.NewRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	return store
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := payment.NewStore(newTestKV(t))

	record := gateway.PaymentRecord{
		ID:           "pay-1",
		TaskID:       "task-1",
		PayerAddress: "0xabc",
		Amount:       "1000000",
		Network:      "8453",
		Scheme:       "exact",
	}
	require.NoError(t, store.Create(ctx, record))

	got, err := store.Get(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, gateway.PayRecordPending, got.Status)
	assert.Equal(t, "0xabc", got.PayerAddress)
	assert.False(t, got.CreatedAt.IsZero())

	byTask, ok, err := store.GetByTask(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pay-1", byTask.ID)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Contains(t, pending, "pay-1")
}

func TestStore_GetByTask_Missing(t *testing.T) {
	ctx := context.Background()
	store := payment.NewStore(newTestKV(t))

	_, ok, err := store.GetByTask(ctx, "nonexistent-task")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_MarkSettled_MovesStatusIndex(t *testing.T) {
	ctx := context.Background()
	store := payment.NewStore(newTestKV(t))

	require.NoError(t, store.Create(ctx, gateway.PaymentRecord{ID: "pay-2", Network: "8453", Scheme: "exact"}))
	require.NoError(t, store.MarkSettled(ctx, "pay-2", "0xtxhash"))

	got, err := store.Get(ctx, "pay-2")
	require.NoError(t, err)
	assert.Equal(t, gateway.PayRecordSettled, got.Status)
	assert.Equal(t, "0xtxhash", got.FacilitatorRef)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.NotContains(t, pending, "pay-2", "settled records must leave the pending index")
}

func TestStore_MarkRefunded(t *testing.T) {
	ctx := context.Background()
	store := payment.NewStore(newTestKV(t))

	require.NoError(t, store.Create(ctx, gateway.PaymentRecord{ID: "pay-3", Network: "8453", Scheme: "exact"}))
	require.NoError(t, store.MarkRefunded(ctx, "pay-3"))

	got, err := store.Get(ctx, "pay-3")
	require.NoError(t, err)
	assert.Equal(t, gateway.PayRecordRefunded, got.Status)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.NotContains(t, pending, "pay-3")
}

func TestStore_Get_NotFound(t *testing.T) {
	ctx := context.Background()
	store := payment.NewStore(newTestKV(t))

	_, err := store.Get(ctx, "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, gateway.KindNotFound, gateway.KindOf(err))
}
