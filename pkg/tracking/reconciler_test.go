package tracking

import (
	"context"
	"testing"
	"time"

	"intake-server/pkg/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLeadCall(callID, category string) transcript.CallMetadata {
	return transcript.CallMetadata{
		CallID:      callID,
		TenantID:    "tenant-a",
		Category:    category,
		PhoneNumber: "+15551234567",
		StartTime:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestReconcileCreatesLeadOnFirstNewLeadCall(t *testing.T) {
	store := newFakeStore()
	reconciler := NewLeadReconciler(store, nil, testLogger())

	outcome, err := reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-1", transcript.CategoryNewLead))
	require.NoError(t, err)

	assert.Equal(t, OutcomeLeadCreated, outcome.Action)
	require.NotNil(t, outcome.Lead)
	assert.Equal(t, LeadStatusPending, outcome.Lead.Status)
	assert.Equal(t, "caller-1", outcome.Lead.CallerID)
	assert.False(t, outcome.Lead.ConversionDetected)
}

func TestReconcileNoLeadForFirstContactNonLeadCategory(t *testing.T) {
	for _, category := range []string{
		transcript.CategoryAttorney,
		transcript.CategoryInsurance,
		transcript.CategoryExistingClient,
	} {
		store := newFakeStore()
		reconciler := NewLeadReconciler(store, nil, testLogger())

		outcome, err := reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-1", category))
		require.NoError(t, err)

		assert.Equal(t, OutcomeNotLeadTracked, outcome.Action, "category %q", category)
		assert.Nil(t, outcome.Lead)
		assert.Empty(t, store.leads, "category %q must not create a lead", category)
	}
}

func TestReconcileDetectsConversion(t *testing.T) {
	store := newFakeStore()
	reconciler := NewLeadReconciler(store, nil, testLogger())

	_, err := reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-1", transcript.CategoryNewLead))
	require.NoError(t, err)

	callback := newLeadCall("call-2", transcript.CategoryExistingClient)
	callback.StartTime = callback.StartTime.Add(72 * time.Hour)

	outcome, err := reconciler.Reconcile(context.Background(), "caller-1", callback)
	require.NoError(t, err)

	assert.Equal(t, OutcomeConversion, outcome.Action)
	assert.Equal(t, LeadStatusApproved, outcome.Lead.Status)
	assert.True(t, outcome.Lead.ConversionDetected)
	require.NotNil(t, outcome.Lead.ConversionCallID)
	assert.Equal(t, "call-2", *outcome.Lead.ConversionCallID)
	assert.Equal(t, callback.StartTime, outcome.Lead.LastCallDate)
}

func TestReconcileConversionFiresOnlyOnce(t *testing.T) {
	store := newFakeStore()
	reconciler := NewLeadReconciler(store, nil, testLogger())

	_, err := reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-1", transcript.CategoryNewLead))
	require.NoError(t, err)
	_, err = reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-2", transcript.CategoryExistingClient))
	require.NoError(t, err)

	outcome, err := reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-3", transcript.CategoryExistingClient))
	require.NoError(t, err)

	assert.NotEqual(t, OutcomeConversion, outcome.Action)
	require.NotNil(t, outcome.Lead.ConversionCallID)
	assert.Equal(t, "call-2", *outcome.Lead.ConversionCallID, "conversion call id must not be rewritten")
}

func TestReconcileRepeatContactUpdatesLastCallDateOnly(t *testing.T) {
	store := newFakeStore()
	reconciler := NewLeadReconciler(store, nil, testLogger())

	_, err := reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-1", transcript.CategoryNewLead))
	require.NoError(t, err)

	repeat := newLeadCall("call-2", transcript.CategoryNewLead)
	repeat.StartTime = repeat.StartTime.Add(24 * time.Hour)

	outcome, err := reconciler.Reconcile(context.Background(), "caller-1", repeat)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRepeatContact, outcome.Action)
	assert.Equal(t, LeadStatusPending, outcome.Lead.Status)
	assert.False(t, outcome.Lead.ConversionDetected)
	assert.Equal(t, repeat.StartTime, outcome.Lead.LastCallDate)
}

func TestReconcileCategoryChangeKeepsStatus(t *testing.T) {
	store := newFakeStore()
	reconciler := NewLeadReconciler(store, nil, testLogger())

	_, err := reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-1", transcript.CategoryNewLead))
	require.NoError(t, err)

	outcome, err := reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-2", transcript.CategoryAttorney))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCategoryChanged, outcome.Action)
	assert.Equal(t, transcript.CategoryAttorney, outcome.Lead.Category)
	assert.Equal(t, LeadStatusPending, outcome.Lead.Status, "category change alone must not move status")
	assert.False(t, outcome.Lead.ConversionDetected)
}

func TestReconcileSkipsWithoutPhoneNumber(t *testing.T) {
	store := newFakeStore()
	reconciler := NewLeadReconciler(store, nil, testLogger())

	meta := transcript.CallMetadata{CallID: "call-1", TenantID: "tenant-a", Category: transcript.CategoryNewLead}

	outcome, err := reconciler.Reconcile(context.Background(), "caller-1", meta)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedNoPhone, outcome.Action)
	assert.Empty(t, store.leads)
}

type fakeTransactor struct {
	store *fakeStore
	calls int
}

func (f *fakeTransactor) InLeadTransaction(ctx context.Context, fn func(LeadStore) error) error {
	f.calls++
	return fn(f.store)
}

func TestReconcileRunsInsideTransactionWhenAvailable(t *testing.T) {
	store := newFakeStore()
	tx := &fakeTransactor{store: store}
	reconciler := NewLeadReconciler(store, tx, testLogger())

	outcome, err := reconciler.Reconcile(context.Background(), "caller-1", newLeadCall("call-1", transcript.CategoryNewLead))
	require.NoError(t, err)

	assert.Equal(t, OutcomeLeadCreated, outcome.Action)
	assert.Equal(t, 1, tx.calls)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var counter int
	done := make(chan struct{})

	for i := 0; i < 50; i++ {
		go func() {
			unlock := km.Lock(LockKey("tenant-a", "+15551234567"))
			counter++
			unlock()
			done <- struct{}{}
		}()
	}

	for i := 0; i < 50; i++ {
		<-done
	}

	assert.Equal(t, 50, counter)
}
