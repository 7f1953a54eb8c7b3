package pipeline

import (
	"context"
	"testing"

	"intake-server/pkg/database"
	apperrors "intake-server/pkg/errors"
	"intake-server/pkg/extraction"
	"intake-server/pkg/messaging"
	"intake-server/pkg/tracking"
	"intake-server/pkg/transcript"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	record *extraction.ExtractedRecord
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, t transcript.Transcript, meta transcript.CallMetadata) (*extraction.ExtractedRecord, error) {
	f.calls++
	return f.record, f.err
}

type fakeTracker struct {
	profile  *database.CallerProfile
	err      error
	lastRec  *extraction.ExtractedRecord
	lastMeta transcript.CallMetadata
}

func (f *fakeTracker) TrackCall(ctx context.Context, meta transcript.CallMetadata, record *extraction.ExtractedRecord) (*database.CallerProfile, error) {
	f.lastRec = record
	f.lastMeta = meta
	return f.profile, f.err
}

type fakeReconciler struct {
	outcome      *tracking.LeadOutcome
	err          error
	lastCallerID string
	lastMeta     transcript.CallMetadata
}

func (f *fakeReconciler) Reconcile(ctx context.Context, callerID string, meta transcript.CallMetadata) (*tracking.LeadOutcome, error) {
	f.lastCallerID = callerID
	f.lastMeta = meta
	return f.outcome, f.err
}

type fakePublisher struct {
	messages []messaging.NotificationMessage
}

func (f *fakePublisher) Publish(message messaging.NotificationMessage) error {
	f.messages = append(f.messages, message)
	return nil
}

type fakeCallStore struct {
	calls  []*database.Call
	events []*database.IntakeEvent
}

func (f *fakeCallStore) CreateCall(ctx context.Context, call *database.Call) error {
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeCallStore) CreateIntakeEvent(ctx context.Context, event *database.IntakeEvent) error {
	f.events = append(f.events, event)
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func strptr(s string) *string { return &s }

const validPayload = `{
	"call_id": "call-1",
	"tenant_id": "tenant-a",
	"category": "New Lead",
	"from_number": "(555) 123-4567",
	"start_time": "2026-05-01T10:00:00Z",
	"transcript": [
		{"role": "agent", "content": "Thanks for calling, how can I help?"},
		{"role": "user", "content": "I was in an accident last week."}
	]
}`

// The publisher and store parameters are the interface types on purpose: a
// typed-nil fake would slip past the processor's nil checks and crash.
func newTestProcessor(extractor *fakeExtractor, tracker *fakeTracker, reconciler *fakeReconciler, publisher NotificationPublisher, store CallStore) *Processor {
	return NewProcessor(testLogger(), extractor, tracker, reconciler, publisher, store)
}

func TestProcessCallEndedHappyPath(t *testing.T) {
	extractor := &fakeExtractor{record: &extraction.ExtractedRecord{
		CallID: "call-1",
		Name:   strptr("Maria Lopez"),
	}}
	tracker := &fakeTracker{profile: &database.CallerProfile{ID: "caller-1"}}
	reconciler := &fakeReconciler{outcome: &tracking.LeadOutcome{
		Action: tracking.OutcomeLeadCreated,
		Lead:   &database.Lead{ID: "lead-1", CallerID: "caller-1", Status: tracking.LeadStatusPending},
	}}
	publisher := &fakePublisher{}
	store := &fakeCallStore{}

	processor := newTestProcessor(extractor, tracker, reconciler, publisher, store)

	result, err := processor.ProcessCallEnded(context.Background(), []byte(validPayload))
	require.NoError(t, err)

	assert.Equal(t, "call-1", result.CallID)
	assert.Equal(t, "caller-1", result.CallerID)
	assert.Equal(t, tracking.OutcomeLeadCreated, result.LeadAction)
	assert.Equal(t, tracking.LeadStatusPending, result.LeadStatus)
	assert.Equal(t, "caller-1", reconciler.lastCallerID)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "call-1", publisher.messages[0].CallID)
	assert.Equal(t, tracking.OutcomeLeadCreated, publisher.messages[0].LeadAction)

	require.Len(t, store.calls, 1)
	assert.Equal(t, "call-1", store.calls[0].CallID)
	assert.Equal(t, "+15551234567", store.calls[0].PhoneNumber)
	assert.Equal(t, 2, store.calls[0].TranscriptTurns)
	assert.Equal(t, extractionCompleted, store.calls[0].ExtractionStatus)

	require.Len(t, store.events, 1)
	assert.Equal(t, "lead_created", store.events[0].Type)
}

func TestProcessCallEndedWithoutPublisherOrStore(t *testing.T) {
	extractor := &fakeExtractor{record: &extraction.ExtractedRecord{
		CallID: "call-1",
		Name:   strptr("Maria Lopez"),
	}}
	tracker := &fakeTracker{profile: &database.CallerProfile{ID: "caller-1"}}
	reconciler := &fakeReconciler{outcome: &tracking.LeadOutcome{
		Action: tracking.OutcomeLeadCreated,
		Lead:   &database.Lead{ID: "lead-1", CallerID: "caller-1", Status: tracking.LeadStatusPending},
	}}

	processor := newTestProcessor(extractor, tracker, reconciler, nil, nil)

	result, err := processor.ProcessCallEnded(context.Background(), []byte(validPayload))
	require.NoError(t, err)
	assert.Equal(t, "caller-1", result.CallerID)
	assert.Equal(t, tracking.OutcomeLeadCreated, result.LeadAction)
}

func TestProcessCallEndedInvalidPayload(t *testing.T) {
	processor := newTestProcessor(&fakeExtractor{}, &fakeTracker{}, &fakeReconciler{}, nil, nil)

	_, err := processor.ProcessCallEnded(context.Background(), []byte(`{"category": "New Lead"}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrInvalidPayload))
}

func TestProcessCallEndedEmptyTranscriptSkipsExtraction(t *testing.T) {
	extractor := &fakeExtractor{record: nil}
	tracker := &fakeTracker{profile: &database.CallerProfile{ID: "caller-1"}}
	reconciler := &fakeReconciler{outcome: &tracking.LeadOutcome{Action: tracking.OutcomeNotLeadTracked}}
	store := &fakeCallStore{}

	processor := newTestProcessor(extractor, tracker, reconciler, nil, store)

	payload := `{"call_id": "call-2", "tenant_id": "tenant-a", "category": "Other", "from_number": "5551234567"}`
	result, err := processor.ProcessCallEnded(context.Background(), []byte(payload))
	require.NoError(t, err)

	assert.Nil(t, result.Record)
	assert.Nil(t, tracker.lastRec)
	require.Len(t, store.calls, 1)
	assert.Equal(t, extractionSkipped, store.calls[0].ExtractionStatus)
}

func TestProcessCallEndedNoPhoneSkipsTracking(t *testing.T) {
	extractor := &fakeExtractor{record: &extraction.ExtractedRecord{CallID: "call-3"}}
	tracker := &fakeTracker{profile: nil}
	reconciler := &fakeReconciler{outcome: &tracking.LeadOutcome{Action: tracking.OutcomeSkippedNoPhone}}
	store := &fakeCallStore{}

	processor := newTestProcessor(extractor, tracker, reconciler, nil, store)

	payload := `{"call_id": "call-3", "tenant_id": "tenant-a", "category": "New Lead",
		"transcript": [{"role": "user", "content": "hello"}]}`
	result, err := processor.ProcessCallEnded(context.Background(), []byte(payload))
	require.NoError(t, err)

	assert.Empty(t, result.CallerID)
	assert.Equal(t, tracking.OutcomeSkippedNoPhone, result.LeadAction)

	require.NotEmpty(t, store.events)
	assert.Equal(t, "tracking_skipped", store.events[0].Type)
	assert.Equal(t, "warning", store.events[0].Level)
}

func TestProcessCallEndedResolvesExtractedPhoneForTracking(t *testing.T) {
	// Caller ID withheld, but the caller spoke their number during the call.
	// The resolved number must reach the tracker, the reconciler, and the
	// persisted call row alike.
	extractor := &fakeExtractor{record: &extraction.ExtractedRecord{
		CallID: "call-6",
		Phone:  strptr("+15559876543"),
	}}
	tracker := &fakeTracker{profile: &database.CallerProfile{ID: "caller-9"}}
	reconciler := &fakeReconciler{outcome: &tracking.LeadOutcome{Action: tracking.OutcomeLeadCreated,
		Lead: &database.Lead{ID: "lead-9", CallerID: "caller-9", Status: tracking.LeadStatusPending}}}
	store := &fakeCallStore{}

	processor := newTestProcessor(extractor, tracker, reconciler, nil, store)

	payload := `{"call_id": "call-6", "tenant_id": "tenant-a", "category": "New Lead",
		"transcript": [{"role": "user", "content": "my number is 555 987 6543"}]}`
	result, err := processor.ProcessCallEnded(context.Background(), []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "caller-9", result.CallerID)
	assert.Equal(t, "+15559876543", tracker.lastMeta.PhoneNumber)
	assert.Equal(t, "+15559876543", reconciler.lastMeta.PhoneNumber)

	require.Len(t, store.calls, 1)
	assert.Equal(t, "+15559876543", store.calls[0].PhoneNumber)
}

func TestProcessCallEndedConversionRecordsEvent(t *testing.T) {
	callID := "call-4"
	extractor := &fakeExtractor{record: &extraction.ExtractedRecord{CallID: callID}}
	tracker := &fakeTracker{profile: &database.CallerProfile{ID: "caller-1"}}
	reconciler := &fakeReconciler{outcome: &tracking.LeadOutcome{
		Action: tracking.OutcomeConversion,
		Lead: &database.Lead{
			ID: "lead-1", CallerID: "caller-1",
			Status: tracking.LeadStatusApproved, ConversionDetected: true, ConversionCallID: &callID,
		},
	}}
	store := &fakeCallStore{}

	processor := newTestProcessor(extractor, tracker, reconciler, nil, store)

	payload := `{"call_id": "call-4", "tenant_id": "tenant-a", "category": "Existing Client",
		"from_number": "5551234567", "transcript": [{"role": "user", "content": "hi again"}]}`
	result, err := processor.ProcessCallEnded(context.Background(), []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, tracking.OutcomeConversion, result.LeadAction)
	assert.Equal(t, tracking.LeadStatusApproved, result.LeadStatus)

	require.Len(t, store.events, 1)
	assert.Equal(t, "conversion_detected", store.events[0].Type)
	require.NotNil(t, store.events[0].CallerID)
	assert.Equal(t, "caller-1", *store.events[0].CallerID)
}

func TestProcessCallEndedPartialExtractionStatus(t *testing.T) {
	// Deterministic claim number survived an LLM failure; everything else null
	extractor := &fakeExtractor{record: &extraction.ExtractedRecord{
		CallID:      "call-5",
		ClaimNumber: strptr("28399751"),
	}}
	tracker := &fakeTracker{profile: &database.CallerProfile{ID: "caller-1"}}
	reconciler := &fakeReconciler{outcome: &tracking.LeadOutcome{Action: tracking.OutcomeRepeatContact}}
	store := &fakeCallStore{}

	processor := newTestProcessor(extractor, tracker, reconciler, nil, store)

	payload := `{"call_id": "call-5", "tenant_id": "tenant-a", "category": "Existing Client",
		"from_number": "5551234567", "transcript": [{"role": "user", "content": "checking my claim"}]}`
	_, err := processor.ProcessCallEnded(context.Background(), []byte(payload))
	require.NoError(t, err)

	require.Len(t, store.calls, 1)
	assert.Equal(t, extractionPartial, store.calls[0].ExtractionStatus)
	require.NotNil(t, store.calls[0].ClaimNumber)
	assert.Equal(t, "28399751", *store.calls[0].ClaimNumber)
}
