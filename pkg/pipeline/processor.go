package pipeline

import (
	"context"
	"time"

	"intake-server/pkg/database"
	"intake-server/pkg/extraction"
	"intake-server/pkg/messaging"
	"intake-server/pkg/metrics"
	"intake-server/pkg/tracking"
	"intake-server/pkg/transcript"

	"github.com/sirupsen/logrus"
)

// Extraction statuses recorded on the call row
const (
	extractionCompleted = "completed"
	extractionPartial   = "partial"
	extractionSkipped   = "skipped"
)

// FieldExtractor produces one structured record per call
type FieldExtractor interface {
	Extract(ctx context.Context, t transcript.Transcript, meta transcript.CallMetadata) (*extraction.ExtractedRecord, error)
}

// CallerTracker maintains caller profiles and facts
type CallerTracker interface {
	TrackCall(ctx context.Context, meta transcript.CallMetadata, record *extraction.ExtractedRecord) (*database.CallerProfile, error)
}

// LeadReconciler applies the lead transition rules for one call
type LeadReconciler interface {
	Reconcile(ctx context.Context, callerID string, meta transcript.CallMetadata) (*tracking.LeadOutcome, error)
}

// NotificationPublisher hands the final record to downstream delivery
type NotificationPublisher interface {
	Publish(message messaging.NotificationMessage) error
}

// CallStore persists call rows and audit events
type CallStore interface {
	CreateCall(ctx context.Context, call *database.Call) error
	CreateIntakeEvent(ctx context.Context, event *database.IntakeEvent) error
}

// Result summarizes what one webhook delivery produced
type Result struct {
	CallID     string                      `json:"call_id"`
	Record     *extraction.ExtractedRecord `json:"record,omitempty"`
	CallerID   string                      `json:"caller_id,omitempty"`
	LeadAction string                      `json:"lead_action,omitempty"`
	LeadStatus string                      `json:"lead_status,omitempty"`
}

// Processor runs the whole intake pipeline for one ended call: normalize,
// extract, track the caller, reconcile the lead, notify.
type Processor struct {
	logger     *logrus.Logger
	extractor  FieldExtractor
	tracker    CallerTracker
	reconciler LeadReconciler
	publisher  NotificationPublisher
	store      CallStore
	locks      *tracking.KeyedMutex
}

// NewProcessor creates a pipeline processor. publisher and store may be nil;
// the corresponding steps become no-ops.
func NewProcessor(logger *logrus.Logger, extractor FieldExtractor, tracker CallerTracker, reconciler LeadReconciler, publisher NotificationPublisher, store CallStore) *Processor {
	return &Processor{
		logger:     logger,
		extractor:  extractor,
		tracker:    tracker,
		reconciler: reconciler,
		publisher:  publisher,
		store:      store,
		locks:      tracking.NewKeyedMutex(),
	}
}

// ProcessCallEnded handles one raw call-ended webhook payload. Only payload
// and infrastructure failures return errors; missing data degrades to null
// fields and skipped steps.
func (p *Processor) ProcessCallEnded(ctx context.Context, raw []byte) (*Result, error) {
	started := time.Now()

	event, err := transcript.NormalizeEvent(raw)
	if err != nil {
		metrics.ObserveWebhookEvent("call_ended", "invalid", time.Since(started))
		return nil, err
	}

	result, err := p.process(ctx, event)
	if err != nil {
		metrics.ObserveWebhookEvent("call_ended", "error", time.Since(started))
		return nil, err
	}

	metrics.ObserveWebhookEvent("call_ended", "success", time.Since(started))
	return result, nil
}

func (p *Processor) process(ctx context.Context, event *transcript.CallEndedEvent) (*Result, error) {
	meta := event.Metadata
	log := p.logger.WithFields(logrus.Fields{
		"call_id":   meta.CallID,
		"tenant_id": meta.TenantID,
		"category":  meta.Category,
	})
	log.Info("Processing call-ended event")

	if meta.Category != "" && !transcript.KnownCategory(meta.Category) {
		log.Warn("Unrecognized call category, treating as non-lead")
	}

	record, err := p.extract(ctx, event)
	if err != nil {
		return nil, err
	}

	// Resolve the caller's phone once, before taking the lock, so tracking,
	// reconciliation, and the call row all see the same number. A spoken
	// number from the transcript stands in when caller ID was withheld.
	if meta.PhoneNumber == "" && record != nil && record.Phone != nil {
		meta.PhoneNumber = *record.Phone
		event.Metadata = meta
	}

	// Serialize per caller so concurrent deliveries for the same phone
	// number cannot race on profile counters or lead status.
	if meta.PhoneNumber != "" {
		unlock := p.locks.Lock(tracking.LockKey(meta.TenantID, meta.PhoneNumber))
		defer unlock()
	}

	result := &Result{CallID: meta.CallID, Record: record}

	profile, err := p.tracker.TrackCall(ctx, meta, record)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		metrics.RecordTrackingSkipped("no_phone_number")
		p.recordEvent(ctx, meta, nil, "tracking_skipped", "warning", "no phone number resolvable, caller not tracked", nil)
	} else {
		result.CallerID = profile.ID
	}

	outcome, err := p.reconciler.Reconcile(ctx, result.CallerID, meta)
	if err != nil {
		return nil, err
	}
	p.recordOutcome(ctx, meta, result, outcome)

	p.persistCall(ctx, event, record)
	p.notify(meta, result)

	log.WithFields(logrus.Fields{
		"caller_id":   result.CallerID,
		"lead_action": result.LeadAction,
	}).Info("Call-ended event processed")

	return result, nil
}

func (p *Processor) extract(ctx context.Context, event *transcript.CallEndedEvent) (*extraction.ExtractedRecord, error) {
	started := time.Now()
	record, err := p.extractor.Extract(ctx, event.Transcript, event.Metadata)
	if err != nil {
		return nil, err
	}
	metrics.ObserveExtraction(event.Metadata.Category, time.Since(started))

	if record != nil && record.ClaimNumber != nil {
		metrics.RecordClaimNumberDecoded("found")
	}

	return record, nil
}

func (p *Processor) recordOutcome(ctx context.Context, meta transcript.CallMetadata, result *Result, outcome *tracking.LeadOutcome) {
	if outcome == nil {
		return
	}

	result.LeadAction = outcome.Action
	if outcome.Lead != nil {
		result.LeadStatus = outcome.Lead.Status
	}

	switch outcome.Action {
	case tracking.OutcomeLeadCreated:
		metrics.RecordLeadCreated(meta.TenantID)
		p.recordEvent(ctx, meta, outcome.Lead, "lead_created", "info", "new lead created", nil)
	case tracking.OutcomeConversion:
		metrics.RecordConversionDetected(meta.TenantID)
		p.recordEvent(ctx, meta, outcome.Lead, "conversion_detected", "info",
			"lead recognized as existing client, auto-approved", map[string]interface{}{
				"conversion_call_id": meta.CallID,
			})
	case tracking.OutcomeCategoryChanged:
		p.recordEvent(ctx, meta, outcome.Lead, "lead_category_changed", "info",
			"lead category changed, pending manual review", map[string]interface{}{
				"category": meta.Category,
			})
	case tracking.OutcomeSkippedNoPhone:
		metrics.RecordTrackingSkipped("no_phone_number")
	}
}

// persistCall records the call row; failures are logged, not propagated,
// because the extraction result has already been produced.
func (p *Processor) persistCall(ctx context.Context, event *transcript.CallEndedEvent, record *extraction.ExtractedRecord) {
	if p.store == nil {
		return
	}

	meta := event.Metadata
	call := &database.Call{
		CallID:          meta.CallID,
		TenantID:        meta.TenantID,
		PhoneNumber:     meta.PhoneNumber,
		Category:        meta.Category,
		StartTime:       meta.StartTime,
		TranscriptTurns: len(event.Transcript.Turns),
	}

	switch {
	case record == nil:
		call.ExtractionStatus = extractionSkipped
	case record.Name == nil && record.Email == nil && record.Purpose == nil && len(record.CaseFields) == 0:
		call.ExtractionStatus = extractionPartial
		call.ClaimNumber = record.ClaimNumber
	default:
		call.ExtractionStatus = extractionCompleted
		call.ClaimNumber = record.ClaimNumber
	}

	if err := p.store.CreateCall(ctx, call); err != nil {
		p.logger.WithError(err).WithField("call_id", meta.CallID).Error("Failed to persist call record")
	}
}

func (p *Processor) recordEvent(ctx context.Context, meta transcript.CallMetadata, lead *database.Lead, eventType, level, message string, metadata map[string]interface{}) {
	if p.store == nil {
		return
	}

	callID := meta.CallID
	event := &database.IntakeEvent{
		CallID:   &callID,
		Type:     eventType,
		Level:    level,
		Message:  message,
		Metadata: metadata,
	}
	if lead != nil && lead.CallerID != "" {
		callerID := lead.CallerID
		event.CallerID = &callerID
	}

	if err := p.store.CreateIntakeEvent(ctx, event); err != nil {
		p.logger.WithError(err).WithField("call_id", meta.CallID).Error("Failed to record intake event")
	}
}

// notify is fail-soft: a lost notification is the intended degraded mode,
// never a failed webhook.
func (p *Processor) notify(meta transcript.CallMetadata, result *Result) {
	if p.publisher == nil {
		return
	}

	message := messaging.NotificationMessage{
		CallID:     meta.CallID,
		TenantID:   meta.TenantID,
		Category:   meta.Category,
		Record:     result.Record,
		LeadAction: result.LeadAction,
		LeadStatus: result.LeadStatus,
		Timestamp:  time.Now(),
	}

	if err := p.publisher.Publish(message); err != nil {
		p.logger.WithError(err).WithField("call_id", meta.CallID).Warn("Failed to publish notification")
	}
}
