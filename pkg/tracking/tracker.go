package tracking

import (
	"context"
	"fmt"
	"time"

	"intake-server/pkg/database"
	apperrors "intake-server/pkg/errors"
	"intake-server/pkg/extraction"
	"intake-server/pkg/metrics"
	"intake-server/pkg/transcript"

	"github.com/sirupsen/logrus"
)

// Caller types stored on the profile
const (
	CallerTypeNewLead        = "new_lead"
	CallerTypeExistingClient = "existing_client"
	CallerTypeProfessional   = "professional"
)

// Fact field names used by the tracker
const (
	FactFieldName        = "name"
	FactFieldEmail       = "email"
	FactFieldPhone       = "phone"
	FactFieldClaimNumber = "claim_number"
	FactFieldPurpose     = "purpose"
	FactCasePrefix       = "case."
)

// callerTypeRank orders caller types so a profile never downgrades: a known
// existing client who is later miscategorized as a new lead stays an
// existing client.
var callerTypeRank = map[string]int{
	CallerTypeNewLead:        0,
	CallerTypeProfessional:   1,
	CallerTypeExistingClient: 2,
}

// CallerTypeForCategory maps a call category onto a profile caller type.
// Unknown categories fall back to new_lead, the weakest type.
func CallerTypeForCategory(category string) string {
	switch category {
	case transcript.CategoryNewLead:
		return CallerTypeNewLead
	case transcript.CategoryExistingClient:
		return CallerTypeExistingClient
	case transcript.CategoryAttorney, transcript.CategoryInsurance,
		transcript.CategoryMedical, transcript.CategoryMedicalProfessional:
		return CallerTypeProfessional
	default:
		return CallerTypeNewLead
	}
}

// ProfileStore is the persistence surface the tracker needs
type ProfileStore interface {
	GetCallerProfile(ctx context.Context, tenantID, phoneNumber string) (*database.CallerProfile, error)
	CreateCallerProfile(ctx context.Context, profile *database.CallerProfile) error
	UpdateCallerProfile(ctx context.Context, profile *database.CallerProfile) error
	InsertCallerFact(ctx context.Context, fact *database.CallerFact) error
	SupersedeCallerFact(ctx context.Context, factID string, validUntil time.Time) error
	GetCurrentFacts(ctx context.Context, callerID string) ([]*database.CallerFact, error)
	ListFacts(ctx context.Context, callerID string) ([]*database.CallerFact, error)
}

// CallerTracker maintains caller profiles and their append-only fact history
type CallerTracker struct {
	store  ProfileStore
	logger *logrus.Logger
}

// NewCallerTracker creates a new caller tracker
func NewCallerTracker(store ProfileStore, logger *logrus.Logger) *CallerTracker {
	return &CallerTracker{
		store:  store,
		logger: logger,
	}
}

// TrackCall upserts the caller profile for one ended call and appends the
// extracted fields as facts. The caller is keyed by meta.PhoneNumber alone;
// resolving a spoken phone into the metadata is the pipeline's job, so that
// the same resolved number is used for locking and lead reconciliation. A
// call with no phone number cannot be tracked; that returns (nil, nil) and is
// logged, not an error.
func (t *CallerTracker) TrackCall(ctx context.Context, meta transcript.CallMetadata, record *extraction.ExtractedRecord) (*database.CallerProfile, error) {
	phone := meta.PhoneNumber
	if phone == "" {
		t.logger.WithFields(logrus.Fields{
			"call_id":   meta.CallID,
			"tenant_id": meta.TenantID,
		}).Warn("No phone number resolvable, skipping caller tracking")
		return nil, nil
	}

	callDate := meta.StartTime
	if callDate.IsZero() {
		callDate = time.Now()
	}

	profile, err := t.upsertProfile(ctx, meta.TenantID, phone, meta.Category, callDate)
	if err != nil {
		return nil, err
	}

	if record != nil {
		t.appendFacts(ctx, profile.ID, meta.CallID, record)
	}

	return profile, nil
}

func (t *CallerTracker) upsertProfile(ctx context.Context, tenantID, phone, category string, callDate time.Time) (*database.CallerProfile, error) {
	callerType := CallerTypeForCategory(category)

	profile, err := t.store.GetCallerProfile(ctx, tenantID, phone)
	if err != nil {
		if !apperrors.IsErrorType(err, apperrors.ErrCallerNotFound) {
			return nil, fmt.Errorf("failed to look up caller profile: %w", err)
		}

		profile = &database.CallerProfile{
			TenantID:      tenantID,
			PhoneNumber:   phone,
			CallerType:    callerType,
			TotalCalls:    1,
			FirstCallDate: callDate,
			LastCallDate:  callDate,
		}
		if err := t.store.CreateCallerProfile(ctx, profile); err != nil {
			return nil, fmt.Errorf("failed to create caller profile: %w", err)
		}
		return profile, nil
	}

	profile.TotalCalls++
	if callDate.After(profile.LastCallDate) {
		profile.LastCallDate = callDate
	}
	if callerTypeRank[callerType] > callerTypeRank[profile.CallerType] {
		t.logger.WithFields(logrus.Fields{
			"caller_id": profile.ID,
			"from":      profile.CallerType,
			"to":        callerType,
		}).Info("Caller type upgraded")
		profile.CallerType = callerType
	}

	if err := t.store.UpdateCallerProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update caller profile: %w", err)
	}

	return profile, nil
}

// appendFacts records every non-null extracted field. Fact writes are
// best-effort per field; one failed insert does not abort the rest.
func (t *CallerTracker) appendFacts(ctx context.Context, callerID, callID string, record *extraction.ExtractedRecord) {
	facts := make(map[string]string)
	if record.Name != nil {
		facts[FactFieldName] = *record.Name
	}
	if record.Email != nil {
		facts[FactFieldEmail] = *record.Email
	}
	if record.Phone != nil {
		facts[FactFieldPhone] = *record.Phone
	}
	if record.ClaimNumber != nil {
		facts[FactFieldClaimNumber] = *record.ClaimNumber
	}
	if record.Purpose != nil {
		facts[FactFieldPurpose] = *record.Purpose
	}
	for field, value := range record.CaseFields {
		facts[FactCasePrefix+field] = value
	}

	for field, value := range facts {
		if err := t.RecordFact(ctx, callerID, field, value, callID, 1.0); err != nil {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"caller_id": callerID,
				"field":     field,
			}).Error("Failed to record caller fact")
		}
	}
}

// RecordFact appends one fact row. Existing rows are never modified.
func (t *CallerTracker) RecordFact(ctx context.Context, callerID, fieldName, fieldValue, sourceCallID string, confidence float64) error {
	fact := &database.CallerFact{
		CallerID:     callerID,
		FieldName:    fieldName,
		FieldValue:   fieldValue,
		SourceCallID: sourceCallID,
		Confidence:   confidence,
		RecordedAt:   time.Now(),
	}

	if err := t.store.InsertCallerFact(ctx, fact); err != nil {
		return err
	}

	metrics.RecordFactRecorded(fieldName)
	return nil
}

// CorrectFact supersedes an existing fact and appends the corrected value.
// The old row keeps its value with valid_until stamped, preserving history.
func (t *CallerTracker) CorrectFact(ctx context.Context, callerID, factID, fieldName, newValue, sourceCallID string) error {
	now := time.Now()

	if err := t.store.SupersedeCallerFact(ctx, factID, now); err != nil {
		return fmt.Errorf("failed to supersede fact: %w", err)
	}

	fact := &database.CallerFact{
		CallerID:     callerID,
		FieldName:    fieldName,
		FieldValue:   newValue,
		SourceCallID: sourceCallID,
		Confidence:   1.0,
		RecordedAt:   now,
	}
	if err := t.store.InsertCallerFact(ctx, fact); err != nil {
		return fmt.Errorf("failed to insert corrected fact: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"caller_id":  callerID,
		"field_name": fieldName,
		"superseded": factID,
	}).Info("Caller fact corrected")

	return nil
}

// GetCurrentFacts returns the latest non-superseded value per field as a map
func (t *CallerTracker) GetCurrentFacts(ctx context.Context, callerID string) (map[string]string, error) {
	facts, err := t.store.GetCurrentFacts(ctx, callerID)
	if err != nil {
		return nil, err
	}

	current := make(map[string]string, len(facts))
	for _, fact := range facts {
		current[fact.FieldName] = fact.FieldValue
	}

	return current, nil
}

// FactHistory returns every fact ever recorded for a caller, superseded rows
// included, oldest first.
func (t *CallerTracker) FactHistory(ctx context.Context, tenantID, phoneNumber string) ([]*database.CallerFact, error) {
	profile, err := t.store.GetCallerProfile(ctx, tenantID, phoneNumber)
	if err != nil {
		return nil, err
	}

	return t.store.ListFacts(ctx, profile.ID)
}

// ClassifyCaller reports the stored caller type for a phone number, or the
// type the given category would imply for an unseen caller.
func (t *CallerTracker) ClassifyCaller(ctx context.Context, tenantID, phoneNumber, category string) (string, error) {
	profile, err := t.store.GetCallerProfile(ctx, tenantID, phoneNumber)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrCallerNotFound) {
			return CallerTypeForCategory(category), nil
		}
		return "", err
	}

	return profile.CallerType, nil
}
