package tracking

import (
	"context"
	"fmt"
	"time"

	"intake-server/pkg/database"
	apperrors "intake-server/pkg/errors"
	"intake-server/pkg/transcript"

	"github.com/sirupsen/logrus"
)

// Lead statuses. Only the conversion transition is automatic; everything
// else is set by a human reviewer through external tooling.
const (
	LeadStatusPending    = "Pending"
	LeadStatusInProgress = "InProgress"
	LeadStatusApproved   = "Approved"
	LeadStatusDenied     = "Denied"
)

// Reconciliation outcomes
const (
	OutcomeLeadCreated     = "lead_created"
	OutcomeConversion      = "conversion"
	OutcomeRepeatContact   = "repeat_contact"
	OutcomeCategoryChanged = "category_changed"
	OutcomeNotLeadTracked  = "not_lead_tracked"
	OutcomeSkippedNoPhone  = "skipped_no_phone"
)

// LeadOutcome reports what the reconciler decided for one call
type LeadOutcome struct {
	Action string
	Lead   *database.Lead
}

// LeadStore is the persistence surface the reconciler needs
type LeadStore interface {
	GetLeadForUpdate(ctx context.Context, tenantID, phoneNumber string) (*database.Lead, error)
	CreateLead(ctx context.Context, lead *database.Lead) error
	UpdateLead(ctx context.Context, lead *database.Lead) error
}

// Transactor runs a function against a LeadStore inside a transaction, so
// the row lock taken by GetLeadForUpdate holds across the decision.
type Transactor interface {
	InLeadTransaction(ctx context.Context, fn func(LeadStore) error) error
}

type repositoryTransactor struct {
	repo *database.Repository
}

// NewRepositoryTransactor adapts a repository's transactions to the
// reconciler's Transactor interface.
func NewRepositoryTransactor(repo *database.Repository) Transactor {
	return repositoryTransactor{repo: repo}
}

func (t repositoryTransactor) InLeadTransaction(ctx context.Context, fn func(LeadStore) error) error {
	return t.repo.Transact(ctx, func(tx *database.Repository) error {
		return fn(tx)
	})
}

// LeadReconciler decides what happens to the lead record when a categorized
// call arrives for a phone number.
type LeadReconciler struct {
	store  LeadStore
	tx     Transactor
	logger *logrus.Logger
}

// NewLeadReconciler creates a reconciler. tx may be nil, in which case
// decisions run directly against the store without transactional locking.
func NewLeadReconciler(store LeadStore, tx Transactor, logger *logrus.Logger) *LeadReconciler {
	return &LeadReconciler{
		store:  store,
		tx:     tx,
		logger: logger,
	}
}

// Reconcile applies the lead transition rules for one ended call. callerID
// links the lead to the caller profile and may be empty when tracking was
// skipped upstream.
func (r *LeadReconciler) Reconcile(ctx context.Context, callerID string, meta transcript.CallMetadata) (*LeadOutcome, error) {
	if meta.PhoneNumber == "" {
		r.logger.WithField("call_id", meta.CallID).
			Warn("No phone number resolvable, skipping lead reconciliation")
		return &LeadOutcome{Action: OutcomeSkippedNoPhone}, nil
	}

	if r.tx == nil {
		return r.reconcile(ctx, r.store, callerID, meta)
	}

	var outcome *LeadOutcome
	err := r.tx.InLeadTransaction(ctx, func(store LeadStore) error {
		var txErr error
		outcome, txErr = r.reconcile(ctx, store, callerID, meta)
		return txErr
	})
	return outcome, err
}

func (r *LeadReconciler) reconcile(ctx context.Context, store LeadStore, callerID string, meta transcript.CallMetadata) (*LeadOutcome, error) {
	callDate := meta.StartTime
	if callDate.IsZero() {
		callDate = time.Now()
	}

	lead, err := store.GetLeadForUpdate(ctx, meta.TenantID, meta.PhoneNumber)
	if err != nil {
		if !apperrors.IsErrorType(err, apperrors.ErrLeadNotFound) {
			return nil, fmt.Errorf("failed to look up lead: %w", err)
		}
		return r.reconcileUnseen(ctx, store, callerID, meta, callDate)
	}

	return r.reconcileExisting(ctx, store, lead, meta, callDate)
}

// reconcileUnseen handles a phone number with no lead record. Only New Lead
// calls create one; a professional or existing client calling for the first
// time is not a lead.
func (r *LeadReconciler) reconcileUnseen(ctx context.Context, store LeadStore, callerID string, meta transcript.CallMetadata, callDate time.Time) (*LeadOutcome, error) {
	if meta.Category != transcript.CategoryNewLead {
		r.logger.WithFields(logrus.Fields{
			"call_id":  meta.CallID,
			"category": meta.Category,
		}).Debug("First contact with non-lead category, no lead created")
		return &LeadOutcome{Action: OutcomeNotLeadTracked}, nil
	}

	lead := &database.Lead{
		CallerID:      callerID,
		TenantID:      meta.TenantID,
		PhoneNumber:   meta.PhoneNumber,
		Category:      meta.Category,
		Status:        LeadStatusPending,
		FirstCallDate: callDate,
		LastCallDate:  callDate,
	}
	if err := store.CreateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	return &LeadOutcome{Action: OutcomeLeadCreated, Lead: lead}, nil
}

func (r *LeadReconciler) reconcileExisting(ctx context.Context, store LeadStore, lead *database.Lead, meta transcript.CallMetadata, callDate time.Time) (*LeadOutcome, error) {
	if callDate.After(lead.LastCallDate) {
		lead.LastCallDate = callDate
	}

	action := OutcomeRepeatContact

	switch {
	case !lead.ConversionDetected &&
		lead.Category == transcript.CategoryNewLead &&
		meta.Category == transcript.CategoryExistingClient:
		// A lead calling back as a recognized existing client is proof of
		// conversion. The one automatic status transition in the system.
		callID := meta.CallID
		lead.ConversionDetected = true
		lead.ConversionCallID = &callID
		lead.Status = LeadStatusApproved
		action = OutcomeConversion

		r.logger.WithFields(logrus.Fields{
			"lead_id":      lead.ID,
			"call_id":      meta.CallID,
			"phone_number": lead.PhoneNumber,
		}).Info("Lead conversion detected, auto-approved")

	case meta.Category != "" && meta.Category != lead.Category:
		// Any other category change is recorded for manual review; the
		// status is left alone.
		r.logger.WithFields(logrus.Fields{
			"lead_id": lead.ID,
			"from":    lead.Category,
			"to":      meta.Category,
		}).Info("Lead category changed")
		lead.Category = meta.Category
		action = OutcomeCategoryChanged
	}

	if err := store.UpdateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("failed to update lead: %w", err)
	}

	return &LeadOutcome{Action: action, Lead: lead}, nil
}
