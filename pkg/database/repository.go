package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "intake-server/pkg/errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so repository methods run
// unchanged inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository provides database operations for the intake pipeline
type Repository struct {
	db     *MySQLDatabase
	execer dbtx
	logger *logrus.Logger
}

// NewRepository creates a new repository
func NewRepository(db *MySQLDatabase, logger *logrus.Logger) *Repository {
	return &Repository{
		db:     db,
		execer: db.db,
		logger: logger,
	}
}

// Transact runs fn inside a transaction. The repository passed to fn shares
// the transaction, so SELECT ... FOR UPDATE row locks hold until commit. Used
// to close the read-then-decide-then-write window in lead reconciliation.
func (r *Repository) Transact(ctx context.Context, fn func(*Repository) error) error {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txRepo := &Repository{db: r.db, execer: tx, logger: r.logger}

	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Caller profile operations

// CreateCallerProfile creates a new caller profile record
func (r *Repository) CreateCallerProfile(ctx context.Context, profile *CallerProfile) error {
	profile.ID = uuid.New().String()
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = time.Now()

	query := `
		INSERT INTO caller_profiles (
			id, tenant_id, phone_number, caller_type, total_calls,
			first_call_date, last_call_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.execer.ExecContext(ctx, query,
		profile.ID, profile.TenantID, profile.PhoneNumber, profile.CallerType,
		profile.TotalCalls, profile.FirstCallDate, profile.LastCallDate,
		profile.CreatedAt, profile.UpdatedAt,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to create caller profile")
		return fmt.Errorf("failed to create caller profile: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"caller_id":    profile.ID,
		"tenant_id":    profile.TenantID,
		"phone_number": profile.PhoneNumber,
		"caller_type":  profile.CallerType,
	}).Info("Caller profile created")

	return nil
}

// GetCallerProfile retrieves a caller profile by (tenant, phone number)
func (r *Repository) GetCallerProfile(ctx context.Context, tenantID, phoneNumber string) (*CallerProfile, error) {
	query := `
		SELECT id, tenant_id, phone_number, caller_type, total_calls,
			   first_call_date, last_call_date, created_at, updated_at
		FROM caller_profiles WHERE tenant_id = ? AND phone_number = ?
	`

	profile := &CallerProfile{}
	err := r.execer.QueryRowContext(ctx, query, tenantID, phoneNumber).Scan(
		&profile.ID, &profile.TenantID, &profile.PhoneNumber, &profile.CallerType,
		&profile.TotalCalls, &profile.FirstCallDate, &profile.LastCallDate,
		&profile.CreatedAt, &profile.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewCallerNotFound(tenantID, phoneNumber)
		}
		r.logger.WithError(err).WithField("phone_number", phoneNumber).Error("Failed to get caller profile")
		return nil, fmt.Errorf("failed to get caller profile: %w", err)
	}

	return profile, nil
}

// UpdateCallerProfile updates the mutable fields of a caller profile
func (r *Repository) UpdateCallerProfile(ctx context.Context, profile *CallerProfile) error {
	profile.UpdatedAt = time.Now()

	query := `
		UPDATE caller_profiles SET
			caller_type = ?, total_calls = ?, last_call_date = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.execer.ExecContext(ctx, query,
		profile.CallerType, profile.TotalCalls, profile.LastCallDate,
		profile.UpdatedAt, profile.ID,
	)

	if err != nil {
		r.logger.WithError(err).WithField("caller_id", profile.ID).Error("Failed to update caller profile")
		return fmt.Errorf("failed to update caller profile: %w", err)
	}

	return nil
}

// Caller fact operations

// InsertCallerFact appends a new fact row. Existing facts are never touched.
func (r *Repository) InsertCallerFact(ctx context.Context, fact *CallerFact) error {
	fact.ID = uuid.New().String()
	fact.CreatedAt = time.Now()
	if fact.RecordedAt.IsZero() {
		fact.RecordedAt = fact.CreatedAt
	}

	query := `
		INSERT INTO caller_facts (
			id, caller_id, field_name, field_value, source_call_id,
			confidence, recorded_at, valid_until, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.execer.ExecContext(ctx, query,
		fact.ID, fact.CallerID, fact.FieldName, fact.FieldValue,
		fact.SourceCallID, fact.Confidence, fact.RecordedAt,
		fact.ValidUntil, fact.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to insert caller fact")
		return fmt.Errorf("failed to insert caller fact: %w", err)
	}

	return nil
}

// SupersedeCallerFact stamps valid_until on a fact without touching its value
func (r *Repository) SupersedeCallerFact(ctx context.Context, factID string, validUntil time.Time) error {
	query := `UPDATE caller_facts SET valid_until = ? WHERE id = ? AND valid_until IS NULL`

	result, err := r.execer.ExecContext(ctx, query, validUntil, factID)
	if err != nil {
		r.logger.WithError(err).WithField("fact_id", factID).Error("Failed to supersede caller fact")
		return fmt.Errorf("failed to supersede caller fact: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Wrap(apperrors.ErrFactSuperseded, "fact missing or already superseded").
			WithField("fact_id", factID)
	}

	return nil
}

// GetCurrentFacts returns the latest non-superseded fact per field name
func (r *Repository) GetCurrentFacts(ctx context.Context, callerID string) ([]*CallerFact, error) {
	query := `
		SELECT id, caller_id, field_name, field_value, source_call_id,
			   confidence, recorded_at, valid_until, created_at
		FROM caller_facts
		WHERE caller_id = ? AND valid_until IS NULL
		ORDER BY recorded_at DESC, created_at DESC
	`

	facts, err := r.scanFacts(ctx, query, callerID)
	if err != nil {
		return nil, err
	}

	// Rows arrive newest first; keep only the first hit per field
	seen := make(map[string]bool, len(facts))
	current := make([]*CallerFact, 0, len(facts))
	for _, fact := range facts {
		if seen[fact.FieldName] {
			continue
		}
		seen[fact.FieldName] = true
		current = append(current, fact)
	}

	return current, nil
}

// ListFacts returns the full fact history for a caller, oldest first
func (r *Repository) ListFacts(ctx context.Context, callerID string) ([]*CallerFact, error) {
	query := `
		SELECT id, caller_id, field_name, field_value, source_call_id,
			   confidence, recorded_at, valid_until, created_at
		FROM caller_facts
		WHERE caller_id = ?
		ORDER BY recorded_at ASC, created_at ASC
	`

	return r.scanFacts(ctx, query, callerID)
}

func (r *Repository) scanFacts(ctx context.Context, query string, args ...interface{}) ([]*CallerFact, error) {
	rows, err := r.execer.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.WithError(err).Error("Failed to query caller facts")
		return nil, fmt.Errorf("failed to query caller facts: %w", err)
	}
	defer rows.Close()

	var facts []*CallerFact
	for rows.Next() {
		fact := &CallerFact{}
		err := rows.Scan(
			&fact.ID, &fact.CallerID, &fact.FieldName, &fact.FieldValue,
			&fact.SourceCallID, &fact.Confidence, &fact.RecordedAt,
			&fact.ValidUntil, &fact.CreatedAt,
		)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan caller fact row")
			continue
		}
		facts = append(facts, fact)
	}

	return facts, rows.Err()
}

// Lead operations

// CreateLead creates a new lead record
func (r *Repository) CreateLead(ctx context.Context, lead *Lead) error {
	lead.ID = uuid.New().String()
	lead.CreatedAt = time.Now()
	lead.UpdatedAt = time.Now()

	query := `
		INSERT INTO leads (
			id, caller_id, tenant_id, phone_number, category, status,
			conversion_detected, conversion_call_id, first_call_date,
			last_call_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.execer.ExecContext(ctx, query,
		lead.ID, lead.CallerID, lead.TenantID, lead.PhoneNumber,
		lead.Category, lead.Status, lead.ConversionDetected,
		lead.ConversionCallID, lead.FirstCallDate, lead.LastCallDate,
		lead.CreatedAt, lead.UpdatedAt,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to create lead")
		return fmt.Errorf("failed to create lead: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"lead_id":      lead.ID,
		"tenant_id":    lead.TenantID,
		"phone_number": lead.PhoneNumber,
		"status":       lead.Status,
	}).Info("Lead created")

	return nil
}

// GetLead retrieves a lead by (tenant, phone number)
func (r *Repository) GetLead(ctx context.Context, tenantID, phoneNumber string) (*Lead, error) {
	return r.getLead(ctx, tenantID, phoneNumber, false)
}

// GetLeadForUpdate retrieves a lead with a row lock. Only meaningful inside
// Transact; the lock holds until the transaction ends.
func (r *Repository) GetLeadForUpdate(ctx context.Context, tenantID, phoneNumber string) (*Lead, error) {
	return r.getLead(ctx, tenantID, phoneNumber, true)
}

func (r *Repository) getLead(ctx context.Context, tenantID, phoneNumber string, forUpdate bool) (*Lead, error) {
	query := `
		SELECT id, caller_id, tenant_id, phone_number, category, status,
			   conversion_detected, conversion_call_id, first_call_date,
			   last_call_date, created_at, updated_at
		FROM leads WHERE tenant_id = ? AND phone_number = ?
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	lead := &Lead{}
	err := r.execer.QueryRowContext(ctx, query, tenantID, phoneNumber).Scan(
		&lead.ID, &lead.CallerID, &lead.TenantID, &lead.PhoneNumber,
		&lead.Category, &lead.Status, &lead.ConversionDetected,
		&lead.ConversionCallID, &lead.FirstCallDate, &lead.LastCallDate,
		&lead.CreatedAt, &lead.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewLeadNotFound(tenantID, phoneNumber)
		}
		r.logger.WithError(err).WithField("phone_number", phoneNumber).Error("Failed to get lead")
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	return lead, nil
}

// UpdateLead updates the mutable fields of a lead
func (r *Repository) UpdateLead(ctx context.Context, lead *Lead) error {
	lead.UpdatedAt = time.Now()

	query := `
		UPDATE leads SET
			category = ?, status = ?, conversion_detected = ?,
			conversion_call_id = ?, last_call_date = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.execer.ExecContext(ctx, query,
		lead.Category, lead.Status, lead.ConversionDetected,
		lead.ConversionCallID, lead.LastCallDate, lead.UpdatedAt, lead.ID,
	)

	if err != nil {
		r.logger.WithError(err).WithField("lead_id", lead.ID).Error("Failed to update lead")
		return fmt.Errorf("failed to update lead: %w", err)
	}

	return nil
}

// Call operations

// CreateCall records one processed call-ended event
func (r *Repository) CreateCall(ctx context.Context, call *Call) error {
	call.ID = uuid.New().String()
	call.CreatedAt = time.Now()

	query := `
		INSERT INTO calls (
			id, call_id, tenant_id, phone_number, category, start_time,
			transcript_turns, claim_number, extraction_status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.execer.ExecContext(ctx, query,
		call.ID, call.CallID, call.TenantID, call.PhoneNumber, call.Category,
		call.StartTime, call.TranscriptTurns, call.ClaimNumber,
		call.ExtractionStatus, call.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithField("call_id", call.CallID).Error("Failed to create call record")
		return fmt.Errorf("failed to create call record: %w", err)
	}

	return nil
}

// ListCallsByCaller returns a caller's call history ordered by start time
func (r *Repository) ListCallsByCaller(ctx context.Context, tenantID, phoneNumber string) ([]*Call, error) {
	query := `
		SELECT id, call_id, tenant_id, phone_number, category, start_time,
			   transcript_turns, claim_number, extraction_status, created_at
		FROM calls
		WHERE tenant_id = ? AND phone_number = ?
		ORDER BY start_time ASC
	`

	rows, err := r.execer.QueryContext(ctx, query, tenantID, phoneNumber)
	if err != nil {
		r.logger.WithError(err).Error("Failed to list calls")
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var calls []*Call
	for rows.Next() {
		call := &Call{}
		err := rows.Scan(
			&call.ID, &call.CallID, &call.TenantID, &call.PhoneNumber,
			&call.Category, &call.StartTime, &call.TranscriptTurns,
			&call.ClaimNumber, &call.ExtractionStatus, &call.CreatedAt,
		)
		if err != nil {
			r.logger.WithError(err).Error("Failed to scan call row")
			continue
		}
		calls = append(calls, call)
	}

	return calls, rows.Err()
}

// Event operations

// CreateIntakeEvent records one pipeline decision for auditing
func (r *Repository) CreateIntakeEvent(ctx context.Context, event *IntakeEvent) error {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now()

	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			r.logger.WithError(err).Error("Failed to marshal event metadata")
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
	}

	query := `
		INSERT INTO intake_events (
			id, call_id, caller_id, type, level, message, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.execer.ExecContext(ctx, query,
		event.ID, event.CallID, event.CallerID, event.Type, event.Level,
		event.Message, metadataJSON, event.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).Error("Failed to create intake event")
		return fmt.Errorf("failed to create intake event: %w", err)
	}

	return nil
}
