package database

import (
	"time"
)

// CallerProfile represents one known caller per (tenant, phone number)
type CallerProfile struct {
	ID            string    `db:"id" json:"id"`
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	PhoneNumber   string    `db:"phone_number" json:"phone_number"`
	CallerType    string    `db:"caller_type" json:"caller_type"` // new_lead, existing_client, professional
	TotalCalls    int       `db:"total_calls" json:"total_calls"`
	FirstCallDate time.Time `db:"first_call_date" json:"first_call_date"`
	LastCallDate  time.Time `db:"last_call_date" json:"last_call_date"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CallerFact is one append-only audit entry about a caller. Facts are never
// updated in place; a correction inserts a new row and stamps valid_until on
// the superseded one.
type CallerFact struct {
	ID           string     `db:"id" json:"id"`
	CallerID     string     `db:"caller_id" json:"caller_id"`
	FieldName    string     `db:"field_name" json:"field_name"`
	FieldValue   string     `db:"field_value" json:"field_value"`
	SourceCallID string     `db:"source_call_id" json:"source_call_id"`
	Confidence   float64    `db:"confidence" json:"confidence"` // 0.0-1.0
	RecordedAt   time.Time  `db:"recorded_at" json:"recorded_at"`
	ValidUntil   *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Lead tracks a phone number that was ever categorized as a new-lead contact
type Lead struct {
	ID                 string    `db:"id" json:"id"`
	CallerID           string    `db:"caller_id" json:"caller_id"`
	TenantID           string    `db:"tenant_id" json:"tenant_id"`
	PhoneNumber        string    `db:"phone_number" json:"phone_number"`
	Category           string    `db:"category" json:"category"`
	Status             string    `db:"status" json:"status"` // Pending, InProgress, Approved, Denied
	ConversionDetected bool      `db:"conversion_detected" json:"conversion_detected"`
	ConversionCallID   *string   `db:"conversion_call_id" json:"conversion_call_id,omitempty"`
	FirstCallDate      time.Time `db:"first_call_date" json:"first_call_date"`
	LastCallDate       time.Time `db:"last_call_date" json:"last_call_date"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Call is one processed call-ended event
type Call struct {
	ID               string    `db:"id" json:"id"`
	CallID           string    `db:"call_id" json:"call_id"` // platform call id
	TenantID         string    `db:"tenant_id" json:"tenant_id"`
	PhoneNumber      string    `db:"phone_number" json:"phone_number"`
	Category         string    `db:"category" json:"category"`
	StartTime        time.Time `db:"start_time" json:"start_time"`
	TranscriptTurns  int       `db:"transcript_turns" json:"transcript_turns"`
	ClaimNumber      *string   `db:"claim_number" json:"claim_number,omitempty"`
	ExtractionStatus string    `db:"extraction_status" json:"extraction_status"` // completed, partial, skipped
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// IntakeEvent represents pipeline decisions for auditing
type IntakeEvent struct {
	ID        string                 `db:"id" json:"id"`
	CallID    *string                `db:"call_id" json:"call_id,omitempty"`
	CallerID  *string                `db:"caller_id" json:"caller_id,omitempty"`
	Type      string                 `db:"type" json:"type"`   // fact_recorded, lead_created, conversion, tracking_skipped, etc.
	Level     string                 `db:"level" json:"level"` // info, warning, error
	Message   string                 `db:"message" json:"message"`
	Metadata  map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}
