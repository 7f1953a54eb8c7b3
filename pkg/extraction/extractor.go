package extraction

import (
	"context"
	"strings"
	"time"

	"intake-server/pkg/transcript"

	"github.com/sirupsen/logrus"
)

// MinClaimNumberLength is the minimum plausible length for a claim/policy
// number. Shorter decodes are treated as decoder noise, not surfaced as
// low-confidence guesses.
const MinClaimNumberLength = 5

// ExtractedRecord is the structured result of one call. Every field is
// optional; absence is always preferred over a guessed value. Immutable once
// built.
type ExtractedRecord struct {
	CallID      string            `json:"call_id"`
	Category    string            `json:"category"`
	Name        *string           `json:"name,omitempty"`
	Email       *string           `json:"email,omitempty"`
	Phone       *string           `json:"phone,omitempty"`
	ClaimNumber *string           `json:"claim_number,omitempty"`
	Purpose     *string           `json:"purpose,omitempty"`
	CaseFields  map[string]string `json:"case_fields,omitempty"`
}

// Extractor produces one ExtractedRecord per call, combining the
// deterministic claim-number path with the LLM free-text path.
type Extractor struct {
	logger     *logrus.Logger
	locator    *ConfirmationLocator
	annotator  FieldAnnotator
	timeout    time.Duration
	maxRetries int
}

// NewExtractor creates an extractor. The annotator may be nil, in which case
// only the deterministic claim-number path runs.
func NewExtractor(logger *logrus.Logger, locator *ConfirmationLocator, annotator FieldAnnotator, timeout time.Duration, maxRetries int) *Extractor {
	if locator == nil {
		locator = NewConfirmationLocator(DefaultMaxScanTurns)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Extractor{
		logger:     logger,
		locator:    locator,
		annotator:  annotator,
		timeout:    timeout,
		maxRetries: maxRetries,
	}
}

// Extract builds the structured record for one call. An empty transcript
// yields a nil record and no LLM call. LLM failures are fail-soft: whatever
// the deterministic path recovered survives, everything else stays null.
func (e *Extractor) Extract(ctx context.Context, t transcript.Transcript, meta transcript.CallMetadata) (*ExtractedRecord, error) {
	if t.IsEmpty() {
		e.logger.WithField("call_id", meta.CallID).Debug("Transcript empty, skipping extraction")
		return nil, nil
	}

	record := &ExtractedRecord{
		CallID:   meta.CallID,
		Category: meta.Category,
	}

	claimNumber := e.extractClaimNumber(t, meta.CallID)
	if claimNumber != "" {
		record.ClaimNumber = &claimNumber
	}

	fields, err := e.annotate(ctx, t, meta.Category)
	if err != nil {
		e.logger.WithError(err).WithField("call_id", meta.CallID).
			Warn("LLM extraction failed, returning deterministic fields only")
		return record, nil
	}
	if fields == nil {
		return record, nil
	}

	record.Name = cleanString(fields.Name)
	record.Email = cleanEmail(fields.Email)
	record.Phone = cleanPhone(fields.Phone)
	record.Purpose = cleanString(fields.Purpose)

	// Deterministic extraction wins for the claim number: the confirmed
	// readback is auditable, the LLM transcription of long digit strings is
	// not.
	if record.ClaimNumber == nil {
		record.ClaimNumber = cleanString(fields.ClaimNumber)
	}

	if len(fields.CaseFields) > 0 {
		record.CaseFields = make(map[string]string, len(fields.CaseFields))
		for _, cf := range fields.CaseFields {
			field := strings.TrimSpace(cf.Field)
			value := strings.TrimSpace(cf.Value)
			if field != "" && value != "" {
				record.CaseFields[field] = value
			}
		}
	}

	return record, nil
}

// extractClaimNumber runs the confirmed-readback path end to end
func (e *Extractor) extractClaimNumber(t transcript.Transcript, callID string) string {
	readback := e.locator.FindConfirmedReadback(t)
	if readback == "" {
		return ""
	}

	decoded := DecodeSpokenNumber(readback)
	if len(decoded) < MinClaimNumberLength {
		if decoded != "" {
			e.logger.WithFields(logrus.Fields{
				"call_id": callID,
				"length":  len(decoded),
			}).Debug("Decoded claim number below plausible length, discarding")
		}
		return ""
	}

	e.logger.WithFields(logrus.Fields{
		"call_id": callID,
		"length":  len(decoded),
	}).Info("Claim number recovered from confirmed readback")

	return decoded
}

// annotate calls the LLM with a per-attempt timeout and bounded retries
func (e *Extractor) annotate(ctx context.Context, t transcript.Transcript, category string) (*LLMFields, error) {
	if e.annotator == nil {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		fields, err := e.annotator.ExtractFields(attemptCtx, t, category)
		cancel()

		if err == nil {
			return fields, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

func cleanString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func cleanEmail(s *string) *string {
	cleaned := cleanString(s)
	if cleaned == nil || !strings.Contains(*cleaned, "@") {
		return nil
	}
	lowered := strings.ToLower(*cleaned)
	return &lowered
}

func cleanPhone(s *string) *string {
	if s == nil {
		return nil
	}
	normalized := transcript.NormalizePhone(*s)
	if normalized == "" {
		return nil
	}
	return &normalized
}
