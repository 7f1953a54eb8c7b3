package transcript

import (
	"strings"
	"time"
)

// Speaker identifies which party produced a transcript turn
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCaller Speaker = "caller"
)

// Turn is a single utterance in a call transcript
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Transcript is the ordered, immutable record of a finished call
type Transcript struct {
	Turns []Turn `json:"turns"`
}

// IsEmpty reports whether the transcript contains no spoken content
func (t Transcript) IsEmpty() bool {
	for _, turn := range t.Turns {
		if strings.TrimSpace(turn.Text) != "" {
			return false
		}
	}
	return true
}

// Text returns the whole transcript as a single string, one turn per line
func (t Transcript) Text() string {
	var b strings.Builder
	for i, turn := range t.Turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(turn.Speaker))
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}

// Call categories produced by the upstream classification step
const (
	CategoryNewLead             = "New Lead"
	CategoryExistingClient      = "Existing Client"
	CategoryAttorney            = "Attorney"
	CategoryInsurance           = "Insurance"
	CategoryMedical             = "Medical"
	CategoryMedicalProfessional = "Medical Professional"
	CategoryOther               = "Other"
)

// KnownCategory reports whether the category is part of the closed set
func KnownCategory(category string) bool {
	switch category {
	case CategoryNewLead, CategoryExistingClient, CategoryAttorney,
		CategoryInsurance, CategoryMedical, CategoryMedicalProfessional,
		CategoryOther:
		return true
	}
	return false
}

// CallMetadata is the canonical, normalized metadata for one ended call
type CallMetadata struct {
	CallID      string    `json:"call_id"`
	TenantID    string    `json:"tenant_id"`
	Category    string    `json:"category"`
	PhoneNumber string    `json:"phone_number"`
	StartTime   time.Time `json:"start_time"`
}
