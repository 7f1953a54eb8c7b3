package transcript

import (
	"testing"
	"time"
)

func TestNormalizeEventSynonymousFields(t *testing.T) {
	payloads := []string{
		`{"call_id":"c1","tenant_id":"t1","category":"New Lead","phone":"+15551234567","transcript":[{"role":"agent","content":"Hello"}]}`,
		`{"callId":"c1","agentId":"t1","call_category":"New Lead","phone_number":"(555) 123-4567","turns":[{"speaker":"agent","text":"Hello"}]}`,
		`{"id":"c1","agent_id":"t1","classification":"New Lead","from_number":"555-123-4567","messages":[{"role":"agent","message":"Hello"}]}`,
	}

	for i, raw := range payloads {
		event, err := NormalizeEvent([]byte(raw))
		if err != nil {
			t.Fatalf("payload %d: NormalizeEvent failed: %v", i, err)
		}

		if event.Metadata.CallID != "c1" {
			t.Errorf("payload %d: expected call id c1, got %s", i, event.Metadata.CallID)
		}
		if event.Metadata.TenantID != "t1" {
			t.Errorf("payload %d: expected tenant t1, got %s", i, event.Metadata.TenantID)
		}
		if event.Metadata.Category != "New Lead" {
			t.Errorf("payload %d: expected category New Lead, got %s", i, event.Metadata.Category)
		}
		if event.Metadata.PhoneNumber != "+15551234567" {
			t.Errorf("payload %d: expected +15551234567, got %s", i, event.Metadata.PhoneNumber)
		}
		if len(event.Transcript.Turns) != 1 || event.Transcript.Turns[0].Speaker != SpeakerAgent {
			t.Errorf("payload %d: transcript not normalized: %+v", i, event.Transcript.Turns)
		}
	}
}

func TestNormalizeEventMissingCallID(t *testing.T) {
	_, err := NormalizeEvent([]byte(`{"phone":"+15551234567"}`))
	if err == nil {
		t.Fatal("expected error for missing call id")
	}
}

func TestNormalizeEventUserRoleBecomesCaller(t *testing.T) {
	raw := `{"call_id":"c2","transcript":[{"role":"user","content":"Hi there"},{"role":"agent","content":"Hello"}]}`

	event, err := NormalizeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("NormalizeEvent failed: %v", err)
	}

	if event.Transcript.Turns[0].Speaker != SpeakerCaller {
		t.Errorf("expected user role to map to caller, got %s", event.Transcript.Turns[0].Speaker)
	}
	if event.Transcript.Turns[1].Speaker != SpeakerAgent {
		t.Errorf("expected agent role preserved, got %s", event.Transcript.Turns[1].Speaker)
	}
}

func TestNormalizeEventStartTime(t *testing.T) {
	raw := `{"call_id":"c3","start_time":"2026-08-01T12:00:00Z"}`

	event, err := NormalizeEvent([]byte(raw))
	if err != nil {
		t.Fatalf("NormalizeEvent failed: %v", err)
	}

	want := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !event.Metadata.StartTime.Equal(want) {
		t.Errorf("expected %s, got %s", want, event.Metadata.StartTime)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15551234567", "+15551234567"},
		{"(555) 123-4567", "+15551234567"},
		{"555.123.4567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{"+442071838750", "+442071838750"},
		{"", ""},
		{"ext 42", ""},
	}

	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTranscriptIsEmpty(t *testing.T) {
	empty := Transcript{Turns: []Turn{{Speaker: SpeakerAgent, Text: "   "}}}
	if !empty.IsEmpty() {
		t.Error("whitespace-only transcript should be empty")
	}

	nonEmpty := Transcript{Turns: []Turn{{Speaker: SpeakerCaller, Text: "hello"}}}
	if nonEmpty.IsEmpty() {
		t.Error("transcript with content should not be empty")
	}
}
