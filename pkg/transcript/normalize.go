package transcript

import (
	"encoding/json"
	"strings"
	"time"

	"intake-server/pkg/errors"
)

// CallEndedEvent is the normalized form of one call-ended webhook delivery
type CallEndedEvent struct {
	Metadata   CallMetadata
	Transcript Transcript
}

// Synonymous field names the voice platform has been observed to send.
// The core never branches on spellings; everything funnels through here.
var (
	callIDKeys   = []string{"call_id", "callId", "id"}
	tenantKeys   = []string{"tenant_id", "tenantId", "agent_id", "agentId"}
	categoryKeys = []string{"category", "call_category", "classification"}
	phoneKeys    = []string{"phone", "phone_number", "phoneNumber", "from_number", "fromNumber", "from", "caller_number"}
	startKeys    = []string{"start_time", "startTime", "start_timestamp", "started_at"}
	turnsKeys    = []string{"transcript", "turns", "messages"}
)

// NormalizeEvent canonicalizes a raw webhook payload into a CallEndedEvent.
// A missing phone number is not an error here; lead tracking decides what to
// do with it. A missing call id is fatal because nothing downstream can be
// attributed without one.
func NormalizeEvent(raw []byte) (*CallEndedEvent, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.NewInvalidPayload("payload is not a JSON object")
	}

	event := &CallEndedEvent{}

	event.Metadata.CallID = firstString(payload, callIDKeys)
	if event.Metadata.CallID == "" {
		return nil, errors.NewInvalidPayload("missing call id")
	}

	event.Metadata.TenantID = firstString(payload, tenantKeys)
	event.Metadata.Category = firstString(payload, categoryKeys)
	event.Metadata.PhoneNumber = NormalizePhone(firstString(payload, phoneKeys))
	event.Metadata.StartTime = firstTime(payload, startKeys)
	if event.Metadata.StartTime.IsZero() {
		event.Metadata.StartTime = time.Now().UTC()
	}

	event.Transcript = normalizeTurns(payload)

	return event, nil
}

func normalizeTurns(payload map[string]interface{}) Transcript {
	var rawTurns []interface{}
	for _, key := range turnsKeys {
		if v, ok := payload[key].([]interface{}); ok {
			rawTurns = v
			break
		}
	}

	transcript := Transcript{}
	for _, item := range rawTurns {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		text := firstString(entry, []string{"content", "text", "message"})
		if strings.TrimSpace(text) == "" {
			continue
		}

		role := strings.ToLower(firstString(entry, []string{"role", "speaker"}))
		speaker := SpeakerCaller
		if role == "agent" || role == "assistant" || role == "bot" {
			speaker = SpeakerAgent
		}

		transcript.Turns = append(transcript.Turns, Turn{Speaker: speaker, Text: text})
	}

	return transcript
}

// NormalizePhone strips formatting and returns an E.164-style number, or ""
// when nothing usable remains. US numbers without a country code get +1.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	number := digits.String()
	switch {
	case len(number) == 10:
		return "+1" + number
	case len(number) == 11 && number[0] == '1':
		return "+" + number
	case len(number) >= 7:
		return "+" + number
	}
	return ""
}

func firstString(payload map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func firstTime(payload map[string]interface{}, keys []string) time.Time {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok {
			continue
		}

		switch value := v.(type) {
		case string:
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				return ts
			}
		case float64:
			// Unix timestamps arrive as seconds or milliseconds
			if value > 1e12 {
				return time.UnixMilli(int64(value)).UTC()
			}
			if value > 0 {
				return time.Unix(int64(value), 0).UTC()
			}
		}
	}
	return time.Time{}
}
