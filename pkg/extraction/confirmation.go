package extraction

import (
	"strings"

	"intake-server/pkg/transcript"
)

// The locator finds the one agent readback that was explicitly verified by
// the caller, as opposed to any number merely mentioned in passing. It is
// advisory only: when no confirmed exchange exists it returns "", never a
// guess.

// DefaultMaxScanTurns bounds pathological transcripts.
const DefaultMaxScanTurns = 200

// Phrases that open a claim-number section of the conversation
var claimSectionTriggers = []string{
	"claim number",
	"policy number",
	"file number",
	"our file",
}

// Agent phrasings that mark a confirmation attempt
var confirmationPhrases = []string{
	"is that correct",
	"did i get that right",
	"did i get it right",
	"let me confirm",
	"let me read that back",
	"let me repeat",
	"let me make sure",
	"to confirm",
	"to make sure i have",
	"i heard",
	"you said",
	"the claim number is",
	"the number is",
}

// Exclusion keyword sets: a confirmation attempt about one of these topics is
// never treated as a claim-number confirmation.
var (
	phoneKeywords = []string{"phone", "reach you", "extension"}
	emailKeywords = []string{"email", "@", "dot com"}
	nameKeywords  = []string{"full name", "spelling", "spelled"}
)

// Signals that the agent has moved past number verification
var movingOnPhrases = []string{
	"what specifically",
	"what can i help",
	"how can i help",
	"anything else",
	"is there anything else",
}

// Exact caller responses that affirm a readback
var affirmExact = map[string]bool{
	"yes": true, "yes.": true,
	"correct": true, "correct.": true,
	"yeah": true, "yeah.": true,
	"yep": true, "yep.": true,
	"alright": true, "alright.": true,
}

type locatorState int

const (
	stateIdle locatorState = iota
	stateInClaimSection
	stateConfirmed
)

// ConfirmationLocator scans a transcript for a verified claim-number readback
type ConfirmationLocator struct {
	maxScanTurns int
}

// NewConfirmationLocator creates a locator with the given turn cap;
// values below 1 fall back to DefaultMaxScanTurns.
func NewConfirmationLocator(maxScanTurns int) *ConfirmationLocator {
	if maxScanTurns < 1 {
		maxScanTurns = DefaultMaxScanTurns
	}
	return &ConfirmationLocator{maxScanTurns: maxScanTurns}
}

// FindConfirmedReadback returns the text of the agent readback the caller
// affirmed, or "" when the transcript never reaches a confirmed exchange.
func (l *ConfirmationLocator) FindConfirmedReadback(t transcript.Transcript) string {
	state := stateIdle
	confirmed := ""

	// The most recent unconfirmed readback; only the caller turn immediately
	// following it can verify it.
	pending := ""
	pendingFresh := false

	turns := t.Turns
	if len(turns) > l.maxScanTurns {
		turns = turns[:l.maxScanTurns]
	}

	for _, turn := range turns {
		text := strings.ToLower(turn.Text)

		if state == stateConfirmed {
			if turn.Speaker == transcript.SpeakerAgent && containsAny(text, movingOnPhrases) {
				break
			}
			continue
		}

		if state == stateIdle {
			if containsAny(text, claimSectionTriggers) {
				state = stateInClaimSection
			} else {
				continue
			}
		}

		switch turn.Speaker {
		case transcript.SpeakerAgent:
			if l.isClaimConfirmationAttempt(text) {
				// Only the most recent unconfirmed readback is tracked; a
				// corrected re-reading replaces the stale one.
				pending = turn.Text
				pendingFresh = true
			}

		case transcript.SpeakerCaller:
			if pending == "" || !pendingFresh {
				continue
			}
			pendingFresh = false

			switch {
			case isAffirmation(text):
				confirmed = pending
				state = stateConfirmed
			case isRejection(text):
				// Stay in the claim section; a corrected re-reading may follow.
				pending = ""
			default:
				// Ambiguous response. The readback stays unverified and only a
				// fresh readback can restart the exchange.
				pending = ""
			}
		}
	}

	return confirmed
}

// isClaimConfirmationAttempt reports whether an agent turn is confirming a
// claim/policy/file number specifically.
func (l *ConfirmationLocator) isClaimConfirmationAttempt(text string) bool {
	if !containsAny(text, confirmationPhrases) {
		return false
	}

	// Exclusion filters: confirmations of a phone number, email address, or
	// name spelling are a different exchange entirely.
	if containsAny(text, phoneKeywords) || containsAny(text, emailKeywords) || containsAny(text, nameKeywords) {
		return false
	}

	// The turn must reference the claim/policy/file number, or lean on the
	// section context with "the number" / "i heard".
	if strings.Contains(text, "claim") || strings.Contains(text, "policy") || strings.Contains(text, "file number") {
		return true
	}
	return strings.Contains(text, "the number") || strings.Contains(text, "i heard")
}

func isAffirmation(text string) bool {
	trimmed := strings.TrimSpace(text)
	if affirmExact[trimmed] {
		return true
	}
	if strings.Contains(trimmed, "that's right") || strings.Contains(trimmed, "thats right") {
		return true
	}
	return strings.HasPrefix(trimmed, "yes,") || strings.HasPrefix(trimmed, "yeah,")
}

func isRejection(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == "no" || trimmed == "no." || strings.Contains(trimmed, "incorrect")
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
