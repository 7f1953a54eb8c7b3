package extraction

import (
	"fmt"
	"testing"

	"intake-server/pkg/transcript"
)

func agentTurn(text string) transcript.Turn {
	return transcript.Turn{Speaker: transcript.SpeakerAgent, Text: text}
}

func callerTurn(text string) transcript.Turn {
	return transcript.Turn{Speaker: transcript.SpeakerCaller, Text: text}
}

func TestFindConfirmedReadbackSimpleExchange(t *testing.T) {
	locator := NewConfirmationLocator(0)

	tr := transcript.Transcript{Turns: []transcript.Turn{
		callerTurn("Hi, I'm calling about my claim."),
		agentTurn("Sure, can you give me your claim number?"),
		callerTurn("It's 2-8-3-9-9-7-5-1."),
		agentTurn("The claim number is 2-8-3-9-9-7-5-1, is that correct?"),
		callerTurn("Yes."),
	}}

	got := locator.FindConfirmedReadback(tr)
	want := "The claim number is 2-8-3-9-9-7-5-1, is that correct?"
	if got != want {
		t.Errorf("Expected readback %q, got %q", want, got)
	}
}

func TestFindConfirmedReadbackRejectionThenReconfirmation(t *testing.T) {
	locator := NewConfirmationLocator(0)

	tr := transcript.Transcript{Turns: []transcript.Turn{
		agentTurn("Let me grab your policy number."),
		agentTurn("I heard 2-8-3-9-9-7-5-2, is that correct?"),
		callerTurn("No."),
		agentTurn("I heard 2-8-3-9-9-7-5-1, is that correct?"),
		callerTurn("Yeah, that's right."),
	}}

	got := locator.FindConfirmedReadback(tr)
	want := "I heard 2-8-3-9-9-7-5-1, is that correct?"
	if got != want {
		t.Errorf("Expected second readback %q, got %q", want, got)
	}
}

func TestFindConfirmedReadbackRejectionWithNoRetryYieldsNothing(t *testing.T) {
	locator := NewConfirmationLocator(0)

	tr := transcript.Transcript{Turns: []transcript.Turn{
		agentTurn("What's your claim number?"),
		agentTurn("You said 8 8 8 1 2, is that correct?"),
		callerTurn("No."),
		agentTurn("Alright, what can I help you with today?"),
	}}

	if got := locator.FindConfirmedReadback(tr); got != "" {
		t.Errorf("Expected no confirmed readback, got %q", got)
	}
}

func TestFindConfirmedReadbackNoConfirmationPair(t *testing.T) {
	locator := NewConfirmationLocator(0)

	// Digits appear but there is never a readback-then-yes exchange
	tr := transcript.Transcript{Turns: []transcript.Turn{
		agentTurn("Do you have a claim number?"),
		callerTurn("Yes, it's 4 4 9 2 1 7."),
		agentTurn("Thanks. What can I help you with?"),
		callerTurn("My hearing is next week."),
	}}

	if got := locator.FindConfirmedReadback(tr); got != "" {
		t.Errorf("Expected no confirmed readback, got %q", got)
	}
}

func TestFindConfirmedReadbackExcludesOtherTopics(t *testing.T) {
	locator := NewConfirmationLocator(0)

	tests := []struct {
		name string
		turn string
	}{
		{"email", "Let me confirm your email, john at example dot com, is that correct?"},
		{"phone", "Let me confirm the best phone to reach you, is that correct?"},
		{"name", "Let me make sure I have the spelling of your full name, is that correct?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := transcript.Transcript{Turns: []transcript.Turn{
				agentTurn("Let's start with your claim number."),
				agentTurn(tt.turn),
				callerTurn("Yes."),
			}}

			if got := locator.FindConfirmedReadback(tr); got != "" {
				t.Errorf("Excluded topic %s was captured as claim confirmation: %q", tt.name, got)
			}
		})
	}
}

func TestFindConfirmedReadbackContextualPhrasingInsideSection(t *testing.T) {
	locator := NewConfirmationLocator(0)

	// "the number is" without the word claim still counts once the claim
	// section is open
	tr := transcript.Transcript{Turns: []transcript.Turn{
		agentTurn("Could I get your file number?"),
		callerTurn("Sure, 9 9 4 2 1 7."),
		agentTurn("So the number is 9 9 4 2 1 7, is that correct?"),
		callerTurn("Correct."),
	}}

	want := "So the number is 9 9 4 2 1 7, is that correct?"
	if got := locator.FindConfirmedReadback(tr); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestFindConfirmedReadbackNeverEntersClaimSection(t *testing.T) {
	locator := NewConfirmationLocator(0)

	tr := transcript.Transcript{Turns: []transcript.Turn{
		agentTurn("Thanks for calling, how can I help?"),
		callerTurn("I want to ask about my appointment."),
		agentTurn("You said Tuesday at nine, is that correct?"),
		callerTurn("Yes."),
	}}

	if got := locator.FindConfirmedReadback(tr); got != "" {
		t.Errorf("Expected no readback outside a claim section, got %q", got)
	}
}

func TestFindConfirmedReadbackOnlyNextCallerTurnVerifies(t *testing.T) {
	locator := NewConfirmationLocator(0)

	// The caller's first response is ambiguous; a later unrelated "yes" must
	// not confirm the stale readback.
	tr := transcript.Transcript{Turns: []transcript.Turn{
		agentTurn("Your claim number, I heard 7 7 3 2 1 9, is that correct?"),
		callerTurn("Hang on, let me find my paperwork."),
		agentTurn("Take your time."),
		callerTurn("Yes."),
	}}

	if got := locator.FindConfirmedReadback(tr); got != "" {
		t.Errorf("Stale readback was confirmed by an unrelated yes: %q", got)
	}
}

func TestFindConfirmedReadbackOverwritesStaleReadback(t *testing.T) {
	locator := NewConfirmationLocator(0)

	tr := transcript.Transcript{Turns: []transcript.Turn{
		agentTurn("Reading your claim number back: to confirm, 1 1 1 2 2."),
		agentTurn("Actually, let me read that back again: claim 9 8 7 6 5, is that correct?"),
		callerTurn("Yep."),
	}}

	want := "Actually, let me read that back again: claim 9 8 7 6 5, is that correct?"
	if got := locator.FindConfirmedReadback(tr); got != want {
		t.Errorf("Expected most recent readback %q, got %q", want, got)
	}
}

func TestFindConfirmedReadbackRespectsTurnCap(t *testing.T) {
	locator := NewConfirmationLocator(10)

	turns := make([]transcript.Turn, 0, 20)
	for i := 0; i < 15; i++ {
		turns = append(turns, callerTurn(fmt.Sprintf("filler turn %d", i)))
	}
	turns = append(turns,
		agentTurn("The claim number is 5 5 5 1 2, is that correct?"),
		callerTurn("Yes."),
	)

	if got := locator.FindConfirmedReadback(transcript.Transcript{Turns: turns}); got != "" {
		t.Errorf("Readback beyond the turn cap should not be scanned, got %q", got)
	}
}
