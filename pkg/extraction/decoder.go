package extraction

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// The decoder turns one span of agent speech ("the portion of the utterance
// that reads back a number") into a canonical digit/letter string. Spoken
// readbacks mix notations freely, so this is not a single replace pass: each
// recognizer scans the original text independently, claims the region it
// matched, and the claimed fragments are merged back in source order. A later
// recognizer never re-reads a claimed region, which is what keeps zero-run
// phrases from being counted twice by the word-number scan.

var wordDigits = map[string]string{
	"zero": "0", "oh": "0", "o": "0",
	"one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

var zeroRunCounts = map[string]int{
	"two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

const digitWordAlt = `zero|oh|one|two|three|four|five|six|seven|eight|nine`

var (
	// "six zeros", "7 zeroes"
	zeroRunRe = regexp.MustCompile(`(?i)\b(two|three|four|five|six|seven|eight|nine|ten|\d+)\s+zero(?:e?s)\b`)

	// literal zero tokens echoed right after a zero-run phrase: "—0 0 0 0 0 0"
	zeroEchoRe = regexp.MustCompile(`^[\s,;:.\-—–]*0[\s,0]*`)

	// "L as in Larry"
	letterAsInRe = regexp.MustCompile(`(?i)\b([a-z])\s+as\s+in\s+[a-z]+`)

	// "2-8-3-9-9-7-5-1", "283-9975"
	dashRunRe = regexp.MustCompile(`\d+(?:-\d+)+`)

	// runs of single-character tokens: "8 7 9 6", "2, 3", "A 3 5 9".
	// Letters must be uppercase in the source so the article "a" and ordinary
	// prose never contribute; STT output uppercases spelled letters.
	charRunRe = regexp.MustCompile(`\b[0-9A-Z]\b(?:[\s,]+[0-9A-Z]\b)+`)

	// contiguous digit numerals: "2839975"
	numeralRe = regexp.MustCompile(`\d{2,}`)

	// two or more consecutive number words: "nine seven five one"
	wordRunRe = regexp.MustCompile(`(?i)\b(?:` + digitWordAlt + `)(?:[\s,]+(?:` + digitWordAlt + `))+\b`)

	// "ends with 5", "ends in a seven"
	endsWithRe = regexp.MustCompile(`(?i)\bends?\s+(?:with|in)\s+(?:an?\s+)?(\d|` + digitWordAlt + `)\b`)

	// trailing "dash seven" suffix notation
	dashWordRe = regexp.MustCompile(`(?i)\bdash\s+(\d|` + digitWordAlt + `)\s*[.?!]*\s*$`)

	tokenSplitRe = regexp.MustCompile(`[\s,]+`)
)

type fragment struct {
	start int
	text  string
}

// DecodeSpokenNumber converts a confirmation-readback span into a string of
// digits and uppercase letters with no separators. Returns "" when nothing
// decodable was found. Length plausibility is the caller's concern.
func DecodeSpokenNumber(span string) string {
	if strings.TrimSpace(span) == "" {
		return ""
	}

	mask := make([]bool, len(span))
	var fragments []fragment

	claim := func(start, end int, text string) {
		for i := start; i < end; i++ {
			mask[i] = true
		}
		if text != "" {
			fragments = append(fragments, fragment{start: start, text: text})
		}
	}

	unmasked := func(start, end int) bool {
		for i := start; i < end; i++ {
			if mask[i] {
				return false
			}
		}
		return true
	}

	// unmaskedIntervals returns the maximal unclaimed regions of the span
	unmaskedIntervals := func() [][2]int {
		var intervals [][2]int
		start := -1
		for i := 0; i <= len(span); i++ {
			if i < len(span) && !mask[i] {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				intervals = append(intervals, [2]int{start, i})
				start = -1
			}
		}
		return intervals
	}

	// scan matches a pattern against each unclaimed region separately, so a
	// fragment adjacent to an already-claimed phrase still matches instead of
	// being swallowed by a larger match that straddles the mask. Indices are
	// shifted back into span coordinates.
	scan := func(re *regexp.Regexp) [][]int {
		var matches [][]int
		for _, interval := range unmaskedIntervals() {
			for _, m := range re.FindAllStringSubmatchIndex(span[interval[0]:interval[1]], -1) {
				shifted := make([]int, len(m))
				for k, v := range m {
					if v < 0 {
						shifted[k] = v
					} else {
						shifted[k] = v + interval[0]
					}
				}
				matches = append(matches, shifted)
			}
		}
		return matches
	}

	// Pass 1: zero-run contraction. Must run before any digit or word scan;
	// "six zeros" echoed as "0 0 0 0 0 0" would otherwise decode twice.
	for _, m := range zeroRunRe.FindAllStringSubmatchIndex(span, -1) {
		if !unmasked(m[0], m[1]) {
			continue
		}

		count := zeroRunCount(span[m[2]:m[3]])
		if count <= 0 {
			continue
		}

		if zeroEchoRe.MatchString(span[m[1]:]) {
			// The speaker repeated both forms. Drop the phrase and trust the
			// explicit digits that follow; a digit pass will pick them up.
			claim(m[0], m[1], "")
			continue
		}

		claim(m[0], m[1], strings.Repeat("0", count))
	}

	// Pass 2: letter-by-example spelling
	for _, m := range scan(letterAsInRe) {
		claim(m[0], m[1], strings.ToUpper(span[m[2]:m[3]]))
	}

	// Pass 3: dash-joined digit runs
	for _, m := range scan(dashRunRe) {
		claim(m[0], m[1], strings.ReplaceAll(span[m[0]:m[1]], "-", ""))
	}

	// Pass 4: runs of single-character tokens. Requires at least one digit in
	// the run so spelled-out words never masquerade as identifiers.
	for _, m := range scan(charRunRe) {
		joined := tokenSplitRe.ReplaceAllString(span[m[0]:m[1]], "")
		if !strings.ContainsAny(joined, "0123456789") {
			continue
		}
		claim(m[0], m[1], joined)
	}

	// Pass 5: contiguous numerals, so an already-canonical digit string
	// decodes to itself
	for _, m := range scan(numeralRe) {
		claim(m[0], m[1], span[m[0]:m[1]])
	}

	// Pass 6: word-number runs of length >= 2. A single isolated number word
	// is deliberately not captured.
	for _, m := range scan(wordRunRe) {
		var b strings.Builder
		for _, word := range tokenSplitRe.Split(span[m[0]:m[1]], -1) {
			if d, ok := wordDigits[strings.ToLower(word)]; ok {
				b.WriteString(d)
			}
		}
		claim(m[0], m[1], b.String())
	}

	// Pass 7: "ends with/in <digit>" trailing disambiguation
	for _, m := range scan(endsWithRe) {
		claim(m[0], m[1], decodeSingle(span[m[2]:m[3]]))
	}

	// Pass 8: trailing "dash <digit>" suffix
	if m := dashWordRe.FindStringSubmatchIndex(span); m != nil && unmasked(m[0], m[1]) {
		claim(m[0], m[1], decodeSingle(span[m[2]:m[3]]))
	}

	// Merge in source order to preserve the left-to-right digit sequence as
	// spoken, regardless of which pass produced each fragment.
	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].start < fragments[j].start
	})

	var out strings.Builder
	for _, f := range fragments {
		out.WriteString(f.text)
	}
	return out.String()
}

func zeroRunCount(token string) int {
	token = strings.ToLower(token)
	if n, ok := zeroRunCounts[token]; ok {
		return n
	}
	if n, err := strconv.Atoi(token); err == nil && n > 0 && n <= 20 {
		return n
	}
	return 0
}

func decodeSingle(token string) string {
	token = strings.ToLower(token)
	if len(token) == 1 && token[0] >= '0' && token[0] <= '9' {
		return token
	}
	if d, ok := wordDigits[token]; ok {
		return d
	}
	return ""
}
