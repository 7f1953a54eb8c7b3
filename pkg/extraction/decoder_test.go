package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeSpokenNumber(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "canonical digit string is unchanged",
			in:   "2839975",
			want: "2839975",
		},
		{
			name: "canonical string with leading zeros is unchanged",
			in:   "00000023",
			want: "00000023",
		},
		{
			name: "dash joined digit run",
			in:   "2-8-3-9-9-7-5-1",
			want: "28399751",
		},
		{
			name: "dash joined digit groups",
			in:   "283-9975-1",
			want: "28399751",
		},
		{
			name: "space joined single digit run",
			in:   "8 7 9 6",
			want: "8796",
		},
		{
			name: "comma separated single digits",
			in:   "then 2, 3",
			want: "23",
		},
		{
			name: "word number run",
			in:   "two eight three nine nine seven five one",
			want: "28399751",
		},
		{
			name: "oh counts as zero",
			in:   "four oh seven",
			want: "407",
		},
		{
			name: "single isolated number word is not captured",
			in:   "give me one moment",
			want: "",
		},
		{
			name: "standalone zero run expands",
			in:   "six zeros",
			want: "000000",
		},
		{
			name: "zero run equivalence with explicit tokens",
			in:   "0 0 0 0 0 0",
			want: "000000",
		},
		{
			name: "zero run with echoed digits is not doubled",
			in:   "six zeros—0 0 0 0 0 0",
			want: "000000",
		},
		{
			name: "zero run echo then trailing digits",
			in:   "Let me confirm: six zeros—0 0 0 0 0 0, then 2, 3, is that correct?",
			want: "00000023",
		},
		{
			name: "zero run mid sequence expands in place",
			in:   "five three, six zeros, then nine",
			want: "53000000",
		},
		{
			name: "word runs flanking an echoed zero run all survive",
			in:   "nine eight, six zeros—0 0 0 0 0 0, then two three",
			want: "9800000023",
		},
		{
			name: "expanded zero run between word run and suffix",
			in:   "four four, three zeros, ends with 2",
			want: "440002",
		},
		{
			name: "letter by example spelling",
			in:   "L as in Larry",
			want: "L",
		},
		{
			name: "letters and digits interleave",
			in:   "L as in Larry, A 3 5 9 0 5 2 5 8 2 1 3 0 0 0 0 5, is that correct?",
			want: "LA3590525821300005",
		},
		{
			name: "mixed notations in one utterance",
			in:   "two eight three, dash nine seven five one",
			want: "2839751",
		},
		{
			name: "ends in phrase decodes one digit",
			in:   "four seven nine one and it ends in a 5",
			want: "47915",
		},
		{
			name: "ends with word digit",
			in:   "three three eight zero, ends with seven",
			want: "33807",
		},
		{
			name: "trailing dash word suffix",
			in:   "9 9 4 2 1 dash seven",
			want: "994217",
		},
		{
			name: "plain speech yields nothing",
			in:   "thank you for calling, how can I help you today",
			want: "",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "whitespace only",
			in:   "   ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeSpokenNumber(tt.in))
		})
	}
}

func TestDecodeSpokenNumberIdempotent(t *testing.T) {
	inputs := []string{"2839975", "00000023", "99421"}

	for _, in := range inputs {
		once := DecodeSpokenNumber(in)
		twice := DecodeSpokenNumber(once)
		assert.Equal(t, once, twice, "decoding %q twice changed the result", in)
	}
}

func TestDecodeSpokenNumberLowercaseArticleIgnored(t *testing.T) {
	// "a" the article must not contribute a letter
	assert.Equal(t, "47915", DecodeSpokenNumber("4 7 9 1 and it ends in a 5"))
}

func TestZeroRunCount(t *testing.T) {
	assert.Equal(t, 6, zeroRunCount("six"))
	assert.Equal(t, 6, zeroRunCount("Six"))
	assert.Equal(t, 7, zeroRunCount("7"))
	assert.Equal(t, 0, zeroRunCount("hundred"))
	assert.Equal(t, 0, zeroRunCount("0"))
}
