package extraction

import (
	"context"
	"regexp"
	"strings"
)

var (
	projectPattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}\d])(?:uppdrag(?:snummer|snr)?|projekt(?:et|nummer)?)\s+(?:nummer\s+|nr\.?\s*)?([\p{L}\d-]*\d[\p{L}\d-]*)`)
	hoursPattern   = regexp.MustCompile(`(?i)(?:^|[^\p{L}\d])(\d+(?:[.,]\d+)?|en|ett|två|tre|fyra|fem|sex|sju|åtta|nio|tio|elva|tolv|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s*(?:timmar|timme|hours|hour|h)(?:[^\p{L}]|$)`)
	closedPattern  = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:slutför|avslutad|klar|färdig|completed|done)`)
)

var numberWords = map[string]string{
	"en": "1", "ett": "1", "one": "1",
	"två": "2", "two": "2",
	"tre": "3", "three": "3",
	"fyra": "4", "four": "4",
	"fem": "5", "five": "5",
	"sex": "6", "six": "6",
	"sju": "7", "seven": "7",
	"åtta": "8", "eight": "8",
	"nio": "9", "nine": "9",
	"tio": "10", "ten": "10",
	"elva": "11", "eleven": "11",
	"tolv": "12", "twelve": "12",
}

// RegexStrategy pattern-matches the transcript. It never fails.
type RegexStrategy struct{}

// NewRegexStrategy creates the pattern-matching strategy
func NewRegexStrategy() *RegexStrategy {
	return &RegexStrategy{}
}

func (s *RegexStrategy) Name() string { return string(SourceRegex) }

func (s *RegexStrategy) Extract(_ context.Context, in Input) (Record, bool, error) {
	r := MatchTranscript(in.Transcript)
	if r.IsEmpty() {
		return Record{}, false, nil
	}
	return r, true, nil
}

// MatchTranscript applies the project, hours and closing-keyword patterns
func MatchTranscript(text string) Record {
	r := Record{Source: SourceRegex}

	if m := projectPattern.FindStringSubmatch(text); m != nil {
		r.Project = StringPtr(m[1])
	}

	if m := hoursPattern.FindStringSubmatch(text); m != nil {
		r.Hours = StringPtr(normalizeHours(m[1]))
	}

	if closedPattern.MatchString(text) {
		r.Closed = StringPtr(ClosedYes)
	}

	return r
}

func normalizeHours(token string) string {
	lower := strings.ToLower(token)
	if n, ok := numberWords[lower]; ok {
		return n
	}
	return strings.ReplaceAll(lower, ",", ".")
}
