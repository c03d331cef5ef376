// Package transcript scores chat transcripts with deterministic heuristics.
// Identical input bytes always produce an identical assessment; there is no
// randomness and no external state.
package transcript

import (
	"fmt"
	"regexp"
	"strings"

	"scamshield/pkg/risk"
)

// defaultKeywords is the scam keyword catalogue. Matching is substring-based
// over the lowercased transcript.
var defaultKeywords = []string{
	"urgent",
	"wire",
	"transfer",
	"crypto",
	"guaranteed",
	"profit",
	"password",
	"otp",
	"wallet",
	"investment",
	"giveaway",
	"verify",
	"prize",
	"lottery",
}

// participantRe matches a leading "name:" speaker label, name being 1-64
// non-colon characters.
var participantRe = regexp.MustCompile(`^([^:]{1,64}):`)

// Stats carries the structural counters alongside an assessment.
type Stats struct {
	MessageCount     int
	ParticipantCount int
	MatchedKeywords  []string
}

// Analyzer scores raw transcript bytes.
type Analyzer struct {
	keywords []string
}

// NewAnalyzer builds an analyzer with the default keyword catalogue.
func NewAnalyzer() *Analyzer {
	return &Analyzer{keywords: defaultKeywords}
}

// Analyze scores a transcript. The zero-byte transcript yields a zero
// assessment; any non-empty content is floored at score 15 so real content
// never reports zero risk.
func (a *Analyzer) Analyze(data []byte) (risk.Assessment, Stats) {
	text := string(data)

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(raw); s != "" {
			lines = append(lines, s)
		}
	}

	participants := make(map[string]struct{})
	for _, line := range lines {
		if m := participantRe.FindStringSubmatch(line); m != nil {
			participants[strings.TrimSpace(m[1])] = struct{}{}
		}
	}
	participantCount := len(participants)
	if participantCount == 0 && len(lines) > 0 {
		participantCount = 1
	}

	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range a.keywords {
		if strings.Contains(lower, kw) {
			matched = append(matched, kw)
		}
	}

	score := 20 * len(matched)
	if score > 100 {
		score = 100
	}
	switch {
	case len(lines) > 200:
		score += 20
	case len(lines) > 100:
		score += 10
	}
	if score > 100 {
		score = 100
	}
	if score == 0 && len(lines) > 0 {
		score = 15
	}

	level := risk.LevelForScore(score)

	findings := []string{
		fmt.Sprintf("%d messages analyzed", len(lines)),
		fmt.Sprintf("%d participants detected", participantCount),
	}
	if len(matched) > 0 {
		findings = append(findings, "matched keywords: "+strings.Join(matched, ", "))
	}

	out := risk.Assessment{
		Score:           score,
		Level:           level,
		Confidence:      confidence(len(matched), participantCount, len(lines)),
		Flags:           append([]string(nil), matched...),
		Recommendations: recommendations(level),
		Summary:         summary(level, len(matched)),
		KeyFindings:     findings,
	}
	return out, Stats{
		MessageCount:     len(lines),
		ParticipantCount: participantCount,
		MatchedKeywords:  matched,
	}
}

func confidence(matched, participants, lines int) int {
	if lines == 0 {
		return 0
	}
	c := 55 + 5*matched
	if participants >= 2 {
		c += 5
	}
	if c > 90 {
		c = 90
	}
	return c
}

func summary(level risk.Level, matched int) string {
	switch level {
	case risk.LevelHigh:
		return fmt.Sprintf("Conversation shows strong indicators of a scam (%d scam-related keywords). Cease contact and do not send money.", matched)
	case risk.LevelMedium:
		return fmt.Sprintf("Conversation shows several scam indicators (%d scam-related keywords). Treat requests for money or credentials with suspicion.", matched)
	default:
		if matched > 0 {
			return "Conversation shows weak scam indicators. Stay cautious with unsolicited offers."
		}
		return "No scam indicators detected in this conversation."
	}
}

func recommendations(level risk.Level) []string {
	switch level {
	case risk.LevelHigh:
		return []string{
			"Stop communicating with this contact",
			"Do not transfer money or share credentials",
			"Report the conversation to the platform",
		}
	case risk.LevelMedium:
		return []string{
			"Verify the contact's identity through another channel",
			"Never share one-time codes or passwords",
		}
	default:
		return []string{
			"Remain cautious with unsolicited financial offers",
		}
	}
}
