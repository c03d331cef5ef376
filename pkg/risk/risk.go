// Package risk holds the assessment model shared by the local heuristics,
// the fusion engine, and external provider clients.
package risk

// Level buckets a 0-100 risk score.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// LevelForScore derives the level from a score. Thresholds: HIGH >= 70,
// MEDIUM >= 40.
func LevelForScore(score int) Level {
	switch {
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ParseLevel normalizes an externally supplied level string. ok is false for
// anything outside the three known levels.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "LOW", "low", "Low":
		return LevelLow, true
	case "MEDIUM", "medium", "Medium":
		return LevelMedium, true
	case "HIGH", "high", "High":
		return LevelHigh, true
	}
	return "", false
}

// Assessment is an immutable scoring result. Once returned to a caller it is
// never mutated; use Clone before editing.
type Assessment struct {
	Score           int      `json:"score"`
	Level           Level    `json:"level"`
	Confidence      int      `json:"confidence"`
	Flags           []string `json:"flags"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"keyFindings"`
}

// Clone returns a deep copy safe to mutate.
func (a Assessment) Clone() Assessment {
	out := a
	out.Flags = append([]string(nil), a.Flags...)
	out.Recommendations = append([]string(nil), a.Recommendations...)
	out.KeyFindings = append([]string(nil), a.KeyFindings...)
	return out
}

// Opinion is a partial assessment returned by an external risk provider.
// Pointer fields distinguish "absent" from zero values.
type Opinion struct {
	RiskScore       *int     `json:"riskScore,omitempty"`
	Confidence      *int     `json:"confidence,omitempty"`
	RiskLevel       string   `json:"riskLevel,omitempty"`
	Flags           []string `json:"flags,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	KeyFindings     []string `json:"keyFindings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}
