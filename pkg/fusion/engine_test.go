package fusion

import (
	"reflect"
	"testing"

	"scamshield/pkg/risk"
)

func intp(v int) *int { return &v }

func local() risk.Assessment {
	return risk.Assessment{
		Score:           60,
		Level:           risk.LevelMedium,
		Confidence:      70,
		Flags:           []string{"wire", "profit"},
		Recommendations: []string{"verify the contact"},
		Summary:         "local summary",
		KeyFindings:     []string{"2 messages analyzed"},
	}
}

func TestNilOpinionPassesThrough(t *testing.T) {
	e := NewEngine()
	in := local()
	out := e.Merge(in, nil)
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("nil provider must not change the local assessment: %+v vs %+v", in, out)
	}
}

func TestScoreCombination(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name      string
		provider  int
		wantScore int
	}{
		// |90-60| >= 25: provider weighted 0.6 -> 0.6*90 + 0.4*60 = 78
		{"divergent favors provider", 90, 78},
		// |70-60| < 25: even split -> 65
		{"close scores average", 70, 65},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Merge(local(), &risk.Opinion{RiskScore: intp(tt.provider)})
			if out.Score != tt.wantScore {
				t.Fatalf("score = %d, want %d", out.Score, tt.wantScore)
			}
			if out.Level != risk.LevelForScore(tt.wantScore) {
				t.Fatalf("level = %s, want recomputed %s", out.Level, risk.LevelForScore(tt.wantScore))
			}
		})
	}
}

func TestExplicitProviderLevelWins(t *testing.T) {
	e := NewEngine()
	out := e.Merge(local(), &risk.Opinion{RiskScore: intp(90), RiskLevel: "low"})
	if out.Level != risk.LevelLow {
		t.Fatalf("level = %s, provider-supplied level must take precedence", out.Level)
	}
}

func TestInvalidProviderLevelIgnored(t *testing.T) {
	e := NewEngine()
	out := e.Merge(local(), &risk.Opinion{RiskLevel: "CATASTROPHIC"})
	if out.Level != risk.LevelMedium {
		t.Fatalf("level = %s, unknown provider level must be ignored", out.Level)
	}
}

func TestConfidenceIsMax(t *testing.T) {
	e := NewEngine()
	if out := e.Merge(local(), &risk.Opinion{Confidence: intp(85)}); out.Confidence != 85 {
		t.Fatalf("confidence = %d, want provider max 85", out.Confidence)
	}
	if out := e.Merge(local(), &risk.Opinion{Confidence: intp(40)}); out.Confidence != 70 {
		t.Fatalf("confidence = %d, want local max 70", out.Confidence)
	}
}

func TestFlagUnion(t *testing.T) {
	e := NewEngine()
	out := e.Merge(local(), &risk.Opinion{Flags: []string{"profit", "wallet_drain"}})
	want := []string{"wire", "profit", "wallet_drain"}
	if !reflect.DeepEqual(out.Flags, want) {
		t.Fatalf("flags = %v, want local-first union %v", out.Flags, want)
	}
}

func TestProviderTextReplacesLocal(t *testing.T) {
	e := NewEngine()
	op := &risk.Opinion{
		Summary:         "provider summary",
		KeyFindings:     []string{"provider finding"},
		Recommendations: []string{"provider rec"},
	}
	out := e.Merge(local(), op)
	if out.Summary != "provider summary" {
		t.Fatalf("summary = %q", out.Summary)
	}
	if !reflect.DeepEqual(out.KeyFindings, []string{"provider finding"}) {
		t.Fatalf("keyFindings = %v", out.KeyFindings)
	}
	if !reflect.DeepEqual(out.Recommendations, []string{"provider rec"}) {
		t.Fatalf("recommendations = %v", out.Recommendations)
	}

	// Empty provider text keeps local values.
	out = e.Merge(local(), &risk.Opinion{})
	if out.Summary != "local summary" {
		t.Fatalf("empty provider summary must not clobber local, got %q", out.Summary)
	}
}

func TestLevelAlwaysValid(t *testing.T) {
	e := NewEngine()
	for _, score := range []int{-50, 0, 39, 40, 69, 70, 100, 250} {
		out := e.Merge(local(), &risk.Opinion{RiskScore: intp(score)})
		switch out.Level {
		case risk.LevelLow, risk.LevelMedium, risk.LevelHigh:
		default:
			t.Fatalf("provider score %d produced invalid level %q", score, out.Level)
		}
		if out.Score < 0 || out.Score > 100 {
			t.Fatalf("provider score %d produced out-of-range score %d", score, out.Score)
		}
	}
}
