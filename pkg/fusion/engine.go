// Package fusion merges a locally computed assessment with an optional
// external provider opinion. Provider absence or failure never degrades the
// caller: the local assessment passes through untouched.
package fusion

import (
	"math"

	"scamshield/pkg/risk"
)

// divergenceThreshold is the score gap past which the provider is trusted
// more heavily than the local heuristic.
const divergenceThreshold = 25

// providerWeightHigh/Low are the provider-side weights for the combined
// score, chosen by divergence.
const (
	providerWeightHigh = 0.6
	providerWeightLow  = 0.5
)

// Engine combines assessments deterministically.
type Engine struct{}

// NewEngine constructs a fusion engine.
func NewEngine() *Engine { return &Engine{} }

// Merge folds a provider opinion into the local assessment. A nil opinion
// (provider absent, timed out, or failed) returns the local assessment
// unchanged.
func (e *Engine) Merge(local risk.Assessment, op *risk.Opinion) risk.Assessment {
	if op == nil {
		return local
	}
	out := local.Clone()

	if op.RiskScore != nil {
		ps := clamp(*op.RiskScore)
		w := providerWeightLow
		if abs(ps-local.Score) >= divergenceThreshold {
			w = providerWeightHigh
		}
		out.Score = clamp(int(math.Round(float64(ps)*w + float64(local.Score)*(1-w))))
		out.Level = risk.LevelForScore(out.Score)
	}
	// An explicit provider level wins over the recomputed one.
	if lvl, ok := risk.ParseLevel(op.RiskLevel); ok {
		out.Level = lvl
	}

	if op.Confidence != nil && *op.Confidence > out.Confidence {
		out.Confidence = clamp(*op.Confidence)
	}

	out.Flags = mergeFlags(local.Flags, op.Flags)

	if op.Summary != "" {
		out.Summary = op.Summary
	}
	if len(op.KeyFindings) > 0 {
		out.KeyFindings = append([]string(nil), op.KeyFindings...)
	}
	if len(op.Recommendations) > 0 {
		out.Recommendations = append([]string(nil), op.Recommendations...)
	}
	return out
}

// mergeFlags unions both flag lists, local-first, dropping duplicates.
func mergeFlags(local, remote []string) []string {
	seen := make(map[string]struct{}, len(local)+len(remote))
	out := make([]string, 0, len(local)+len(remote))
	for _, lists := range [][]string{local, remote} {
		for _, f := range lists {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
