// Package scoring turns raw analysis signals into numeric article scores.
// Both strategies are pure: identical input always yields identical output.
package scoring

import (
	"math"

	"github.com/jonathan/zeroecho/internal/types"
)

// Strategy computes one score from a raw analysis.
type Strategy interface {
	Name() string
	Compute(raw *types.RawAnalysis) (float64, Breakdown)
}

// Breakdown holds named intermediate values behind a score.
type Breakdown map[string]float64

// Result is the combined output of every scoring strategy.
type Result struct {
	ImpactScore   float64              `json:"impact_score"`
	ZeroEchoScore float64              `json:"zero_echo_score"`
	Breakdown     map[string]Breakdown `json:"breakdown"`
}

// Scores converts the result to the article score record.
func (r Result) Scores() *types.Scores {
	return &types.Scores{
		ImpactScore:   r.ImpactScore,
		ZeroEchoScore: r.ZeroEchoScore,
	}
}

var (
	impact = ImpactScorer{}
	zes    = NewZESScorer()
)

// Score runs the impact and ZES strategies. A nil raw analysis scores zero.
func Score(raw *types.RawAnalysis) Result {
	impactScore, impactBreakdown := impact.Compute(raw)
	zesScore, zesBreakdown := zes.Compute(raw)
	return Result{
		ImpactScore:   impactScore,
		ZeroEchoScore: zesScore,
		Breakdown: map[string]Breakdown{
			impact.Name(): impactBreakdown,
			zes.Name():    zesBreakdown,
		},
	}
}

// ScoreMap decodes a loosely typed payload and scores it.
func ScoreMap(payload map[string]any) Result {
	raw, _ := types.ParseRawAnalysis(payload)
	return Score(raw)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
