package scoring

import "github.com/jonathan/zeroecho/internal/types"

// ImpactScorer sums event values, subtracts penalties and applies modifiers last.
// Entity classifications are reported in the breakdown but do not move the score.
type ImpactScorer struct{}

// Name implements Strategy.
func (ImpactScorer) Name() string { return "impact" }

// Compute implements Strategy.
func (ImpactScorer) Compute(raw *types.RawAnalysis) (float64, Breakdown) {
	if raw == nil {
		raw = &types.RawAnalysis{}
	}

	events := sum(raw.ImpactEvents)
	penalties := sum(raw.Penalties)
	modifiers := sum(raw.Modifiers)

	score := events - penalties
	score += modifiers

	return round2(score), Breakdown{
		"entities":  round2(sum(raw.ImpactEntities)),
		"events":    round2(events),
		"penalties": round2(penalties),
		"modifiers": round2(modifiers),
	}
}

func sum(items []types.SignalItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Value
	}
	return total
}
