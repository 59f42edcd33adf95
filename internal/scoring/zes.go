package scoring

import "github.com/jonathan/zeroecho/internal/types"

// Dimension names as they appear in breakdowns and upstream payloads.
const (
	DimSignal         = "Signal"
	DimNoise          = "Noise"
	DimUtility        = "Utility"
	DimFineAdjustment = "Fine_Adjustment"
)

// MaxMetric is the top of the sub-metric scale.
const MaxMetric = 10.0

// Weights are the per-dimension composite weights. Noise is subtracted.
type Weights struct {
	Signal         float64
	Utility        float64
	FineAdjustment float64
	Noise          float64
}

// DefaultWeights sum to 1.0 over the positive dimensions.
var DefaultWeights = Weights{
	Signal:         0.50,
	Utility:        0.35,
	FineAdjustment: 0.15,
	Noise:          0.10,
}

// DefaultMetrics lists the sub-metrics averaged into each dimension.
var DefaultMetrics = map[string][]string{
	DimSignal:         {"impact", "novelty", "evidence"},
	DimNoise:          {"hype", "speculation", "redundancy"},
	DimUtility:        {"actionability", "longevity", "relevance"},
	DimFineAdjustment: {"source_credibility", "clarity"},
}

// ZESScorer computes the Zero Echo Score.
type ZESScorer struct {
	Weights Weights
	Metrics map[string][]string
}

// NewZESScorer returns a scorer with the default weights and metric names.
func NewZESScorer() ZESScorer {
	return ZESScorer{Weights: DefaultWeights, Metrics: DefaultMetrics}
}

// Name implements Strategy.
func (ZESScorer) Name() string { return "zes_v1" }

// Compute implements Strategy. Missing dimensions and sub-metrics count as 0.
func (z ZESScorer) Compute(raw *types.RawAnalysis) (float64, Breakdown) {
	dims := &types.ZESDimensions{}
	if raw != nil && raw.Dimensions != nil {
		dims = raw.Dimensions
	}

	signal := z.dimension(DimSignal, dims.Signal)
	noise := z.dimension(DimNoise, dims.Noise)
	utility := z.dimension(DimUtility, dims.Utility)
	fine := z.dimension(DimFineAdjustment, dims.FineAdjustment)

	composite := z.Weights.Signal*signal +
		z.Weights.Utility*utility +
		z.Weights.FineAdjustment*fine -
		z.Weights.Noise*noise

	return round2(clamp(composite, 0, MaxMetric)), Breakdown{
		DimSignal:         round2(signal),
		DimNoise:          round2(noise),
		DimUtility:        round2(utility),
		DimFineAdjustment: round2(fine),
	}
}

func (z ZESScorer) dimension(name string, values map[string]float64) float64 {
	names := z.Metrics[name]
	if len(names) == 0 {
		return 0
	}
	var total float64
	for _, metric := range names {
		total += clamp(values[metric], 0, MaxMetric)
	}
	return total / float64(len(names))
}
