// Package steps provides phase definitions and phase-list normalization for
// the article pipeline.
package steps

import (
	"fmt"
	"strings"

	"github.com/jonathan/zeroecho/internal/types"
)

// Phase names one pipeline phase.
type Phase string

// Pipeline phases in canonical order.
const (
	Collect  Phase = "COLLECT"
	Extract  Phase = "EXTRACT"
	Analyze  Phase = "ANALYZE"
	Score    Phase = "SCORE"
	Classify Phase = "CLASSIFY"
	Publish  Phase = "PUBLISH"
	Release  Phase = "RELEASE"
)

// Phase categories.
const (
	CategoryIngestion = "ingestion"
	CategoryAnalysis  = "analysis"
	CategoryEditorial = "editorial"
)

// Order is the canonical execution order.
var Order = []Phase{Collect, Extract, Analyze, Score, Classify, Publish, Release}

// PhaseDefinition defines metadata for a pipeline phase.
type PhaseDefinition struct {
	Name     Phase
	Category string
	// Input is the state a phase selects articles by. Empty for COLLECT,
	// which creates articles instead.
	Input types.State
	// Outputs are the states a successful phase may move an article to.
	Outputs []types.State
	// FailureState receives articles that fail permanently. Empty means
	// failures leave the article where it is.
	FailureState types.State
}

// PhaseRegistry holds all phase definitions.
var PhaseRegistry = map[Phase]PhaseDefinition{
	Collect: {
		Name:     Collect,
		Category: CategoryIngestion,
		Outputs:  []types.State{types.StateCollected},
	},
	Extract: {
		Name:         Extract,
		Category:     CategoryIngestion,
		Input:        types.StateCollected,
		Outputs:      []types.State{types.StateExtracted},
		FailureState: types.StateWorthless,
	},
	Analyze: {
		Name:         Analyze,
		Category:     CategoryAnalysis,
		Input:        types.StateExtracted,
		Outputs:      []types.State{types.StateAnalyzed},
		FailureState: types.StateMLLFailed,
	},
	Score: {
		Name:     Score,
		Category: CategoryAnalysis,
		Input:    types.StateAnalyzed,
		Outputs:  []types.State{types.StateScored, types.StateWorthless},
	},
	Classify: {
		Name:     Classify,
		Category: CategoryEditorial,
		Input:    types.StateScored,
		Outputs:  []types.State{types.StateClassified},
	},
	Publish: {
		Name:     Publish,
		Category: CategoryEditorial,
		Input:    types.StateClassified,
		Outputs:  []types.State{types.StatePublished, types.StateRejected},
	},
	Release: {
		Name:     Release,
		Category: CategoryEditorial,
		Input:    types.StatePublished,
		Outputs:  []types.State{types.StateReleased},
	},
}

// UnknownPhaseError is returned for phase names outside the registry.
type UnknownPhaseError struct {
	Name string
}

func (e *UnknownPhaseError) Error() string {
	return fmt.Sprintf("unknown phase: %s", e.Name)
}

// Parse resolves a phase name case-insensitively.
func Parse(name string) (Phase, error) {
	p := Phase(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := PhaseRegistry[p]; !ok {
		return "", &UnknownPhaseError{Name: name}
	}
	return p, nil
}

// Normalize deduplicates the requested phases and returns them in canonical
// order. An empty request selects every phase.
func Normalize(requested []string) ([]Phase, error) {
	if len(requested) == 0 {
		return append([]Phase(nil), Order...), nil
	}

	want := make(map[Phase]bool, len(requested))
	for _, name := range requested {
		p, err := Parse(name)
		if err != nil {
			return nil, err
		}
		want[p] = true
	}

	phases := make([]Phase, 0, len(want))
	for _, p := range Order {
		if want[p] {
			phases = append(phases, p)
		}
	}
	return phases, nil
}

// Produces reports whether state is a legal successful outcome of the phase.
func (d PhaseDefinition) Produces(state types.State) bool {
	for _, s := range d.Outputs {
		if s == state {
			return true
		}
	}
	return false
}

// Position returns the 1-based index of p in Order, or 0.
func Position(p Phase) int {
	for i, o := range Order {
		if o == p {
			return i + 1
		}
	}
	return 0
}
