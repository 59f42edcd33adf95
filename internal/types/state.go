package types

import (
	"fmt"
	"strings"
)

// State is an article's position in the editorial state machine.
type State string

// Pipeline states in forward order, followed by the terminal failure states.
const (
	StateCollected  State = "COLLECTED"
	StateExtracted  State = "EXTRACTED"
	StateAnalyzed   State = "ANALYZED"
	StateScored     State = "SCORED"
	StateClassified State = "CLASSIFIED"
	StatePublished  State = "PUBLISHED"
	StateReleased   State = "RELEASED"
	StateRejected   State = "REJECTED"
	StateMLLFailed  State = "MLL_FAILED"
	StateWorthless  State = "WORTHLESS"
)

// AllStates lists every known state, forward states first.
var AllStates = []State{
	StateCollected,
	StateExtracted,
	StateAnalyzed,
	StateScored,
	StateClassified,
	StatePublished,
	StateReleased,
	StateRejected,
	StateMLLFailed,
	StateWorthless,
}

// forward maps each non-terminal state to the states it may advance to
// along the main line. Failure branches are handled in CanTransition.
var forward = map[State][]State{
	StateCollected:  {StateExtracted},
	StateExtracted:  {StateAnalyzed},
	StateAnalyzed:   {StateScored},
	StateScored:     {StateClassified},
	StateClassified: {StatePublished, StateRejected},
	StatePublished:  {StateReleased},
}

// ParseState converts a string (any casing) into a known State.
func ParseState(s string) (State, error) {
	candidate := State(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range AllStates {
		if st == candidate {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown article state %q", s)
}

// IsTerminal reports whether no further transition is possible from s.
func (s State) IsTerminal() bool {
	switch s {
	case StateReleased, StateRejected, StateMLLFailed, StateWorthless:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from one state to another is legal.
// Staying in the same state is legal (idempotent re-entry).
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == StateMLLFailed || to == StateWorthless {
		return true
	}
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}
