package adventure

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownNode    = errors.New("unknown node")
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// Step is the result of advancing a solver by one judged submission.
type Step struct {
	NextNodeID string `json:"next_node_id"`
	// EdgeID is empty when the solver stayed in place.
	EdgeID    string `json:"edge_id,omitempty"`
	Completed bool   `json:"completed"`
	// Held is set when no edge matched the outcome and the solver stays on
	// a node that is not being completed.
	Held bool `json:"held"`
}

// Advance selects the next node for a solver at current who was judged
// outcome. Reaching the end node is not completion; a correct submission
// at the end node is.
func Advance(g Graph, current string, outcome Outcome) (Step, error) {
	if outcome != OutcomeCorrect && outcome != OutcomeIncorrect {
		return Step{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	if !g.HasNode(current) {
		return Step{}, fmt.Errorf("%w: %s", ErrUnknownNode, current)
	}

	var outgoing []Edge
	for _, e := range g.Edges {
		if e.Source == current {
			outgoing = append(outgoing, e)
		}
	}

	if len(outgoing) == 0 && outcome == OutcomeCorrect {
		return Step{NextNodeID: current, Completed: true}, nil
	}

	if e, ok := pick(outgoing, Condition(outcome)); ok {
		return Step{NextNodeID: e.Target, EdgeID: e.ID}, nil
	}
	if e, ok := pick(outgoing, ConditionDefault); ok {
		return Step{NextNodeID: e.Target, EdgeID: e.ID}, nil
	}

	return Step{NextNodeID: current, Held: true}, nil
}

// pick returns the first edge, in declaration order, labeled c.
func pick(edges []Edge, c Condition) (Edge, bool) {
	for _, e := range edges {
		if e.Condition() == c {
			return e, true
		}
	}
	return Edge{}, false
}
