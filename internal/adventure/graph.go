package adventure

import "strings"

// Condition labels an edge with the outcome that traverses it.
type Condition string

const (
	ConditionCorrect   Condition = "correct"
	ConditionIncorrect Condition = "incorrect"
	ConditionDefault   Condition = "default"
)

// Normalize maps legacy spellings onto the canonical conditions.
// An empty condition and "always" both mean default.
func (c Condition) Normalize() Condition {
	switch strings.ToLower(strings.TrimSpace(string(c))) {
	case "", "default", "always":
		return ConditionDefault
	case "correct":
		return ConditionCorrect
	case "incorrect":
		return ConditionIncorrect
	}
	return c
}

// Valid reports whether the normalized condition is one of the known labels.
func (c Condition) Valid() bool {
	switch c.Normalize() {
	case ConditionCorrect, ConditionIncorrect, ConditionDefault:
		return true
	}
	return false
}

// Outcome is the judged result of a single submission.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"

	// OutcomeStarted marks the seed entry of a fresh attempt's path. It is
	// never a valid input to Advance.
	OutcomeStarted Outcome = "started"
)

// OutcomeOf converts a judge verdict into an Outcome.
func OutcomeOf(isCorrect bool) Outcome {
	if isCorrect {
		return OutcomeCorrect
	}
	return OutcomeIncorrect
}

// Position is the canvas location of a node. The core never reads it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Problem is the authored exercise carried by a node.
type Problem struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Language       string `json:"language"`
	CodeSnippet    string `json:"code_snippet"`
	ExpectedOutput string `json:"expected_output"`
	Difficulty     int    `json:"difficulty"`
}

// missingFields returns the json names of unpopulated fields.
func (p Problem) missingFields() []string {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("title", p.Title)
	check("description", p.Description)
	check("language", p.Language)
	check("code_snippet", p.CodeSnippet)
	check("expected_output", p.ExpectedOutput)
	if p.Difficulty < 1 {
		missing = append(missing, "difficulty")
	}
	return missing
}

// Node is a problem node in an adventure graph.
type Node struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Data     Problem  `json:"data"`
	Type     string   `json:"type,omitempty"`
}

// EdgeData holds the edge condition.
type EdgeData struct {
	Condition Condition `json:"condition"`
}

// Edge is a directed, condition-labeled transition between two nodes.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Data   EdgeData `json:"data"`
	Type   string   `json:"type,omitempty"`
}

// Condition returns the normalized edge condition.
func (e Edge) Condition() Condition {
	return e.Data.Condition.Normalize()
}

// Graph is the authored set of nodes and edges.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// HasNode reports whether id names a node of the graph.
func (g Graph) HasNode(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// Clone returns a copy that shares no slices with g.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Edges, g.Edges)
	return out
}
