package adventure

import (
	"fmt"
	"strings"
)

// ViolationKind names the category of a structural violation.
type ViolationKind string

const (
	KindTooFewNodes      ViolationKind = "too_few_nodes"
	KindIncompleteNode   ViolationKind = "incomplete_node"
	KindDuplicateNodeID  ViolationKind = "duplicate_node_id"
	KindUnknownReference ViolationKind = "unknown_reference"
	KindUnknownCondition ViolationKind = "unknown_condition"
	KindSelfLoop         ViolationKind = "self_loop"
	KindDuplicateEdge    ViolationKind = "duplicate_edge"
	KindStartNode        ViolationKind = "start_node"
	KindEndNode          ViolationKind = "end_node"
	KindUnreachable      ViolationKind = "unreachable"
	KindMissingCorrect   ViolationKind = "missing_correct_edge"
	KindTooManyEdges     ViolationKind = "too_many_edges"
	KindOrphanedNode     ViolationKind = "orphaned_node"
)

// Violation describes the first structural rule an adventure graph breaks.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Message string        `json:"message"`
	NodeIDs []string      `json:"node_ids,omitempty"`
	EdgeIDs []string      `json:"edge_ids,omitempty"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("invalid adventure (%s): %s", v.Kind, v.Message)
}

// DefaultEdgePolicy controls how many default edges may leave a node.
type DefaultEdgePolicy string

const (
	DefaultEdgesSingle    DefaultEdgePolicy = "single"
	DefaultEdgesMultiple  DefaultEdgePolicy = "multiple"
	DefaultEdgesForbidden DefaultEdgePolicy = "forbidden"
)

// Policy tunes the validator. The zero value is the strict policy.
type Policy struct {
	DefaultEdges DefaultEdgePolicy
}

// StrictPolicy allows at most one default edge per node.
var StrictPolicy = Policy{DefaultEdges: DefaultEdgesSingle}

func (p Policy) maxDefaults() int {
	switch p.DefaultEdges {
	case DefaultEdgesMultiple:
		return -1
	case DefaultEdgesForbidden:
		return 0
	}
	return 1
}

// ValidateGraph checks nodes and edges against the strict policy.
func ValidateGraph(nodes []Node, edges []Edge) *Violation {
	return Validate(Graph{Nodes: nodes, Edges: edges}, StrictPolicy)
}

// Validate returns the first violation g commits under p, or nil if g is a
// legal adventure. Checks run in a fixed order so the same graph always
// reports the same violation.
func Validate(g Graph, p Policy) *Violation {
	if len(g.Nodes) < 2 {
		return &Violation{
			Kind:    KindTooFewNodes,
			Message: "Adventure must have at least 2 problems",
		}
	}

	for _, n := range g.Nodes {
		if missing := n.Data.missingFields(); len(missing) > 0 {
			return &Violation{
				Kind:    KindIncompleteNode,
				Message: fmt.Sprintf("Problem %q is missing required fields: %s", label(n), strings.Join(missing, ", ")),
				NodeIDs: []string{n.ID},
			}
		}
	}

	byID, v := checkNodeIDs(g)
	if v != nil {
		return v
	}
	if v := checkEdges(g, byID); v != nil {
		return v
	}

	ix := NewIndex(g)

	starts := ix.StartCandidates()
	switch {
	case len(starts) == 0:
		return &Violation{
			Kind:    KindStartNode,
			Message: "Adventure must have a starting problem (with no incoming connections)",
		}
	case len(starts) > 1:
		return &Violation{
			Kind:    KindStartNode,
			Message: "Adventure can only have one starting problem. Currently has: " + titles(starts),
			NodeIDs: ids(starts),
		}
	}
	start := starts[0]

	ends := ix.EndCandidates()
	switch {
	case len(ends) == 0:
		return &Violation{
			Kind:    KindEndNode,
			Message: "Adventure must have an ending problem (with no outgoing connections)",
		}
	case len(ends) > 1:
		return &Violation{
			Kind:    KindEndNode,
			Message: "Adventure can only have one ending problem. Currently has: " + titles(ends),
			NodeIDs: ids(ends),
		}
	}
	end := ends[0]

	reached := ix.Reachable(start.ID)
	var unreachable []Node
	for _, n := range g.Nodes {
		if !reached[n.ID] {
			unreachable = append(unreachable, n)
		}
	}
	if len(unreachable) > 0 {
		return &Violation{
			Kind:    KindUnreachable,
			Message: "These problems are unreachable: " + titles(unreachable),
			NodeIDs: ids(unreachable),
		}
	}

	if v := checkOutgoing(g, ix, end.ID, p); v != nil {
		return v
	}

	var orphaned []Node
	for _, n := range g.Nodes {
		if n.ID == start.ID || n.ID == end.ID {
			continue
		}
		if len(ix.Incoming(n.ID)) == 0 || len(ix.Outgoing(n.ID)) == 0 {
			orphaned = append(orphaned, n)
		}
	}
	if len(orphaned) > 0 {
		return &Violation{
			Kind:    KindOrphanedNode,
			Message: "These problems must have both incoming and outgoing connections: " + titles(orphaned),
			NodeIDs: ids(orphaned),
		}
	}

	return nil
}

// checkNodeIDs returns the nodes keyed by id for the edge checks.
func checkNodeIDs(g Graph) (map[string]Node, *Violation) {
	byID := make(map[string]Node, len(g.Nodes))
	var dups []string
	for _, n := range g.Nodes {
		if n.ID == "" {
			return nil, &Violation{
				Kind:    KindIncompleteNode,
				Message: fmt.Sprintf("Problem %q has no id", n.Data.Title),
			}
		}
		if _, ok := byID[n.ID]; ok {
			dups = append(dups, n.ID)
		}
		byID[n.ID] = n
	}
	if len(dups) > 0 {
		return nil, &Violation{
			Kind:    KindDuplicateNodeID,
			Message: "Problem ids must be unique. Duplicated: " + strings.Join(dups, ", "),
			NodeIDs: dups,
		}
	}
	return byID, nil
}

type edgeKey struct {
	source, target string
	cond           Condition
}

// checkEdges covers the per-edge rules: references, conditions, self-loops
// and duplicate triples, in that order across the whole edge list.
func checkEdges(g Graph, byID map[string]Node) *Violation {
	for _, e := range g.Edges {
		var missing []string
		if _, ok := byID[e.Source]; !ok {
			missing = append(missing, e.Source)
		}
		if _, ok := byID[e.Target]; !ok {
			missing = append(missing, e.Target)
		}
		if len(missing) > 0 {
			return &Violation{
				Kind:    KindUnknownReference,
				Message: fmt.Sprintf("Connection %s references unknown problems: %s", e.ID, strings.Join(missing, ", ")),
				NodeIDs: missing,
				EdgeIDs: []string{e.ID},
			}
		}
	}

	for _, e := range g.Edges {
		if !e.Data.Condition.Valid() {
			return &Violation{
				Kind:    KindUnknownCondition,
				Message: fmt.Sprintf("Connection %s has unknown condition %q", e.ID, e.Data.Condition),
				EdgeIDs: []string{e.ID},
			}
		}
	}

	for _, e := range g.Edges {
		if e.Source == e.Target {
			n := byID[e.Source]
			return &Violation{
				Kind:    KindSelfLoop,
				Message: fmt.Sprintf("Problem %q cannot connect to itself", label(n)),
				NodeIDs: []string{e.Source},
				EdgeIDs: []string{e.ID},
			}
		}
	}

	seen := make(map[edgeKey]string, len(g.Edges))
	for _, e := range g.Edges {
		k := edgeKey{e.Source, e.Target, e.Condition()}
		if first, ok := seen[k]; ok {
			return &Violation{
				Kind:    KindDuplicateEdge,
				Message: fmt.Sprintf("Duplicate %s connection from %s to %s", k.cond, e.Source, e.Target),
				NodeIDs: []string{e.Source, e.Target},
				EdgeIDs: []string{first, e.ID},
			}
		}
		seen[k] = e.ID
	}
	return nil
}

func checkOutgoing(g Graph, ix *Index, endID string, p Policy) *Violation {
	maxDefaults := p.maxDefaults()
	for _, n := range g.Nodes {
		if n.ID == endID {
			continue
		}
		counts := make(map[Condition][]string, 3)
		for _, e := range ix.Outgoing(n.ID) {
			c := e.Condition()
			counts[c] = append(counts[c], e.ID)
		}
		if len(counts[ConditionCorrect]) == 0 {
			return &Violation{
				Kind:    KindMissingCorrect,
				Message: fmt.Sprintf("Problem %q must have a connection for a correct answer", label(n)),
				NodeIDs: []string{n.ID},
			}
		}
		for _, c := range []Condition{ConditionCorrect, ConditionIncorrect} {
			if len(counts[c]) > 1 {
				return tooMany(n, c, counts[c])
			}
		}
		if maxDefaults >= 0 && len(counts[ConditionDefault]) > maxDefaults {
			return tooMany(n, ConditionDefault, counts[ConditionDefault])
		}
	}
	return nil
}

func tooMany(n Node, c Condition, edgeIDs []string) *Violation {
	return &Violation{
		Kind:    KindTooManyEdges,
		Message: fmt.Sprintf("Problem %q has too many %s connections", label(n), c),
		NodeIDs: []string{n.ID},
		EdgeIDs: edgeIDs,
	}
}

func label(n Node) string {
	if n.Data.Title != "" {
		return n.Data.Title
	}
	return n.ID
}

func titles(nodes []Node) string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = label(n)
	}
	return strings.Join(out, ", ")
}

func ids(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
