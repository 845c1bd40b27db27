package adventure

import (
	"errors"
	"fmt"
)

var (
	ErrNodeExists = errors.New("node already exists")
	ErrEdgeExists = errors.New("edge already exists")
	ErrNoEdge     = errors.New("unknown edge")
)

// Op is an authoring edit applied by Apply.
type Op interface {
	apply(g Graph) (Graph, error)
}

// AddNode appends a new problem node.
type AddNode struct {
	Node Node
}

// UpdateNode replaces the problem data and position of an existing node.
type UpdateNode struct {
	Node Node
}

// RemoveNode deletes a node and every edge touching it.
type RemoveNode struct {
	ID string
}

// Connect adds a default edge from Source to Target.
type Connect struct {
	Source string
	Target string
}

// SetCondition relabels an existing edge.
type SetCondition struct {
	EdgeID    string
	Condition Condition
}

// RemoveEdge deletes one edge.
type RemoveEdge struct {
	ID string
}

// Apply returns the graph produced by op. g is left untouched. Apply does
// not validate; an edited graph must still pass Validate before it is saved.
func Apply(g Graph, op Op) (Graph, error) {
	out, err := op.apply(g.Clone())
	if err != nil {
		return g, err
	}
	return out, nil
}

// EdgeID is the id Connect assigns to a new edge.
func EdgeID(source, target string) string {
	return fmt.Sprintf("edge-%s-%s", source, target)
}

func (op AddNode) apply(g Graph) (Graph, error) {
	if op.Node.ID == "" {
		return g, fmt.Errorf("add node: %w: empty id", ErrUnknownNode)
	}
	if g.HasNode(op.Node.ID) {
		return g, fmt.Errorf("add node %s: %w", op.Node.ID, ErrNodeExists)
	}
	g.Nodes = append(g.Nodes, op.Node)
	return g, nil
}

func (op UpdateNode) apply(g Graph) (Graph, error) {
	for i, n := range g.Nodes {
		if n.ID == op.Node.ID {
			g.Nodes[i] = op.Node
			return g, nil
		}
	}
	return g, fmt.Errorf("update node %s: %w", op.Node.ID, ErrUnknownNode)
}

func (op RemoveNode) apply(g Graph) (Graph, error) {
	if !g.HasNode(op.ID) {
		return g, fmt.Errorf("remove node %s: %w", op.ID, ErrUnknownNode)
	}
	nodes := g.Nodes[:0]
	for _, n := range g.Nodes {
		if n.ID != op.ID {
			nodes = append(nodes, n)
		}
	}
	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Source != op.ID && e.Target != op.ID {
			edges = append(edges, e)
		}
	}
	g.Nodes, g.Edges = nodes, edges
	return g, nil
}

func (op Connect) apply(g Graph) (Graph, error) {
	for _, id := range []string{op.Source, op.Target} {
		if !g.HasNode(id) {
			return g, fmt.Errorf("connect %s to %s: %w: %s", op.Source, op.Target, ErrUnknownNode, id)
		}
	}
	id := EdgeID(op.Source, op.Target)
	for _, e := range g.Edges {
		if e.ID == id {
			return g, fmt.Errorf("connect %s to %s: %w", op.Source, op.Target, ErrEdgeExists)
		}
	}
	g.Edges = append(g.Edges, Edge{
		ID:     id,
		Source: op.Source,
		Target: op.Target,
		Data:   EdgeData{Condition: ConditionDefault},
	})
	return g, nil
}

func (op SetCondition) apply(g Graph) (Graph, error) {
	if !op.Condition.Valid() {
		return g, fmt.Errorf("set condition on %s: unknown condition %q", op.EdgeID, op.Condition)
	}
	for i, e := range g.Edges {
		if e.ID == op.EdgeID {
			g.Edges[i].Data.Condition = op.Condition.Normalize()
			return g, nil
		}
	}
	return g, fmt.Errorf("set condition on %s: %w", op.EdgeID, ErrNoEdge)
}

func (op RemoveEdge) apply(g Graph) (Graph, error) {
	for i, e := range g.Edges {
		if e.ID == op.ID {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return g, nil
		}
	}
	return g, fmt.Errorf("remove edge %s: %w", op.ID, ErrNoEdge)
}
