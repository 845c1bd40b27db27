package adventure

// Index holds the adjacency lists of a graph, built once per validation or
// save. Edge slices keep declaration order.
type Index struct {
	graph    Graph
	bySource map[string][]Edge
	byTarget map[string][]Edge
}

// NewIndex builds the by-source and by-target adjacency lists of g.
func NewIndex(g Graph) *Index {
	ix := &Index{
		graph:    g,
		bySource: make(map[string][]Edge, len(g.Nodes)),
		byTarget: make(map[string][]Edge, len(g.Nodes)),
	}
	for _, e := range g.Edges {
		ix.bySource[e.Source] = append(ix.bySource[e.Source], e)
		ix.byTarget[e.Target] = append(ix.byTarget[e.Target], e)
	}
	return ix
}

// Outgoing returns the edges leaving id.
func (ix *Index) Outgoing(id string) []Edge {
	return ix.bySource[id]
}

// Incoming returns the edges entering id.
func (ix *Index) Incoming(id string) []Edge {
	return ix.byTarget[id]
}

// StartCandidates returns the nodes with no incoming edges, in node order.
func (ix *Index) StartCandidates() []Node {
	var out []Node
	for _, n := range ix.graph.Nodes {
		if len(ix.byTarget[n.ID]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// EndCandidates returns the nodes with no outgoing edges, in node order.
func (ix *Index) EndCandidates() []Node {
	var out []Node
	for _, n := range ix.graph.Nodes {
		if len(ix.bySource[n.ID]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Reachable returns the set of node ids reachable from start, start included.
func (ix *Index) Reachable(start string) map[string]bool {
	visited := make(map[string]bool, len(ix.graph.Nodes))
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, e := range ix.bySource[id] {
			if !visited[e.Target] {
				stack = append(stack, e.Target)
			}
		}
	}
	return visited
}

// Endpoints returns the unique start and end node ids. ok is false unless
// there is exactly one of each.
func (ix *Index) Endpoints() (start, end string, ok bool) {
	starts := ix.StartCandidates()
	ends := ix.EndCandidates()
	if len(starts) != 1 || len(ends) != 1 {
		return "", "", false
	}
	return starts[0].ID, ends[0].ID, true
}
