package adventure

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBuildsLegalGraph(t *testing.T) {
	var g Graph
	ops := []Op{
		AddNode{Node: problem("S", "Start")},
		AddNode{Node: problem("M", "Middle")},
		AddNode{Node: problem("E", "End")},
		Connect{Source: "S", Target: "M"},
		Connect{Source: "S", Target: "E"},
		Connect{Source: "M", Target: "E"},
		SetCondition{EdgeID: "edge-S-M", Condition: ConditionCorrect},
		SetCondition{EdgeID: "edge-S-E", Condition: ConditionIncorrect},
		SetCondition{EdgeID: "edge-M-E", Condition: ConditionCorrect},
	}
	for _, op := range ops {
		var err error
		g, err = Apply(g, op)
		require.NoError(t, err, "%T", op)
	}

	assert.Nil(t, ValidateGraph(g.Nodes, g.Edges))
	want := []Edge{
		edge("edge-S-M", "S", "M", ConditionCorrect),
		edge("edge-S-E", "S", "E", ConditionIncorrect),
		edge("edge-M-E", "M", "E", ConditionCorrect),
	}
	if diff := cmp.Diff(want, g.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectUsesDefaultCondition(t *testing.T) {
	g, err := Apply(Graph{Nodes: []Node{problem("A", "A"), problem("B", "B")}}, Connect{Source: "A", Target: "B"})
	require.NoError(t, err)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, ConditionDefault, g.Edges[0].Data.Condition)
	assert.Equal(t, "edge-A-B", g.Edges[0].ID)

	_, err = Apply(g, Connect{Source: "A", Target: "B"})
	assert.ErrorIs(t, err, ErrEdgeExists)

	_, err = Apply(g, Connect{Source: "A", Target: "Z"})
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestRemoveNodeDropsIncidentEdges(t *testing.T) {
	g := branching()
	out, err := Apply(g, RemoveNode{ID: "M"})
	require.NoError(t, err)

	assert.Len(t, out.Nodes, 2)
	assert.Equal(t, []Edge{edge("e2", "S", "E", ConditionIncorrect)}, out.Edges)

	// Input graph is untouched.
	if diff := cmp.Diff(branching(), g); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}

func TestApplyErrorsLeaveGraphUnchanged(t *testing.T) {
	g := branching()
	tests := []struct {
		op   Op
		want error
	}{
		{AddNode{Node: problem("S", "Dup")}, ErrNodeExists},
		{UpdateNode{Node: problem("Z", "Nope")}, ErrUnknownNode},
		{RemoveNode{ID: "Z"}, ErrUnknownNode},
		{RemoveEdge{ID: "missing"}, ErrNoEdge},
		{SetCondition{EdgeID: "missing", Condition: ConditionCorrect}, ErrNoEdge},
	}
	for _, tt := range tests {
		out, err := Apply(g, tt.op)
		assert.ErrorIs(t, err, tt.want, "%T", tt.op)
		assert.Equal(t, branching(), out)
	}

	_, err := Apply(g, SetCondition{EdgeID: "e1", Condition: "maybe"})
	assert.Error(t, err)
}

func TestUpdateAndRemoveEdge(t *testing.T) {
	updated := problem("M", "Renamed")
	g, err := Apply(branching(), UpdateNode{Node: updated})
	require.NoError(t, err)
	n, ok := g.Node("M")
	require.True(t, ok)
	assert.Equal(t, "Renamed", n.Data.Title)

	g, err = Apply(g, RemoveEdge{ID: "e2"})
	require.NoError(t, err)
	assert.Len(t, g.Edges, 2)

	g, err = Apply(g, SetCondition{EdgeID: "e3", Condition: "always"})
	require.NoError(t, err)
	assert.Equal(t, ConditionDefault, g.Edges[1].Data.Condition)
}
