package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herculesaleixo/stackform/internal/ir"
)

func TestBuildDAG_NoDependencies(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null"},
		{Type: "null:Resource", Name: "b", Provider: "null"},
		{Type: "null:Resource", Name: "c", Provider: "null"},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)
	assert.Len(t, dag.Order(), 3)
}

func TestBuildDAG_ExplicitDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null", DependsOn: []string{"b"}},
		{Type: "null:Resource", Name: "b", Provider: "null"},
		{Type: "null:Resource", Name: "c", Provider: "null", DependsOn: []string{"a"}},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	order := dag.Order()
	require.Len(t, order, 3)
	assert.Less(t, indexOf(order, "b"), indexOf(order, "a"), "b should come before a")
	assert.Less(t, indexOf(order, "a"), indexOf(order, "c"), "a should come before c")
}

func TestBuildDAG_ImplicitReference(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "null:Resource",
			Name:     "consumer",
			Provider: "null",
			Properties: map[string]ir.Expr{
				"upstream": ir.Ref{Target: "producer", Attr: "id"},
			},
		},
		{Type: "null:Resource", Name: "producer", Provider: "null"},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	order := dag.Order()
	require.Len(t, order, 2)
	assert.Less(t, indexOf(order, "producer"), indexOf(order, "consumer"))
	assert.Equal(t, []string{"producer"}, dag.Dependencies("consumer"))
	assert.Equal(t, []string{"consumer"}, dag.Dependents("producer"))
}

func TestBuildDAG_NestedReference(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "null:Resource",
			Name:     "consumer",
			Provider: "null",
			Properties: map[string]ir.Expr{
				"config": ir.Map{Entries: map[string]ir.Expr{
					"targets": ir.List{Elems: []ir.Expr{
						ir.Ref{Target: "producer", Attr: "id"},
					}},
				}},
			},
		},
		{Type: "null:Resource", Name: "producer", Provider: "null"},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"producer"}, dag.Dependencies("consumer"))
}

func TestBuildDAG_CycleDetection(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null", DependsOn: []string{"b"}},
		{Type: "null:Resource", Name: "b", Provider: "null", DependsOn: []string{"a"}},
		{Type: "null:Resource", Name: "c", Provider: "null"},
	}

	_, err := BuildDAG(resources)
	require.Error(t, err)

	var cycleErr *ir.CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, cycleErr.Members, "a")
	assert.Contains(t, cycleErr.Members, "b")
	assert.NotContains(t, cycleErr.Members, "c")
}

func TestBuildDAG_SelfReference(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "null:Resource",
			Name:     "a",
			Provider: "null",
			Properties: map[string]ir.Expr{
				"self": ir.Ref{Target: "a", Attr: "id"},
			},
		},
	}

	_, err := BuildDAG(resources)
	var cycleErr *ir.CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, cycleErr.Members, "a")
}

func TestBuildDAG_ReverseOrder(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null", DependsOn: []string{"b"}},
		{Type: "null:Resource", Name: "b", Provider: "null"},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	rev := dag.ReverseOrder()
	require.Len(t, rev, 2)
	assert.Less(t, indexOf(rev, "a"), indexOf(rev, "b"), "a should be destroyed before b")
}

func TestBuildDAG_Rank(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null"},
		{Type: "null:Resource", Name: "b", Provider: "null", DependsOn: []string{"a"}},
		{Type: "null:Resource", Name: "c", Provider: "null", DependsOn: []string{"b"}},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)
	assert.Equal(t, 0, dag.Rank("a"))
	assert.Equal(t, 1, dag.Rank("b"))
	assert.Equal(t, 2, dag.Rank("c"))
}

func TestBuildDAGFromState(t *testing.T) {
	resources := map[string]*ir.ResourceState{
		"a": {Name: "a", Dependencies: []string{"b"}},
		"b": {Name: "b"},
	}

	dag, err := BuildDAGFromState(resources)
	require.NoError(t, err)

	order := dag.Order()
	assert.Less(t, indexOf(order, "b"), indexOf(order, "a"))
}

func TestDAG_DOT(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null:Resource", Name: "a", Provider: "null", DependsOn: []string{"b"}},
		{Type: "null:Resource", Name: "b", Provider: "null"},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	dot := dag.DOT()
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, `"b" -> "a"`)
}

func indexOf(slice []string, item string) int {
	for i, s := range slice {
		if s == item {
			return i
		}
	}
	return -1
}
