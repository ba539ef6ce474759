package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/herculesaleixo/stackform/internal/ir"
)

// DAG is the dependency graph over logical resource names. An edge A->B in
// Dependencies(B) means A must be applied before B.
type DAG struct {
	nodes map[string]*dagNode
	order []string // topological order, ties broken by logical name
	rank  map[string]int
}

type dagNode struct {
	name     string
	edges    []string // resources this node depends on
	revEdges []string // resources that depend on this node
}

// BuildDAG constructs the dependency graph of a template. Edges come from
// explicit DependsOn hints and from reference expressions in property bags;
// the two are merged, never ranked against each other. A cycle fails with
// ir.CyclicDependencyError naming its members.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
		rank:  make(map[string]int),
	}

	for _, res := range resources {
		dag.nodes[res.Name] = &dagNode{name: res.Name}
	}

	for _, res := range resources {
		node := dag.nodes[res.Name]
		for _, dep := range res.References() {
			if _, ok := dag.nodes[dep]; ok {
				node.edges = append(node.edges, dep)
			}
		}
	}

	return dag.finish()
}

// BuildDAGFromState constructs the graph from persisted state, using the
// dependency lists captured at apply time. Used for destroy ordering.
func BuildDAGFromState(resources map[string]*ir.ResourceState) (*DAG, error) {
	dag := &DAG{
		nodes: make(map[string]*dagNode),
		rank:  make(map[string]int),
	}

	for name := range resources {
		dag.nodes[name] = &dagNode{name: name}
	}
	for name, rs := range resources {
		for _, dep := range rs.Dependencies {
			if _, ok := dag.nodes[dep]; ok {
				dag.nodes[name].edges = append(dag.nodes[name].edges, dep)
			}
		}
	}

	return dag.finish()
}

func (d *DAG) finish() (*DAG, error) {
	for _, node := range d.nodes {
		sort.Strings(node.edges)
		node.edges = dedup(node.edges)
	}
	for name, node := range d.nodes {
		for _, dep := range node.edges {
			d.nodes[dep].revEdges = append(d.nodes[dep].revEdges, name)
		}
	}
	for _, node := range d.nodes {
		sort.Strings(node.revEdges)
	}

	order, err := d.topoSort()
	if err != nil {
		return nil, err
	}
	d.order = order

	for _, name := range order {
		r := 0
		for _, dep := range d.nodes[name].edges {
			if d.rank[dep]+1 > r {
				r = d.rank[dep] + 1
			}
		}
		d.rank[name] = r
	}

	return d, nil
}

// Order returns resources in dependency-respecting apply order. Independent
// resources are ordered by logical name.
func (d *DAG) Order() []string {
	return d.order
}

// ReverseOrder returns resources in reverse dependency order, safe for
// deletion.
func (d *DAG) ReverseOrder() []string {
	out := make([]string, len(d.order))
	for i, name := range d.order {
		out[len(d.order)-1-i] = name
	}
	return out
}

// Rank returns the dependency depth of a resource.
func (d *DAG) Rank(name string) int {
	return d.rank[name]
}

// Dependencies returns the resources that must exist before name.
func (d *DAG) Dependencies(name string) []string {
	if node, ok := d.nodes[name]; ok {
		return node.edges
	}
	return nil
}

// Dependents returns the resources that reference name.
func (d *DAG) Dependents(name string) []string {
	if node, ok := d.nodes[name]; ok {
		return node.revEdges
	}
	return nil
}

// topoSort runs Kahn's algorithm with a name-sorted frontier so the order is
// deterministic. A non-empty remainder means a cycle; the cycle members are
// extracted by DFS and reported.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for name, node := range d.nodes {
		inDegree[name] = len(node.edges)
	}

	var frontier []string
	for name, deg := range inDegree {
		if deg == 0 {
			frontier = append(frontier, name)
		}
	}
	sort.Strings(frontier)

	var sorted []string
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		sorted = append(sorted, name)

		changed := false
		for _, dependent := range d.nodes[name].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				frontier = append(frontier, dependent)
				changed = true
			}
		}
		if changed {
			sort.Strings(frontier)
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, &ir.CyclicDependencyError{Members: d.findCycle(inDegree)}
	}

	return sorted, nil
}

// findCycle walks the unsorted remainder until a node repeats, then returns
// the members of that cycle in walk order.
func (d *DAG) findCycle(inDegree map[string]int) []string {
	remaining := make(map[string]bool)
	var start string
	for name, deg := range inDegree {
		if deg > 0 {
			remaining[name] = true
			if start == "" || name < start {
				start = name
			}
		}
	}

	seen := make(map[string]int)
	var path []string
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			return path[at:]
		}
		seen[cur] = len(path)
		path = append(path, cur)

		next := ""
		for _, dep := range d.nodes[cur].edges {
			if remaining[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			// cur only depends on the cycle transitively; restart from a dep
			return path
		}
		cur = next
	}
}

// DOT renders the graph in Graphviz format.
func (d *DAG) DOT() string {
	var b strings.Builder
	b.WriteString("digraph resources {\n")
	for _, name := range d.order {
		fmt.Fprintf(&b, "  %q;\n", name)
		for _, dep := range d.nodes[name].edges {
			fmt.Fprintf(&b, "  %q -> %q;\n", dep, name)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func dedup(in []string) []string {
	out := in[:0]
	var last string
	for i, s := range in {
		if i == 0 || s != last {
			out = append(out, s)
		}
		last = s
	}
	return out
}
