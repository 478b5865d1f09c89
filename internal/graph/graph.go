// Package graph resolves the requirement graph of a set of root recipes and
// propagates option values across it.
package graph

import (
	"fmt"
	"slices"
	"sync"

	"github.com/goplus/kiln/internal/options"
	"github.com/goplus/kiln/recipe"
)

// Status is the build state of a node.
type Status int

const (
	Unresolved Status = iota
	Built
	Failed
)

func (s Status) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Built:
		return "built"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Node is one package identity of the graph.
type Node struct {
	Ref    recipe.Ref
	Recipe *recipe.Definition

	// Settings holds the context settings for the axes the recipe declares.
	Settings map[string]string
	// Options are the final option values once propagation has run.
	Options recipe.Options

	// SelfOptions and Overrides are the results of the configure hook.
	SelfOptions []recipe.Override
	Overrides   []recipe.Override

	Edges      []*Edge
	Dependents []*Node

	PackageID string

	// Index is the position of the node in topological order.
	Index int

	mu     sync.Mutex
	status Status
}

// NewNode creates an unresolved node for def.
func NewNode(def *recipe.Definition, settings map[string]string) *Node {
	snap := make(map[string]string, len(def.Settings))
	for _, axis := range def.Settings {
		if v, ok := settings[axis]; ok {
			snap[axis] = v
		}
	}
	return &Node{
		Ref:      def.Ref,
		Recipe:   def,
		Settings: snap,
		Options:  def.Defaults(),
		Index:    -1,
	}
}

func (n *Node) String() string {
	return n.Ref.String()
}

// Status returns the current status of n.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Finish moves n from unresolved to s. It reports false if n already left
// the unresolved state.
func (n *Node) Finish(s Status) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status != Unresolved {
		return false
	}
	n.status = s
	return true
}

// Deps returns the direct dependencies of n in declaration order.
func (n *Node) Deps() []*Node {
	deps := make([]*Node, 0, len(n.Edges))
	for _, e := range n.Edges {
		if !slices.Contains(deps, e.To) {
			deps = append(deps, e.To)
		}
	}
	return deps
}

// Edge is a requirement from a consumer node to a dependency node.
type Edge struct {
	From    *Node
	To      *Node
	Kind    recipe.Kind
	Options recipe.Options
}

// Graph is a resolved, acyclic requirement graph.
type Graph struct {
	// Nodes are in topological order, dependencies first.
	Nodes    []*Node
	Roots    []*Node
	Settings map[string]string
	Table    *options.Table

	byRef map[recipe.Ref]*Node
}

// New creates an empty graph for the given context settings.
func New(settings map[string]string) *Graph {
	return &Graph{
		Settings: settings,
		Table:    new(options.Table),
		byRef:    make(map[recipe.Ref]*Node),
	}
}

// Add appends n after every node already in g. Nodes must be added
// dependencies first.
func (g *Graph) Add(n *Node) error {
	if _, ok := g.byRef[n.Ref]; ok {
		return fmt.Errorf("graph: duplicate node %s", n.Ref)
	}
	n.Index = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	g.byRef[n.Ref] = n
	return nil
}

// Connect records a requirement edge from consumer to dep.
func (g *Graph) Connect(from, to *Node, kind recipe.Kind, opts recipe.Options) *Edge {
	e := &Edge{From: from, To: to, Kind: kind, Options: opts}
	from.Edges = append(from.Edges, e)
	if !slices.Contains(to.Dependents, from) {
		to.Dependents = append(to.Dependents, from)
	}
	return e
}

// Node returns the node of ref, or nil.
func (g *Graph) Node(ref recipe.Ref) *Node {
	return g.byRef[ref]
}

// Order returns the nodes in topological order.
func (g *Graph) Order() []*Node {
	return slices.Clone(g.Nodes)
}

// Edges returns every edge, grouped by consumer in topological order.
func (g *Graph) Edges() []*Edge {
	var edges []*Edge
	for _, n := range g.Nodes {
		edges = append(edges, n.Edges...)
	}
	return edges
}

// RuntimeDeps returns the transitive runtime dependencies of n in
// topological order. Tool requirements and everything reached only through
// them are excluded.
func (g *Graph) RuntimeDeps(n *Node) []*Node {
	seen := make(map[*Node]bool)
	var walk func(*Node)
	walk = func(n *Node) {
		for _, e := range n.Edges {
			if e.Kind != recipe.Runtime || seen[e.To] {
				continue
			}
			seen[e.To] = true
			walk(e.To)
		}
	}
	walk(n)
	return sortByIndex(seen)
}

// ToolDeps returns the direct tool requirements of n.
func (g *Graph) ToolDeps(n *Node) []*Node {
	var deps []*Node
	for _, e := range n.Edges {
		if e.Kind == recipe.Tool && !slices.Contains(deps, e.To) {
			deps = append(deps, e.To)
		}
	}
	return deps
}

// Dependents returns every node that transitively depends on n.
func (g *Graph) Dependents(n *Node) []*Node {
	seen := make(map[*Node]bool)
	var walk func(*Node)
	walk = func(n *Node) {
		for _, d := range n.Dependents {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(n)
	return sortByIndex(seen)
}

func sortByIndex(set map[*Node]bool) []*Node {
	nodes := make([]*Node, 0, len(set))
	for n := range set {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *Node) int {
		return a.Index - b.Index
	})
	return nodes
}
