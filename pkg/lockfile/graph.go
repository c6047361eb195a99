package lockfile

import (
	"errors"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when the ID exists.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [Graph.AddEdge] when From is missing.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [Graph.AddEdge] when To is missing.
	ErrUnknownTargetNode = errors.New("unknown target node")
)

// EdgeKind classifies a dependency edge.
type EdgeKind string

const (
	EdgeProd     EdgeKind = "prod"
	EdgeDev      EdgeKind = "dev"
	EdgePeer     EdgeKind = "peer"
	EdgeOptional EdgeKind = "optional"
)

// Node is one installed package instance. ID is its install path
// ("node_modules/a/node_modules/b"); the root project uses [ProjectRoot].
type Node struct {
	ID      string
	Name    string
	Version string
	Dev     bool
	Peer    bool
}

// Edge is a declared requirement from one installed package on another.
type Edge struct {
	From  string
	To    string
	Range string
	Kind  EdgeKind
}

// Graph is the installed dependency graph. Unlike a layered layout graph it
// may contain cycles, which npm permits.
//
// The zero value is not usable; use newGraph.
type Graph struct {
	nodes    map[string]*Node
	edges    []Edge
	outgoing map[string][]int
	incoming map[string][]int
	byName   map[string][]string
}

func newGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]int),
		incoming: make(map[string][]int),
		byName:   make(map[string][]string),
	}
}

// AddNode adds n. IDs must be unique.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, ok := g.nodes[n.ID]; ok {
		return ErrDuplicateNodeID
	}
	g.nodes[n.ID] = &n
	g.byName[n.Name] = append(g.byName[n.Name], n.ID)
	return nil
}

// AddEdge connects two existing nodes.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := g.nodes[e.To]; !ok {
		return ErrUnknownTargetNode
	}
	g.edges = append(g.edges, e)
	i := len(g.edges) - 1
	g.outgoing[e.From] = append(g.outgoing[e.From], i)
	g.incoming[e.To] = append(g.incoming[e.To], i)
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodesNamed returns every installed instance of a package, shallowest first.
func (g *Graph) NodesNamed(name string) []*Node {
	ids := slices.Clone(g.byName[name])
	slices.SortFunc(ids, func(a, b string) int { return len(a) - len(b) })
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out
}

// InEdges returns the edges pointing at id.
func (g *Graph) InEdges(id string) []Edge {
	out := make([]Edge, 0, len(g.incoming[id]))
	for _, i := range g.incoming[id] {
		out = append(out, g.edges[i])
	}
	return out
}

// OutEdges returns the edges leaving id.
func (g *Graph) OutEdges(id string) []Edge {
	out := make([]Edge, 0, len(g.outgoing[id]))
	for _, i := range g.outgoing[id] {
		out = append(out, g.edges[i])
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }
