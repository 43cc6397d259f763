package graph

import (
	"fmt"
	"sort"
	"strings"

	"verimap/internal/symbols"
)

// Graph holds the call graph between atoms. Nodes are keyed by atom; a
// second node for an existing atom is rejected.
type Graph struct {
	Nodes map[symbols.Atom]*Node
	Edges []Edge

	out map[symbols.Atom][]int
	in  map[symbols.Atom][]int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[symbols.Atom]*Node),
		out:   make(map[symbols.Atom][]int),
		in:    make(map[symbols.Atom][]int),
	}
}

// DuplicateEntry is one node involved in a duplicate atom.
type DuplicateEntry struct {
	Atom symbols.Atom
	File string
	Line int
}

// DuplicateAtomsError reports atoms emitted more than once.
type DuplicateAtomsError struct {
	Entries []DuplicateEntry
}

func (e *DuplicateAtomsError) Error() string {
	parts := make([]string, 0, len(e.Entries))
	for _, en := range e.Entries {
		parts = append(parts, fmt.Sprintf("%s (%s:%d)", en.Atom, en.File, en.Line))
	}
	return "duplicate atoms: " + strings.Join(parts, ", ")
}

// CheckDuplicates returns a *DuplicateAtomsError listing every node whose
// atom is shared with another node.
func CheckDuplicates(nodes []*Node) error {
	count := make(map[symbols.Atom]int, len(nodes))
	for _, n := range nodes {
		count[n.Atom]++
	}
	var dup []DuplicateEntry
	for _, n := range nodes {
		if count[n.Atom] > 1 {
			dup = append(dup, DuplicateEntry{Atom: n.Atom, File: n.File, Line: n.StartLine})
		}
	}
	if len(dup) == 0 {
		return nil
	}
	sort.Slice(dup, func(i, j int) bool {
		if dup[i].Atom != dup[j].Atom {
			return dup[i].Atom < dup[j].Atom
		}
		return dup[i].Line < dup[j].Line
	})
	return &DuplicateAtomsError{Entries: dup}
}

// AddNode inserts n, rejecting an atom that is already present.
func (g *Graph) AddNode(n *Node) error {
	if prev, ok := g.Nodes[n.Atom]; ok {
		return &DuplicateAtomsError{Entries: []DuplicateEntry{
			{Atom: prev.Atom, File: prev.File, Line: prev.StartLine},
			{Atom: n.Atom, File: n.File, Line: n.StartLine},
		}}
	}
	g.Nodes[n.Atom] = n
	return nil
}

// AddEdge records a call. Both ends are indexed for lookups.
func (g *Graph) AddEdge(e Edge) {
	g.Edges = append(g.Edges, e)
	i := len(g.Edges) - 1
	g.out[e.From] = append(g.out[e.From], i)
	if !e.External {
		g.in[e.To] = append(g.in[e.To], i)
	}
}

// Atoms returns the node atoms in sorted order.
func (g *Graph) Atoms() []symbols.Atom {
	out := make([]symbols.Atom, 0, len(g.Nodes))
	for a := range g.Nodes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetDependencies returns the sorted, de-duplicated callees of a.
func (g *Graph) GetDependencies(a symbols.Atom) []symbols.Atom {
	seen := make(map[symbols.Atom]bool)
	var deps []symbols.Atom
	for _, i := range g.out[a] {
		to := g.Edges[i].To
		if !seen[to] {
			seen[to] = true
			deps = append(deps, to)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}

// GetDependents returns the sorted, de-duplicated internal callers of a.
func (g *Graph) GetDependents(a symbols.Atom) []symbols.Atom {
	seen := make(map[symbols.Atom]bool)
	var deps []symbols.Atom
	for _, i := range g.in[a] {
		from := g.Edges[i].From
		if !seen[from] {
			seen[from] = true
			deps = append(deps, from)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
	return deps
}

// CallsFrom returns the edges leaving a in insertion order.
func (g *Graph) CallsFrom(a symbols.Atom) []Edge {
	out := make([]Edge, 0, len(g.out[a]))
	for _, i := range g.out[a] {
		out = append(out, g.Edges[i])
	}
	return out
}

// Stats counts nodes and edges.
func (g *Graph) Stats() Stats {
	s := Stats{Nodes: len(g.Nodes), Edges: len(g.Edges), ByLocation: make(map[Location]int)}
	for _, n := range g.Nodes {
		if n.Approximate {
			s.Approximate++
		}
	}
	for _, e := range g.Edges {
		if e.External {
			s.ExternalEdges++
		}
		if e.Location != "" {
			s.ByLocation[e.Location]++
		}
	}
	return s
}
