package graph

import (
	"log/slog"
	"sort"

	"verimap/internal/extractor"
	"verimap/internal/locate"
	"verimap/internal/symbols"
)

// Options configures Build.
type Options struct {
	// WithLocations classifies every call as precondition, postcondition or
	// body using the caller's clause spans.
	WithLocations bool
	Logger        *slog.Logger
}

// Build joins the registry's definitions with source entities and adds
// one edge per call occurrence.
//
// A definition is matched to the tightest entity in the same file that
// has the same name and contains the definition line, else to the nearest
// same-name entity in that file. Unmatched definitions keep the raw line
// and are flagged approximate.
func Build(reg *symbols.Registry, idx *extractor.Index, opts Options) (*Graph, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	matcher := locate.NewPathMatcher(idx.Files())
	var nodes []*Node
	for _, d := range reg.Definitions() {
		n := &Node{
			Atom:        d.Atom,
			DisplayName: d.DisplayName,
			File:        d.File,
			Module:      extractor.ModulePathFromFile(d.File),
			StartLine:   d.Line,
			EndLine:     d.Line,
			Mode:        "exec",
			Approximate: true,
		}
		if file, _, ok := matcher.Match(d.File); ok {
			if e := matchEntity(idx.ByFile[file], d.DisplayName, d.Line); e != nil {
				n.Entity = e
				n.File = e.File
				n.Module = e.ModulePath
				n.StartLine = e.StartLine
				n.EndLine = e.EndLine
				n.Mode = e.Mode()
				n.Approximate = false
			}
		}
		if n.Approximate {
			logger.Debug("no source entity for definition", "atom", d.Atom, "file", d.File, "line", d.Line)
		}
		nodes = append(nodes, n)
	}
	if err := CheckDuplicates(nodes); err != nil {
		return nil, err
	}

	g := NewGraph()
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}

	for _, d := range reg.Definitions() {
		caller := g.Nodes[d.Atom]
		calls := append([]symbols.CallOccurrence(nil), d.Calls...)
		sort.SliceStable(calls, func(i, j int) bool {
			if calls[i].Line != calls[j].Line {
				return calls[i].Line < calls[j].Line
			}
			return calls[i].Column < calls[j].Column
		})
		for _, c := range calls {
			t := reg.Resolve(c, d.File)
			if t.Atom == d.Atom {
				continue
			}
			e := Edge{From: d.Atom, To: t.Atom, External: t.External, Line: c.Line}
			if opts.WithLocations {
				e.Location = classify(caller.Entity, c)
			}
			g.AddEdge(e)
		}
	}

	st := g.Stats()
	logger.Info("call graph built", "atoms", st.Nodes, "approximate", st.Approximate, "edges", st.Edges, "external", st.ExternalEdges)
	return g, nil
}

func classify(e *extractor.FunctionEntity, c symbols.CallOccurrence) Location {
	if e == nil {
		return LocationBody
	}
	switch e.Clause(extractor.Position{Line: c.Line, Column: c.Column}) {
	case "requires":
		return LocationPrecondition
	case "ensures":
		return LocationPostcondition
	}
	return LocationBody
}

// matchEntity picks the same-name entity that most tightly contains line,
// or failing that the one whose span is closest to it.
func matchEntity(entities []*extractor.FunctionEntity, name string, line int) *extractor.FunctionEntity {
	var best *extractor.FunctionEntity
	for _, e := range entities {
		if e.Name != name || !e.Contains(line) {
			continue
		}
		if best == nil || e.EndLine-e.StartLine < best.EndLine-best.StartLine {
			best = e
		}
	}
	if best != nil {
		return best
	}

	bestDist := 0
	for _, e := range entities {
		if e.Name != name {
			continue
		}
		d := e.StartLine - line
		if line > e.EndLine {
			d = line - e.EndLine
		}
		if best == nil || d < bestDist {
			best, bestDist = e, d
		}
	}
	return best
}
