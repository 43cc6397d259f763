// Package analysis maps source changes onto the atoms of a call graph.
package analysis

import (
	"sort"

	"verimap/internal/graph"
	"verimap/internal/locate"
)

// ImpactedAtom is one atom reached by the analysis. Depth is 0 for atoms
// whose span a change touches and the caller distance otherwise; Via is
// the callee through which a caller was reached.
type ImpactedAtom struct {
	Atom     string `json:"atom"`
	CodePath string `json:"code-path"`
	Lines    []int  `json:"lines,omitempty"`
	Depth    int    `json:"depth"`
	Via      string `json:"via,omitempty"`
}

// ImpactReport summarizes the atoms affected by changes.
type ImpactReport struct {
	DirectlyAffected   []ImpactedAtom `json:"directly-affected"`
	IndirectlyAffected []ImpactedAtom `json:"indirectly-affected"`
}

// Analyzer performs impact analysis over an atoms map.
type Analyzer struct {
	records map[string]graph.AtomRecord
	rev     map[string][]string
	// MaxDepth bounds the caller walk; 0 means unbounded.
	MaxDepth int
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(records map[string]graph.AtomRecord) *Analyzer {
	return &Analyzer{records: records, rev: graph.ReverseDependencies(records)}
}

// AnalyzeImpact finds the atoms whose span contains a changed line, then
// walks their callers breadth-first. Both lists are sorted by atom.
func (a *Analyzer) AnalyzeImpact(changes []ChangedFile) *ImpactReport {
	report := &ImpactReport{
		DirectlyAffected:   []ImpactedAtom{},
		IndirectlyAffected: []ImpactedAtom{},
	}

	keys := make([]string, 0, len(a.records))
	for k := range a.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	for _, k := range keys {
		rec := a.records[k]
		var hit []int
		for _, c := range changes {
			if !locate.SameFile(c.Path, rec.CodePath) {
				continue
			}
			if c.Deleted {
				hit = append(hit, rec.CodeText.LinesStart)
				continue
			}
			hit = append(hit, overlap(rec.CodeText, c.Lines)...)
		}
		if len(hit) == 0 {
			continue
		}
		sort.Ints(hit)
		seen[k] = true
		report.DirectlyAffected = append(report.DirectlyAffected, ImpactedAtom{
			Atom:     k,
			CodePath: rec.CodePath,
			Lines:    hit,
		})
	}

	frontier := make([]string, 0, len(report.DirectlyAffected))
	for _, d := range report.DirectlyAffected {
		frontier = append(frontier, d.Atom)
	}
	for depth := 1; len(frontier) > 0 && (a.MaxDepth == 0 || depth <= a.MaxDepth); depth++ {
		var next []string
		for _, callee := range frontier {
			for _, caller := range a.rev[callee] {
				if seen[caller] {
					continue
				}
				seen[caller] = true
				next = append(next, caller)
				report.IndirectlyAffected = append(report.IndirectlyAffected, ImpactedAtom{
					Atom:     caller,
					CodePath: a.records[caller].CodePath,
					Depth:    depth,
					Via:      callee,
				})
			}
		}
		sort.Strings(next)
		frontier = next
	}
	sort.SliceStable(report.IndirectlyAffected, func(i, j int) bool {
		return report.IndirectlyAffected[i].Atom < report.IndirectlyAffected[j].Atom
	})
	return report
}

func overlap(span graph.CodeText, lines []int) []int {
	var out []int
	for _, l := range lines {
		if l >= span.LinesStart && l <= span.LinesEnd {
			out = append(out, l)
		}
	}
	return out
}
