package graph

import (
	"sort"
	"strings"

	"verimap/internal/locate"
)

// DefaultLineTolerance is how far apart a function's start line and its
// atom's start line may be. Doc comments and attributes are counted differently by the
// source indexer and the code-structure indexer.
const DefaultLineTolerance = 5

// AtomMatcher finds the atom for a function given its path, display name
// and start line.
type AtomMatcher struct {
	tolerance int
	byName    map[string][]atomRef
}

type atomRef struct {
	atom   string
	path   string
	suffix string
	line   int
}

// NewAtomMatcher indexes records by display name. A negative tolerance
// selects DefaultLineTolerance.
func NewAtomMatcher(records map[string]AtomRecord, tolerance int) *AtomMatcher {
	if tolerance < 0 {
		tolerance = DefaultLineTolerance
	}
	m := &AtomMatcher{tolerance: tolerance, byName: make(map[string][]atomRef)}
	for atom, rec := range records {
		m.byName[rec.DisplayName] = append(m.byName[rec.DisplayName], atomRef{
			atom:   atom,
			path:   rec.CodePath,
			suffix: srcSuffix(rec.CodePath),
			line:   rec.CodeText.LinesStart,
		})
	}
	for _, refs := range m.byName {
		sort.Slice(refs, func(i, j int) bool { return refs[i].atom < refs[j].atom })
	}
	return m
}

// Match returns the atom with the same display name in the same file whose
// start line is closest to line, within the tolerance. Ties go to the
// smallest atom.
func (m *AtomMatcher) Match(path, name string, line int) (string, bool) {
	return m.MatchSpan(path, name, line, line)
}

// MatchSpan is Match for a function spanning [start, end]: an atom whose
// line falls inside the span also matches, at its distance from start.
// The span form covers doc comments counted into the function by one
// indexer and not the other.
func (m *AtomMatcher) MatchSpan(path, name string, start, end int) (string, bool) {
	suffix := srcSuffix(path)
	best, bestDiff := "", -1
	for _, ref := range m.byName[name] {
		if !locate.SameFile(path, ref.path) && suffix != ref.suffix {
			continue
		}
		diff := start - ref.line
		if diff < 0 {
			diff = -diff
		}
		if diff > m.tolerance && (ref.line < start || ref.line > end) {
			continue
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = ref.atom, diff
		}
	}
	return best, best != ""
}

// srcSuffix returns the part of p starting at its last `src/` segment, or
// p itself.
func srcSuffix(p string) string {
	p = locate.Clean(p)
	if strings.HasPrefix(p, "src/") {
		return p
	}
	if i := strings.LastIndex(p, "/src/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

