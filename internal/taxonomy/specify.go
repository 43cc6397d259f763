package taxonomy

import (
	"log/slog"
	"strconv"

	"verimap/internal/extractor"
	"verimap/internal/graph"
)

// SpecEntry is one function of the specs output: the source entity plus
// its taxonomy labels.
type SpecEntry struct {
	*extractor.FunctionEntity
	SpecLabels []string `json:"spec-labels,omitempty"`
}

// SpecifyOptions configures Specify.
type SpecifyOptions struct {
	// WithText keeps the requires and ensures clause text.
	WithText bool
	// Taxonomy labels the entries when set.
	Taxonomy *Taxonomy
	Logger   *slog.Logger
}

// SpecifyStats counts the outcome of Specify.
type SpecifyStats struct {
	Matched          int
	Unmatched        int
	Specified        int
	SpecifiedLabeled int
	Labeled          int
	// Conflicts counts entities that matched an atom already taken.
	Conflicts int
}

// Specify keys every entity that matches an atom by that atom. Entities
// are matched by file, display name and a start line inside the entity's
// span or within the matcher's tolerance. When two entities match the same
// atom the first in index order keeps it and the other is reported.
func Specify(idx *extractor.Index, m *graph.AtomMatcher, opts SpecifyOptions) (map[string]SpecEntry, SpecifyStats) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	out := make(map[string]SpecEntry)
	var st SpecifyStats
	for _, e := range idx.All {
		atom, ok := m.MatchSpan(e.File, e.Name, e.StartLine, e.EndLine)
		if !ok {
			st.Unmatched++
			continue
		}
		if prev, taken := out[atom]; taken {
			st.Conflicts++
			logger.Warn("atom already matched, entity dropped",
				"atom", atom,
				"kept", prev.File+":"+strconv.Itoa(prev.StartLine),
				"dropped", e.File+":"+strconv.Itoa(e.StartLine))
			continue
		}
		st.Matched++

		ent := *e
		if !opts.WithText {
			ent.RequiresText = ""
			ent.EnsuresText = ""
		}
		entry := SpecEntry{FunctionEntity: &ent}
		if opts.Taxonomy != nil {
			entry.SpecLabels = opts.Taxonomy.Classify(e)
		}
		if e.Specified() {
			st.Specified++
			if len(entry.SpecLabels) > 0 {
				st.SpecifiedLabeled++
			}
		}
		if len(entry.SpecLabels) > 0 {
			st.Labeled++
		}
		out[atom] = entry
	}
	return out, st
}
