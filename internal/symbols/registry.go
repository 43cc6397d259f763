package symbols

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"verimap/internal/rusttype"
)

// Definition is the per-atom metadata kept after disambiguation.
type Definition struct {
	Atom        Atom
	Symbol      string
	DisplayName string
	Kind        int32
	File        string
	Line        int
	Signature   string
	SelfType    string
	Trait       string
	// Stage names the ladder rung that settled the definition's atom.
	Stage string
	// Discriminators are the bare type names that tell this definition
	// apart from others sharing its raw symbol.
	Discriminators []string
	Calls          []CallOccurrence
}

// Target is the result of resolving a call occurrence.
type Target struct {
	Atom     Atom
	External bool
}

// Options configures NewRegistry.
type Options struct {
	Ladder *Ladder
	Logger *slog.Logger
}

// Registry maps raw indexer symbols onto unique atoms. It is read-only once
// built.
type Registry struct {
	defs     []*Definition
	byAtom   map[Atom]*Definition
	bySymbol map[string][]*Definition
	stats    []StageResult
}

// NewRegistry groups records by raw symbol, disambiguates every group and
// only then inserts the results. A collision no rung can separate is
// returned as *CollisionError; nothing is ever overwritten.
func NewRegistry(raws []RawIndexSymbol, opts Options) (*Registry, error) {
	ladder := opts.Ladder
	if ladder == nil {
		ladder = NewDefaultLadder()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	kept := make([]RawIndexSymbol, 0, len(raws))
	for _, r := range raws {
		if r.Symbol == "" || IsLocal(r.Symbol) {
			continue
		}
		kept = append(kept, r)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Symbol < b.Symbol
	})

	records := make([]*record, len(kept))
	groups := make(map[string][]*record)
	var symbols []string
	for i, raw := range kept {
		r := newRecord(raw, i)
		records[i] = r
		if _, ok := groups[raw.Symbol]; !ok {
			symbols = append(symbols, raw.Symbol)
		}
		groups[raw.Symbol] = append(groups[raw.Symbol], r)
	}
	sort.Strings(symbols)

	ordered := make([][]*record, 0, len(symbols))
	for _, s := range symbols {
		ordered = append(ordered, groups[s])
	}
	stats, err := ladder.run(ordered)
	if err != nil {
		return nil, err
	}
	for _, st := range stats {
		if st.Stage != "raw" {
			logger.Debug("disambiguated symbol groups", "stage", st.Stage, "groups", st.Groups, "definitions", st.Records)
		}
	}

	if err := separateAcrossGroups(records, logger); err != nil {
		return nil, err
	}

	reg := &Registry{
		byAtom:   make(map[Atom]*Definition, len(records)),
		bySymbol: make(map[string][]*Definition),
		stats:    stats,
	}
	for _, r := range records {
		d := &Definition{
			Atom:           r.atom,
			Symbol:         r.raw.Symbol,
			DisplayName:    r.raw.DisplayName,
			Kind:           r.raw.Kind,
			File:           r.raw.File,
			Line:           r.raw.Line,
			Signature:      r.sig,
			SelfType:       r.selfType,
			Trait:          r.trait,
			Stage:          r.stage,
			Discriminators: r.discriminators(),
			Calls:          r.raw.Calls,
		}
		if d.DisplayName == "" {
			d.DisplayName = methodName(r.path.method)
		}
		reg.defs = append(reg.defs, d)
		reg.byAtom[d.Atom] = d
		reg.bySymbol[d.Symbol] = append(reg.bySymbol[d.Symbol], d)
	}
	sort.Slice(reg.defs, func(i, j int) bool { return reg.defs[i].Atom < reg.defs[j].Atom })
	return reg, nil
}

// separateAcrossGroups handles distinct raw symbols that settled on the
// same atom: each collider gets its line number appended, or its file and
// line when another collider sits on the same line of a different file.
// Anything still colliding is fatal.
func separateAcrossGroups(records []*record, logger *slog.Logger) error {
	byAtom := make(map[Atom][]*record)
	for _, r := range records {
		byAtom[r.atom] = append(byAtom[r.atom], r)
	}
	var atoms []string
	for a, rs := range byAtom {
		if len(rs) > 1 {
			atoms = append(atoms, string(a))
		}
	}
	if len(atoms) == 0 {
		return nil
	}
	sort.Strings(atoms)
	for _, a := range atoms {
		rs := byAtom[Atom(a)]
		logger.Warn("atom shared by distinct symbols, appending line numbers", "atom", a, "definitions", len(rs))
		files := make(map[int]map[string]bool)
		for _, r := range rs {
			if files[r.raw.Line] == nil {
				files[r.raw.Line] = make(map[string]bool)
			}
			files[r.raw.Line][r.raw.File] = true
		}
		for _, r := range rs {
			if r.stage == "line" {
				continue
			}
			tag := strconv.Itoa(r.raw.Line)
			if len(files[r.raw.Line]) > 1 {
				tag = r.raw.File + ":" + tag
			}
			r.atom = Atom(a + "@" + tag)
			r.stage = "line"
		}
	}

	final := make(map[Atom][]*record)
	for _, r := range records {
		final[r.atom] = append(final[r.atom], r)
	}
	var residual []*record
	for _, r := range records {
		if len(final[r.atom]) > 1 {
			residual = append(residual, r)
		}
	}
	if len(residual) == 0 {
		return nil
	}
	e := &CollisionError{}
	for _, r := range residual {
		e.Entries = append(e.Entries, CollisionEntry{Atom: r.atom, File: r.raw.File, Line: r.raw.Line})
	}
	return e
}

func methodName(method string) string {
	if i := strings.IndexByte(method, '('); i >= 0 {
		method = method[:i]
	}
	if i := strings.LastIndexByte(method, ']'); i >= 0 {
		method = method[i+1:]
	}
	return strings.Trim(method, "`")
}

// Definitions returns all definitions sorted by atom.
func (reg *Registry) Definitions() []*Definition {
	return reg.defs
}

// Atoms returns all atoms in sorted order.
func (reg *Registry) Atoms() []Atom {
	out := make([]Atom, len(reg.defs))
	for i, d := range reg.defs {
		out[i] = d.Atom
	}
	return out
}

// Lookup returns the definition behind an atom.
func (reg *Registry) Lookup(a Atom) (*Definition, bool) {
	d, ok := reg.byAtom[a]
	return d, ok
}

// Stats reports how many symbol groups each ladder rung settled.
func (reg *Registry) Stats() []StageResult {
	return reg.stats
}

// Resolve maps a call occurrence made from callerFile onto an atom. A
// symbol with no definition in the index is an external reference.
//
// With several candidates, a call carrying a type hint goes to the unique
// candidate whose discriminating types include the hint. Otherwise the
// candidate declared nearest before the call in the same file wins, and
// failing that the first in declaration order.
func (reg *Registry) Resolve(call CallOccurrence, callerFile string) Target {
	cands := reg.bySymbol[call.Symbol]
	switch len(cands) {
	case 0:
		return Target{Atom: Atom(RawAtom(call.Symbol)), External: true}
	case 1:
		return Target{Atom: cands[0].Atom}
	}

	if hint := rusttype.Base(call.TypeHint); hint != "" {
		var match *Definition
		n := 0
		for _, c := range cands {
			for _, d := range c.Discriminators {
				if d == hint {
					match = c
					n++
					break
				}
			}
		}
		if n == 1 {
			return Target{Atom: match.Atom}
		}
	}

	var nearest *Definition
	for _, c := range cands {
		if c.File != callerFile || c.Line > call.Line {
			continue
		}
		if nearest == nil || c.Line > nearest.Line {
			nearest = c
		}
	}
	if nearest != nil {
		return Target{Atom: nearest.Atom}
	}
	return Target{Atom: cands[0].Atom}
}
