package symbols

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"verimap/internal/rusttype"
)

// record is the working state of one raw definition while its atom is
// being decided.
type record struct {
	raw   RawIndexSymbol
	order int
	path  descriptorPath

	selfType string
	trait    string
	args     string
	sig      string
	context  []string
	ctxType  string
	sigTag   string
	lineTag  string

	atom  Atom
	stage string
}

func newRecord(raw RawIndexSymbol, order int) *record {
	r := &record{
		raw:      raw,
		order:    order,
		path:     parsePath(RawAtom(raw.Symbol)),
		sig:      rusttype.Normalize(raw.Signature),
		selfType: rusttype.Normalize(raw.SelfType),
		trait:    rusttype.Normalize(raw.Trait),
	}
	if r.selfType == "" {
		r.selfType = selfTypeFromSignature(raw.Signature)
	}
	if r.args = rusttype.GenericArgs(r.trait); r.args == "" {
		r.args = firstArgType(raw.Signature)
	}
	seen := make(map[string]bool)
	for _, c := range raw.Context {
		if c = rusttype.Normalize(c); c != "" && !seen[c] {
			seen[c] = true
			r.context = append(r.context, c)
		}
	}
	sort.Strings(r.context)
	return r
}

// render builds the identity form of the record's atom: the self type is
// spliced into the implementing-type segment (inserted when the indexer
// omitted it) and, when withArgs is set, the trait segment carries the
// trait's type arguments.
func (r *record) render(withArgs bool) string {
	p := r.path
	p.types = append([]string(nil), p.types...)
	traitAt := -1

	switch n := len(p.types); {
	case n >= 2:
		if r.selfType != "" {
			p.types[n-2] = r.selfType
		}
		traitAt = n - 1
	case n == 1:
		seg := p.types[0]
		segBase := rusttype.Base(seg)
		switch {
		case r.trait != "" && rusttype.Base(r.trait) == segBase:
			traitAt = 0
		case r.selfType != "" && rusttype.Base(r.selfType) == segBase:
			p.types[0] = r.selfType
		case r.selfType != "":
			traitAt = 0
		}
		if traitAt == 0 && r.selfType != "" {
			p.types = []string{r.selfType, seg}
			traitAt = 1
		}
	}

	if withArgs && traitAt >= 0 && r.args != "" && !strings.Contains(p.types[traitAt], "<") {
		p.types[traitAt] = p.types[traitAt] + "<" + r.args + ">"
	}
	return p.String()
}

// withContext inserts the `[Type]` context discriminator before the method
// segment.
func (r *record) withContext(atom string) string {
	if r.ctxType == "" {
		return atom
	}
	p := parsePath(atom)
	p.method = "[" + r.ctxType + "]" + p.method
	return p.String()
}

// withSignature replaces the empty argument list of the method segment with
// the signature tag.
func (r *record) withSignature(atom string) string {
	if r.sigTag == "" {
		return atom
	}
	p := parsePath(atom)
	p.method = strings.TrimSuffix(p.method, "()") + r.sigTag
	return p.String()
}

// discriminators are the types that set this definition apart from others
// sharing its raw symbol. Call sites carrying a type hint are matched
// against them.
func (r *record) discriminators() []string {
	var out []string
	add := func(s string) {
		if b := rusttype.Base(s); b != "" {
			out = append(out, b)
		}
	}
	add(r.selfType)
	for _, a := range rusttype.SplitTopLevel(r.args, ',') {
		add(a)
	}
	add(r.ctxType)
	return out
}

// discriminator is one rung of the disambiguation ladder. Key decides
// whether the rung separates a group; Render produces the atom the group
// receives when it does.
type discriminator interface {
	Name() string
	Prepare(group []*record)
	Key(r *record) string
	Render(r *record) string
}

type rawStage struct{}

func (rawStage) Name() string            { return "raw" }
func (rawStage) Prepare([]*record)       {}
func (rawStage) Key(r *record) string    { return r.raw.Symbol }
func (rawStage) Render(r *record) string { return r.path.String() }

// signatureStage separates definitions whose signatures differ. When the
// self type and trait arguments already tell the group apart the atom is
// left at that form; otherwise the method segment carries the parameter
// types, and the return type too when the parameters alone coincide.
type signatureStage struct{}

func (signatureStage) Name() string { return "signature" }

func (signatureStage) Prepare(group []*record) {
	for _, r := range group {
		r.sigTag = ""
	}
	if unique(group, func(r *record) string { return r.render(true) }) {
		return
	}
	for _, r := range group {
		r.sigTag = "(" + strings.Join(paramTypes(r.raw.Signature), ", ") + ")"
	}
	if unique(group, signatureStage{}.Render) {
		return
	}
	for _, r := range group {
		if ret := returnType(r.raw.Signature); ret != "" {
			r.sigTag += "->" + ret
		}
	}
}

func (signatureStage) Key(r *record) string    { return r.raw.Symbol + "|" + r.sig }
func (signatureStage) Render(r *record) string { return r.withSignature(r.render(true)) }

type selfTypeStage struct{}

func (selfTypeStage) Name() string            { return "self-type" }
func (selfTypeStage) Prepare([]*record)       {}
func (selfTypeStage) Key(r *record) string    { return r.render(false) }
func (selfTypeStage) Render(r *record) string { return r.render(true) }

type typeArgsStage struct{}

func (typeArgsStage) Name() string            { return "type-args" }
func (typeArgsStage) Prepare([]*record)       {}
func (typeArgsStage) Key(r *record) string    { return r.render(true) }
func (typeArgsStage) Render(r *record) string { return r.render(true) }

// contextStage picks, for each record, the smallest type in its definition
// context that is absent from at least one other record of the group.
type contextStage struct{}

func (contextStage) Name() string { return "context" }

func (contextStage) Prepare(group []*record) {
	common := make(map[string]int)
	for _, r := range group {
		for _, c := range r.context {
			common[c]++
		}
	}
	for _, r := range group {
		r.ctxType = ""
		for _, c := range r.context {
			if common[c] < len(group) {
				r.ctxType = c
				break
			}
		}
	}
}

func (contextStage) Key(r *record) string    { return r.render(true) + "|" + r.ctxType }
func (contextStage) Render(r *record) string { return r.withContext(r.render(true)) }

// lineStage appends `@<line>`. Records from different files that would
// still meet on the same line get `@<file>:<line>` instead.
type lineStage struct{}

func (lineStage) Name() string { return "line" }

func (lineStage) Prepare(group []*record) {
	files := make(map[string]map[string]bool)
	for _, r := range group {
		k := lineSuffixed(r.render(true), r.raw.Line)
		if files[k] == nil {
			files[k] = make(map[string]bool)
		}
		files[k][r.raw.File] = true
	}
	for _, r := range group {
		r.lineTag = strconv.Itoa(r.raw.Line)
		if len(files[lineSuffixed(r.render(true), r.raw.Line)]) > 1 {
			r.lineTag = r.raw.File + ":" + r.lineTag
		}
	}
}

func (lineStage) Key(r *record) string    { return r.raw.File + ":" + strconv.Itoa(r.raw.Line) }
func (lineStage) Render(r *record) string { return r.render(true) + "@" + r.lineTag }

func lineSuffixed(atom string, line int) string {
	return atom + "@" + strconv.Itoa(line)
}

// StageResult reports how many groups a ladder rung settled.
type StageResult struct {
	Stage   string
	Groups  int
	Records int
}

// Ladder applies discriminators in order to each group of records sharing
// a raw symbol, stopping at the first rung that yields unique keys and
// unique atoms.
type Ladder struct {
	stages []discriminator
}

// newLadder creates a ladder from the given rungs.
func newLadder(stages ...discriminator) *Ladder {
	return &Ladder{stages: stages}
}

// NewDefaultLadder returns raw symbol, signature, self type, trait type
// arguments, definition context and line number, in that order.
func NewDefaultLadder() *Ladder {
	return newLadder(rawStage{}, signatureStage{}, selfTypeStage{}, typeArgsStage{}, contextStage{}, lineStage{})
}

// settle assigns atoms to every record of the group. It returns the name of
// the rung used, or an error when the last rung still collides.
func (l *Ladder) settle(group []*record) (string, error) {
	for _, st := range l.stages {
		st.Prepare(group)
		if !unique(group, st.Key) || !unique(group, st.Render) {
			continue
		}
		for _, r := range group {
			r.atom = Atom(st.Render(r))
			r.stage = st.Name()
		}
		return st.Name(), nil
	}
	return "", collisionFromGroup(group)
}

func unique(group []*record, f func(*record) string) bool {
	seen := make(map[string]bool, len(group))
	for _, r := range group {
		k := f(r)
		if seen[k] {
			return false
		}
		seen[k] = true
	}
	return true
}

// run settles every group and tallies the rungs used.
func (l *Ladder) run(groups [][]*record) ([]StageResult, error) {
	counts := make(map[string]*StageResult)
	for _, g := range groups {
		name, err := l.settle(g)
		if err != nil {
			return nil, err
		}
		sr, ok := counts[name]
		if !ok {
			sr = &StageResult{Stage: name}
			counts[name] = sr
		}
		sr.Groups++
		sr.Records += len(g)
	}
	var out []StageResult
	for _, st := range l.stages {
		if sr, ok := counts[st.Name()]; ok {
			out = append(out, *sr)
		}
	}
	return out, nil
}

func collisionFromGroup(group []*record) *CollisionError {
	e := &CollisionError{}
	for _, r := range group {
		e.Entries = append(e.Entries, CollisionEntry{
			Atom: Atom(lineSuffixed(r.render(true), r.raw.Line)),
			File: r.raw.File,
			Line: r.raw.Line,
		})
	}
	return e
}

// CollisionEntry is one definition involved in a collision.
type CollisionEntry struct {
	Atom Atom
	File string
	Line int
}

// CollisionError reports definitions no discriminator could separate.
type CollisionError struct {
	Entries []CollisionEntry
}

func (e *CollisionError) Error() string {
	parts := make([]string, 0, len(e.Entries))
	for _, en := range e.Entries {
		parts = append(parts, fmt.Sprintf("%s (%s:%d)", en.Atom, en.File, en.Line))
	}
	return "unresolvable atom collision: " + strings.Join(parts, ", ")
}
