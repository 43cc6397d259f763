package scip

import (
	"sort"
	"strings"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"

	"verimap/internal/symbols"
)

const (
	// DefaultTypeContextLines is how many lines above a definition are
	// searched for type references.
	DefaultTypeContextLines = 5
	// DefaultTypeHintGap is the largest column gap between a call and an
	// adjacent type reference that still counts as an explicit type hint.
	DefaultTypeHintGap = 3
)

// SymbolInformation kinds treated as function-like: Function, Method and
// the rust-analyzer specific associated/trait method kinds.
var functionKinds = map[int32]bool{6: true, 17: true, 26: true, 80: true}

// Options tunes the conversion.
type Options struct {
	TypeContextLines int
	TypeHintGap      int
}

func (o Options) withDefaults() Options {
	if o.TypeContextLines <= 0 {
		o.TypeContextLines = DefaultTypeContextLines
	}
	if o.TypeHintGap <= 0 {
		o.TypeHintGap = DefaultTypeHintGap
	}
	return o
}

type span struct {
	startLine, startCol int
	endLine, endCol     int
}

// parseRange decodes the 3- or 4-element SCIP range encoding.
func parseRange(r []int32) (span, bool) {
	switch len(r) {
	case 3:
		return span{int(r[0]), int(r[1]), int(r[0]), int(r[2])}, true
	case 4:
		return span{int(r[0]), int(r[1]), int(r[2]), int(r[3])}, true
	}
	return span{}, false
}

func (s span) before(line, col int) bool {
	return s.startLine < line || (s.startLine == line && s.startCol <= col)
}

func (s span) contains(line, col int) bool {
	if !s.before(line, col) {
		return false
	}
	return line < s.endLine || (line == s.endLine && col < s.endCol)
}

type typeRef struct {
	line, startCol, endCol int
	name                   string
}

type occurrence struct {
	occ *scippb.Occurrence
	pos span
}

type openDef struct {
	rec       *symbols.RawIndexSymbol
	enclosing span
}

func isDefinition(occ *scippb.Occurrence) bool {
	return occ.SymbolRoles&int32(scippb.SymbolRole_Definition) != 0
}

// isMethodDescriptor reports whether a symbol ends in a method descriptor
// such as `mul().`.
func isMethodDescriptor(symbol string) bool {
	return strings.HasSuffix(strings.TrimSuffix(symbol, "."), ")")
}

func isTypeDescriptor(symbol string) bool {
	return strings.HasSuffix(symbol, "#") && !symbols.IsLocal(symbol)
}

// typeName extracts the last descriptor name of a type symbol.
func typeName(symbol string) string {
	s := strings.TrimSuffix(symbol, "#")
	if i := strings.LastIndexAny(s, "/# "); i >= 0 {
		s = s[i+1:]
	}
	return strings.Trim(s, "`")
}

// Convert flattens a SCIP index into one RawIndexSymbol per function
// definition occurrence. Calls inside a definition are attributed through
// the definition's enclosing range when the indexer provides one, and to
// the closest preceding definition otherwise.
func Convert(idx *scippb.Index, opts Options) []symbols.RawIndexSymbol {
	opts = opts.withDefaults()

	docs := append([]*scippb.Document(nil), idx.Documents...)
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].RelativePath < docs[j].RelativePath })

	functions := make(map[string]bool)
	global := make(map[string]*scippb.SymbolInformation)
	for _, doc := range docs {
		for _, info := range doc.Symbols {
			if functionKinds[int32(info.Kind)] || (info.Kind == 0 && isMethodDescriptor(info.Symbol)) {
				functions[info.Symbol] = true
				if _, ok := global[info.Symbol]; !ok {
					global[info.Symbol] = info
				}
			}
		}
	}
	isFunction := func(sym string) bool {
		return functions[sym] || (!symbols.IsLocal(sym) && isMethodDescriptor(sym))
	}

	var out []symbols.RawIndexSymbol
	for _, doc := range docs {
		out = append(out, convertDocument(doc, isFunction, global, opts)...)
	}
	return out
}

func convertDocument(doc *scippb.Document, isFunction func(string) bool, global map[string]*scippb.SymbolInformation, opts Options) []symbols.RawIndexSymbol {
	file := strings.TrimPrefix(doc.RelativePath, "/")

	local := make(map[string][]*scippb.SymbolInformation)
	for _, info := range doc.Symbols {
		local[info.Symbol] = append(local[info.Symbol], info)
	}
	consumed := make(map[string]int)
	infoFor := func(sym string) *scippb.SymbolInformation {
		list := local[sym]
		if len(list) == 0 {
			return global[sym]
		}
		i := consumed[sym]
		consumed[sym]++
		if i >= len(list) {
			i = len(list) - 1
		}
		return list[i]
	}

	var occs []occurrence
	var types []typeRef
	for _, o := range doc.Occurrences {
		pos, ok := parseRange(o.Range)
		if !ok || o.Symbol == "" {
			continue
		}
		occs = append(occs, occurrence{occ: o, pos: pos})
		if isTypeDescriptor(o.Symbol) {
			types = append(types, typeRef{line: pos.startLine, startCol: pos.startCol, endCol: pos.endCol, name: typeName(o.Symbol)})
		}
	}
	sort.SliceStable(occs, func(i, j int) bool {
		a, b := occs[i].pos, occs[j].pos
		if a.startLine != b.startLine {
			return a.startLine < b.startLine
		}
		return a.startCol < b.startCol
	})

	var recs []*symbols.RawIndexSymbol
	var stack []openDef
	var last *symbols.RawIndexSymbol
	for _, o := range occs {
		line, col := o.pos.startLine, o.pos.startCol
		for len(stack) > 0 && !stack[len(stack)-1].enclosing.contains(line, col) {
			stack = stack[:len(stack)-1]
		}

		if isDefinition(o.occ) {
			if !isFunction(o.occ.Symbol) {
				continue
			}
			rec := &symbols.RawIndexSymbol{
				Symbol:  o.occ.Symbol,
				File:    file,
				Line:    line + 1,
				Context: typeContext(types, line, opts.TypeContextLines),
			}
			if info := infoFor(o.occ.Symbol); info != nil {
				rec.DisplayName = info.DisplayName
				rec.Kind = int32(info.Kind)
				rec.Signature = info.GetSignatureDocumentation().GetText()
			}
			recs = append(recs, rec)
			last = rec
			if enc, ok := parseRange(o.occ.EnclosingRange); ok {
				stack = append(stack, openDef{rec: rec, enclosing: enc})
			}
			continue
		}

		if !isFunction(o.occ.Symbol) {
			continue
		}
		caller := last
		if len(stack) > 0 {
			caller = stack[len(stack)-1].rec
		}
		if caller == nil {
			continue
		}
		caller.Calls = append(caller.Calls, symbols.CallOccurrence{
			Symbol:   o.occ.Symbol,
			Line:     line + 1,
			Column:   col,
			TypeHint: typeHint(types, o.pos, opts.TypeHintGap),
		})
	}

	out := make([]symbols.RawIndexSymbol, len(recs))
	for i, r := range recs {
		out[i] = *r
	}
	return out
}

// typeContext collects the type names referenced on the definition line and
// the n lines above it.
func typeContext(types []typeRef, line, n int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range types {
		if t.line < line-n || t.line > line || t.name == "" || seen[t.name] {
			continue
		}
		seen[t.name] = true
		out = append(out, t.name)
	}
	sort.Strings(out)
	return out
}

// typeHint returns the type referenced right before (`Scalar::from`) or
// right after (`from::<Scalar>`) a call on the same line.
func typeHint(types []typeRef, call span, gap int) string {
	best, bestGap := "", gap+1
	for _, t := range types {
		if t.line != call.startLine {
			continue
		}
		if t.endCol <= call.startCol && call.startCol-t.endCol < bestGap {
			best, bestGap = t.name, call.startCol-t.endCol
		}
	}
	if best != "" {
		return best
	}
	for _, t := range types {
		if t.line != call.startLine {
			continue
		}
		if t.startCol >= call.endCol && t.startCol-call.endCol < bestGap {
			best, bestGap = t.name, t.startCol-call.endCol
		}
	}
	return best
}
