package extractor

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"verimap/internal/rusttype"
)

// Macro bodies arrive from the syntax tree as flat token trees. The code
// below recognizes dialect items (spec/proof/exec functions, impls, traits,
// inline modules) directly on that token stream.

type tokKind int

const (
	tokAtom tokKind = iota
	tokGroup
	tokDoc
	tokComment
)

type token struct {
	kind tokKind
	// text is the token text; for groups it is the opening delimiter.
	text string
	node *sitter.Node
}

func (t token) is(s string) bool       { return t.kind == tokAtom && t.text == s }
func (t token) isGroup(d string) bool  { return t.kind == tokGroup && t.text == d }
func (t token) isSemi() bool           { return t.kind == tokAtom && strings.HasSuffix(t.text, ";") }
func (t token) significant() bool      { return t.kind == tokAtom || t.kind == tokGroup }
func (t token) startPos() Position     { return position(t.node.StartPoint()) }
func (t token) endPos() Position       { return position(t.node.EndPoint()) }
func position(p sitter.Point) Position { return Position{Line: int(p.Row) + 1, Column: int(p.Column)} }

var fnModifiers = map[string]bool{
	"open":      true,
	"closed":    true,
	"tracked":   true,
	"ghost":     true,
	"broadcast": true,
	"default":   true,
	"async":     true,
	"unsafe":    true,
	"uninterp":  true,
}

var clauseKeywords = map[string]bool{
	"requires":         true,
	"ensures":          true,
	"recommends":       true,
	"decreases":        true,
	"returns":          true,
	"opens_invariants": true,
	"no_unwind":        true,
	"via":              true,
	"when":             true,
	"default_ensures":  true,
}

// callKeywords look like calls when followed by a parenthesized group.
var callKeywords = map[string]bool{
	"if": true, "match": true, "while": true, "for": true, "return": true,
	"in": true, "as": true, "let": true, "fn": true,
}

func (w *walker) tokens(tt *sitter.Node) []token {
	n := int(tt.ChildCount())
	toks := make([]token, 0, n)
	for i := 0; i < n; i++ {
		c := tt.Child(i)
		typ := c.Type()
		if (i == 0 || i == n-1) && !c.IsNamed() && isDelimiter(typ) {
			continue
		}
		switch typ {
		case "token_tree":
			toks = append(toks, token{kind: tokGroup, text: string(w.src[c.StartByte()]), node: c})
		case "line_comment", "block_comment":
			k := tokComment
			if isDocComment(w.text(c)) {
				k = tokDoc
			}
			toks = append(toks, token{kind: k, text: w.text(c), node: c})
		default:
			toks = append(toks, token{kind: tokAtom, text: w.text(c), node: c})
		}
	}
	return toks
}

func isDelimiter(typ string) bool {
	switch typ {
	case "(", ")", "[", "]", "{", "}":
		return true
	}
	return false
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)[0]
	return r == '_' || unicode.IsLetter(r)
}

// span returns the source text covered by toks.
func (w *walker) span(toks []token) string {
	if len(toks) == 0 {
		return ""
	}
	return string(w.src[toks[0].node.StartByte():toks[len(toks)-1].node.EndByte()])
}

// angleDelta counts generic brackets opened minus closed by a punctuation
// token, ignoring the arrows -> and =>.
func angleDelta(text string) int {
	d := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '<':
			d++
		case '>':
			if i > 0 && (text[i-1] == '-' || text[i-1] == '=') {
				continue
			}
			d--
		}
	}
	return d
}

// skipAngles returns the index just past the generic argument list that
// opens at toks[i].
func skipAngles(toks []token, i int) int {
	depth := 0
	for k := i; k < len(toks); k++ {
		if toks[k].kind != tokAtom {
			continue
		}
		depth += angleDelta(toks[k].text)
		if depth <= 0 {
			return k + 1
		}
	}
	return len(toks)
}

func nextSignificant(toks []token, i int) int {
	for k := i; k < len(toks); k++ {
		if toks[k].significant() {
			return k
		}
	}
	return -1
}

// skipItem advances past an item the indexer does not model: up to the
// next `;` or through the first brace group.
func skipItem(toks []token, i int) int {
	for k := i; k < len(toks); k++ {
		if toks[k].isSemi() || toks[k].isGroup("{") {
			return k + 1
		}
	}
	return len(toks)
}

// dialectItems parses a sequence of items. Doc comments and outer
// attributes preceding an item are folded into its span.
func (w *walker) dialectItems(toks []token, sc scope) {
	lead := -1
	for i := 0; i < len(toks); {
		t := toks[i]
		switch {
		case t.kind == tokDoc:
			if lead < 0 {
				lead = i
			}
			i++
		case t.kind == tokComment:
			i++
		case t.is("#!"):
			i += 2
		case t.is("#") && i+1 < len(toks) && toks[i+1].is("!"):
			i += 3
		case t.is("#") && i+1 < len(toks) && toks[i+1].isGroup("["):
			if lead < 0 {
				lead = i
			}
			i += 2
		case t.isSemi():
			lead = -1
			i++
		default:
			first := i
			if lead >= 0 {
				first = lead
			}
			i = w.dialectItem(toks, i, first, sc)
			lead = -1
		}
	}
}

// dialectItem consumes modifiers starting at toks[i] and dispatches on the
// item keyword. It returns the index after the item.
func (w *walker) dialectItem(toks []token, i, first int, sc scope) int {
	kind := KindOrdinary
	vis := ""
	for j := i; j < len(toks); {
		t := toks[j]
		if t.kind != tokAtom {
			return j + 1
		}
		switch t.text {
		case "pub":
			vis = "pub"
			if j+1 < len(toks) && toks[j+1].isGroup("(") {
				vis = "pub" + rusttype.Normalize(w.text(toks[j+1].node))
				j += 2
				continue
			}
			j++
		case "spec", "proof", "exec":
			kind = Kind(t.text)
			j++
			if j < len(toks) && toks[j].isGroup("(") {
				j++
			}
		case "const":
			next := nextSignificant(toks, j+1)
			if next >= 0 && (toks[next].is("fn") || fnModifiers[toks[next].text] || toks[next].is("extern")) {
				if kind == KindOrdinary {
					kind = KindConst
				}
				j++
				continue
			}
			return skipItem(toks, j)
		case "extern":
			j++
			if j < len(toks) && strings.HasPrefix(toks[j].text, "\"") {
				j++
			}
			if j >= len(toks) || !(toks[j].is("fn") || fnModifiers[toks[j].text]) {
				return skipItem(toks, j)
			}
		case "fn":
			return w.dialectFunction(toks, i, first, j, vis, kind, sc)
		case "impl":
			return w.dialectImpl(toks, j, sc)
		case "trait":
			return w.dialectTrait(toks, j, sc)
		case "mod":
			return w.dialectMod(toks, j, sc)
		default:
			if fnModifiers[t.text] {
				j++
				continue
			}
			if end, ok := w.dialectMacro(toks, j, sc); ok {
				return end
			}
			return skipItem(toks, j)
		}
	}
	return len(toks)
}

type clause struct {
	keyword int
	last    int
}

// isBody reports whether the brace group at toks[j] is a function body
// rather than a block expression inside a specification clause. A body is
// followed by nothing, a doc comment, an attribute or the next item's
// leading keyword.
func isBody(toks []token, j int) bool {
	k := j + 1
	for k < len(toks) && toks[k].kind == tokComment {
		k++
	}
	if k >= len(toks) {
		return true
	}
	t := toks[k]
	switch t.kind {
	case tokDoc:
		return true
	case tokGroup:
		return false
	}
	if t.is("#") {
		return true
	}
	if t.text == "else" || t.text == "as" {
		return false
	}
	return isIdent(t.text)
}

func (w *walker) dialectFunction(toks []token, modStart, first, fnIdx int, vis string, kind Kind, sc scope) int {
	if fnIdx+1 >= len(toks) || toks[fnIdx+1].kind != tokAtom || !isIdent(toks[fnIdx+1].text) {
		return fnIdx + 1
	}
	name := toks[fnIdx+1].text

	j := fnIdx + 2
	for j < len(toks) && !toks[j].isGroup("(") {
		if toks[j].isSemi() || toks[j].isGroup("{") {
			break
		}
		j++
	}

	clauses := make(map[string]*clause)
	current := ""
	sigEnd, bodyIdx, endIdx := -1, -1, -1
	for ; j < len(toks); j++ {
		t := toks[j]
		if !t.significant() {
			continue
		}
		if t.isSemi() {
			endIdx = j
			break
		}
		if t.isGroup("{") && isBody(toks, j) {
			bodyIdx, endIdx = j, j
			break
		}
		if t.kind == tokAtom && clauseKeywords[t.text] {
			current = t.text
			if sigEnd < 0 {
				sigEnd = j
			}
			if _, seen := clauses[current]; !seen {
				clauses[current] = &clause{keyword: j, last: j}
			}
			continue
		}
		if current != "" {
			clauses[current].last = j
		}
	}
	if endIdx < 0 {
		endIdx = len(toks) - 1
	}
	if sigEnd < 0 {
		sigEnd = endIdx
	}

	var docs []string
	for k := first; k < modStart; k++ {
		if toks[k].kind == tokDoc {
			docs = append(docs, toks[k].text)
		}
	}

	itemEnd := toks[endIdx].node.EndByte()
	e := &FunctionEntity{
		QualifiedPath: qualifiedPath(sc, name),
		Name:          name,
		Kind:          kind,
		Visibility:    visibilityLabel(vis),
		File:          w.file,
		ModulePath:    sc.module,
		StartLine:     toks[first].startPos().Line,
		EndLine:       endLine(toks[endIdx].node),
		Context:       sc.ctx,
		SelfType:      sc.selfType,
		TraitName:     sc.trait,
		Signature:     rusttype.Normalize(w.span(toks[modStart:sigEnd])),
		Description:   cleanDocComment(docs),
		ContentHash:   contentHash(w.src[toks[modStart].node.StartByte():itemEnd]),
	}
	if c, ok := clauses["requires"]; ok {
		e.HasRequires = true
		e.Requires, e.RequiresText, e.RequiresCalls = w.clauseDetails(toks, c)
	}
	if c, ok := clauses["ensures"]; ok {
		e.HasEnsures = true
		e.Ensures, e.EnsuresText, e.EnsuresCalls = w.clauseDetails(toks, c)
	}
	_, e.HasDecreases = clauses["decreases"]

	var body []token
	if bodyIdx >= 0 {
		body = w.tokens(toks[bodyIdx].node)
		e.HasTrustedAssumption = w.hasTrusted(body)
	}
	w.out = append(w.out, e)

	if body != nil {
		w.dialectNested(body, scope{module: sc.module, ctx: ContextStandalone})
	}
	return endIdx + 1
}

func (w *walker) clauseDetails(toks []token, c *clause) (*ClauseSpan, string, []CallRef) {
	span := &ClauseSpan{
		Start: toks[c.keyword].startPos(),
		End:   toks[c.last].endPos(),
	}
	if c.last == c.keyword {
		return span, "", nil
	}
	body := toks[c.keyword+1 : c.last+1]
	text := strings.TrimSuffix(strings.Join(strings.Fields(w.span(body)), " "), ",")
	return span, text, w.collectCalls(body)
}

// collectCalls lists identifiers applied to an argument group, including
// method calls and turbofish calls, in source order.
func (w *walker) collectCalls(toks []token) []CallRef {
	var out []CallRef
	for k := 0; k < len(toks); k++ {
		t := toks[k]
		if t.kind == tokGroup {
			out = append(out, w.collectCalls(w.tokens(t.node))...)
			continue
		}
		if t.kind != tokAtom || !isIdent(t.text) || callKeywords[t.text] {
			continue
		}
		n := k + 1
		switch {
		case n+1 < len(toks) && toks[n].is("::") && toks[n+1].is("<"):
			n = skipAngles(toks, n+1)
		case n < len(toks) && toks[n].is("::<"):
			n = skipAngles(toks, n)
		}
		if n >= len(toks) || !toks[n].isGroup("(") {
			continue
		}
		full := t.text
		for p := k - 1; p >= 1 && strings.HasSuffix(toks[p].text, "::") && toks[p].kind == tokAtom && isIdent(toks[p-1].text); p -= 2 {
			full = toks[p-1].text + "::" + full
		}
		out = append(out, CallRef{
			Name:     t.text,
			FullPath: full,
			Method:   k > 0 && toks[k-1].is("."),
		})
	}
	return out
}

func (w *walker) hasTrusted(toks []token) bool {
	for k, t := range toks {
		switch {
		case t.kind == tokGroup:
			if w.hasTrusted(w.tokens(t.node)) {
				return true
			}
		case t.is("assume") || t.is("admit"):
			if n := nextSignificant(toks, k+1); n >= 0 && toks[n].isGroup("(") {
				return true
			}
		}
	}
	return false
}

// dialectNested looks for function items declared inside a body. A nested
// item starts at a statement boundary with `fn` or a function modifier.
func (w *walker) dialectNested(toks []token, sc scope) {
	for k := 0; k < len(toks); k++ {
		t := toks[k]
		if t.kind == tokGroup {
			w.dialectNested(w.tokens(t.node), sc)
			continue
		}
		if !t.is("fn") || k+2 >= len(toks) || !isIdent(toks[k+1].text) {
			continue
		}
		start := k
		for start > 0 && toks[start-1].kind == tokAtom && (fnModifiers[toks[start-1].text] || isModeWord(toks[start-1].text)) {
			start--
		}
		if start > 0 {
			prev := toks[start-1]
			if !(prev.isSemi() || prev.isGroup("{") || prev.isGroup("[") || prev.kind == tokDoc) {
				continue
			}
		}
		k = w.dialectItem(toks, start, start, sc) - 1
	}
}

func isModeWord(s string) bool {
	switch s {
	case "spec", "proof", "exec", "pub", "const":
		return true
	}
	return false
}

func (w *walker) dialectImpl(toks []token, implIdx int, sc scope) int {
	j := implIdx + 1
	if j < len(toks) && toks[j].is("<") {
		j = skipAngles(toks, j)
	}
	bodyIdx := -1
	for k := j; k < len(toks); k++ {
		if toks[k].isGroup("{") {
			bodyIdx = k
			break
		}
		if toks[k].isSemi() {
			return k + 1
		}
	}
	if bodyIdx < 0 {
		return len(toks)
	}

	header := toks[j:bodyIdx]
	cut, forAt, depth := len(header), -1, 0
	for k, t := range header {
		if t.kind != tokAtom {
			continue
		}
		depth += angleDelta(t.text)
		if depth != 0 {
			continue
		}
		if t.text == "where" {
			cut = k
			break
		}
		if t.text == "for" && forAt < 0 && !(k+1 < len(header) && header[k+1].is("<")) {
			forAt = k
		}
	}

	selfType, trait := "", ""
	if forAt >= 0 && forAt < cut {
		trait = strings.TrimPrefix(w.span(header[:forAt]), "!")
		selfType = w.span(header[forAt+1 : cut])
	} else {
		selfType = w.span(header[:cut])
	}
	w.dialectItems(w.tokens(toks[bodyIdx].node), scope{
		module:   sc.module,
		ctx:      ContextImpl,
		selfType: rusttype.Normalize(selfType),
		trait:    rusttype.Normalize(trait),
	})
	return bodyIdx + 1
}

func (w *walker) dialectTrait(toks []token, traitIdx int, sc scope) int {
	if traitIdx+1 >= len(toks) {
		return len(toks)
	}
	nameEnd := traitIdx + 2
	if nameEnd < len(toks) && toks[nameEnd].is("<") {
		nameEnd = skipAngles(toks, nameEnd)
	}
	name := w.span(toks[traitIdx+1 : nameEnd])
	for k := nameEnd; k < len(toks); k++ {
		if toks[k].isSemi() {
			return k + 1
		}
		if toks[k].isGroup("{") {
			w.dialectItems(w.tokens(toks[k].node), scope{
				module: sc.module,
				ctx:    ContextTrait,
				trait:  rusttype.Normalize(name),
			})
			return k + 1
		}
	}
	return len(toks)
}

func (w *walker) dialectMod(toks []token, modIdx int, sc scope) int {
	if modIdx+2 >= len(toks) {
		return len(toks)
	}
	name := toks[modIdx+1].text
	next := toks[modIdx+2]
	if next.isGroup("{") {
		w.dialectItems(w.tokens(next.node), scope{module: joinPath(sc.module, name), ctx: ContextStandalone})
	}
	return modIdx + 3
}

// dialectMacro handles `path::name! { ... }` invocations in item position.
func (w *walker) dialectMacro(toks []token, j int, sc scope) (int, bool) {
	k := j
	var path []string
	for k < len(toks) && toks[k].kind == tokAtom && isIdent(toks[k].text) {
		path = append(path, toks[k].text)
		k++
		if k < len(toks) && toks[k].is("::") {
			k++
			continue
		}
		break
	}
	if len(path) == 0 || k >= len(toks) || !toks[k].is("!") {
		return 0, false
	}
	k++
	if k < len(toks) && toks[k].kind == tokAtom && isIdent(toks[k].text) {
		// macro_rules! name { ... }
		k++
	}
	if k >= len(toks) || toks[k].kind != tokGroup {
		return k, true
	}
	group := toks[k]
	name := path[len(path)-1]
	switch {
	case w.ext.blockMacros[name]:
		w.dialectItems(w.tokens(group.node), sc)
	case w.ext.cfgMacros[name]:
		w.cfgBranches(w.tokens(group.node), sc)
	}
	k++
	if k < len(toks) && toks[k].isSemi() {
		k++
	}
	return k, true
}

// cfgBranches parses every brace group of a conditional-compilation macro
// as an item list; the conditions themselves are ignored.
func (w *walker) cfgBranches(toks []token, sc scope) {
	for _, t := range toks {
		if t.isGroup("{") {
			w.dialectItems(w.tokens(t.node), sc)
		}
	}
}
