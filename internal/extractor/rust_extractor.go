package extractor

import (
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"verimap/internal/rusttype"
)

// nodeKind is the closed set of syntax node kinds the walker acts on.
// Every other kind is ignored.
type nodeKind int

const (
	nodeOther nodeKind = iota
	nodeFunction
	nodeSignature
	nodeImpl
	nodeTrait
	nodeMod
	nodeMacro
	nodeStatement
)

var nodeKinds = map[string]nodeKind{
	"function_item":           nodeFunction,
	"function_signature_item": nodeSignature,
	"impl_item":               nodeImpl,
	"trait_item":              nodeTrait,
	"mod_item":                nodeMod,
	"macro_invocation":        nodeMacro,
	"expression_statement":    nodeStatement,
}

var trustedRe = regexp.MustCompile(`\b(assume|admit)\s*\(`)

// scope is the lexical context items are declared in.
type scope struct {
	module   string
	ctx      Context
	selfType string
	trait    string
}

// walker accumulates the entities of one file.
type walker struct {
	ext  *Extractor
	src  []byte
	file string
	out  []*FunctionEntity
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func (w *walker) items(parent *sitter.Node, sc scope) {
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		w.item(parent.NamedChild(i), sc)
	}
}

func (w *walker) item(n *sitter.Node, sc scope) {
	switch nodeKinds[n.Type()] {
	case nodeFunction, nodeSignature:
		w.function(n, sc)
	case nodeImpl:
		w.impl(n, sc)
	case nodeTrait:
		w.trait(n, sc)
	case nodeMod:
		w.mod(n, sc)
	case nodeMacro:
		w.macro(n, sc)
	case nodeStatement:
		if n.NamedChildCount() > 0 {
			w.item(n.NamedChild(0), sc)
		}
	}
}

// nested finds item definitions inside a function body.
func (w *walker) nested(n *sitter.Node, sc scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch nodeKinds[c.Type()] {
		case nodeFunction, nodeImpl, nodeTrait, nodeMod:
			w.item(c, sc)
		case nodeMacro:
			// expression macros inside bodies never hold item lists
		default:
			w.nested(c, sc)
		}
	}
}

func (w *walker) function(n *sitter.Node, sc scope) {
	name := w.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	start, doc := w.leading(n)

	kind := KindOrdinary
	vis := ""
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "visibility_modifier":
			vis = rusttype.Normalize(w.text(c))
		case "function_modifiers":
			if strings.Contains(w.text(c), "const") {
				kind = KindConst
			}
		}
	}

	body := n.ChildByFieldName("body")
	sigEnd := n.EndByte()
	if body != nil {
		sigEnd = body.StartByte()
	}

	e := &FunctionEntity{
		QualifiedPath: qualifiedPath(sc, name),
		Name:          name,
		Kind:          kind,
		Visibility:    visibilityLabel(vis),
		File:          w.file,
		ModulePath:    sc.module,
		StartLine:     start,
		EndLine:       endLine(n),
		Context:       sc.ctx,
		SelfType:      sc.selfType,
		TraitName:     sc.trait,
		Signature:     rusttype.Normalize(strings.TrimSuffix(string(w.src[n.StartByte():sigEnd]), ";")),
		Description:   doc,
		ContentHash:   contentHash(w.src[n.StartByte():n.EndByte()]),
	}
	if body != nil {
		e.HasTrustedAssumption = trustedRe.Match(w.src[body.StartByte():body.EndByte()])
	}
	w.out = append(w.out, e)

	if body != nil {
		w.nested(body, scope{module: sc.module, ctx: ContextStandalone})
	}
}

// leading returns the first line of the item including its outer
// attributes and doc comments, plus the cleaned doc text.
func (w *walker) leading(n *sitter.Node) (int, string) {
	start := int(n.StartPoint().Row) + 1
	var docs []string
loop:
	for p := n.PrevSibling(); p != nil; p = p.PrevSibling() {
		switch p.Type() {
		case "attribute_item":
		case "line_comment", "block_comment":
			t := w.text(p)
			if !isDocComment(t) {
				break loop
			}
			docs = append([]string{t}, docs...)
		default:
			break loop
		}
		start = int(p.StartPoint().Row) + 1
	}
	return start, cleanDocComment(docs)
}

func (w *walker) impl(n *sitter.Node, sc scope) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	w.items(body, scope{
		module:   sc.module,
		ctx:      ContextImpl,
		selfType: rusttype.Normalize(w.text(n.ChildByFieldName("type"))),
		trait:    rusttype.Normalize(w.text(n.ChildByFieldName("trait"))),
	})
}

func (w *walker) trait(n *sitter.Node, sc scope) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	name := w.text(n.ChildByFieldName("name")) + w.text(n.ChildByFieldName("type_parameters"))
	w.items(body, scope{
		module: sc.module,
		ctx:    ContextTrait,
		trait:  rusttype.Normalize(name),
	})
}

func (w *walker) mod(n *sitter.Node, sc scope) {
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	name := w.text(n.ChildByFieldName("name"))
	w.items(body, scope{module: joinPath(sc.module, name), ctx: ContextStandalone})
}

func (w *walker) macro(n *sitter.Node, sc scope) {
	name := lastPathSegment(w.text(n.ChildByFieldName("macro")))
	isBlock, isCfg := w.ext.blockMacros[name], w.ext.cfgMacros[name]
	if !isBlock && !isCfg {
		return
	}
	var tt *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "token_tree" {
			tt = c
			break
		}
	}
	if tt == nil {
		return
	}
	toks := w.tokens(tt)
	if isBlock {
		w.dialectItems(toks, sc)
		return
	}
	w.cfgBranches(toks, sc)
}

func visibilityLabel(vis string) string {
	if vis == "" {
		return "private"
	}
	return vis
}

// endLine is the 1-based last line of n. A node ending at column 0 ends
// on the previous line.
func endLine(n *sitter.Node) int {
	p := n.EndPoint()
	if p.Column == 0 && p.Row > n.StartPoint().Row {
		return int(p.Row)
	}
	return int(p.Row) + 1
}
