// Package symbols turns raw code-structure index records into canonical,
// collision-free function identifiers (atoms) and resolves call sites onto
// them.
package symbols

import (
	"strings"

	"verimap/internal/rusttype"
)

// RawIndexSymbol is one function definition as reported by the external
// indexer. Several records may carry the same Symbol string.
type RawIndexSymbol struct {
	Symbol      string           `json:"symbol"`
	DisplayName string           `json:"display-name"`
	Kind        int32            `json:"kind,omitempty"`
	Signature   string           `json:"signature,omitempty"`
	File        string           `json:"file"`
	Line        int              `json:"line"`
	Context     []string         `json:"context,omitempty"`
	Calls       []CallOccurrence `json:"calls,omitempty"`

	// SelfType and Trait are optional hints taken from the source indexer.
	SelfType string `json:"self-type,omitempty"`
	Trait    string `json:"trait,omitempty"`
}

// CallOccurrence is a reference to a function-like symbol inside a
// definition. TypeHint is the type named next to the call on the same line,
// e.g. the `Scalar` of `Scalar::from(x)`.
type CallOccurrence struct {
	Symbol   string `json:"symbol"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	TypeHint string `json:"type-hint,omitempty"`
}

// Atom is a canonical function identifier.
type Atom string

// RawAtom converts an indexer symbol into its path form. Symbols in the
// `scheme manager package version descriptors` layout become
// `package/descriptors`; anything else is taken as bare descriptors. The
// trailing method terminator `.` is dropped.
func RawAtom(symbol string) string {
	fields := strings.Fields(symbol)
	if len(fields) >= 5 {
		pkg := strings.ReplaceAll(fields[2], "-", "_")
		return pkg + "/" + strings.TrimSuffix(strings.Join(fields[4:], " "), ".")
	}
	return strings.TrimSuffix(strings.TrimSpace(symbol), ".")
}

// IsLocal reports whether symbol is a document-local symbol.
func IsLocal(symbol string) bool {
	return strings.HasPrefix(symbol, "local ")
}

// descriptorPath splits an atom into the namespace prefix, the type
// segments and the trailing method segment:
// `curve/montgomery/Mul#mul()` has prefix `curve/montgomery/`, types
// [Mul] and method `mul()`.
type descriptorPath struct {
	prefix string
	types  []string
	method string
}

func parsePath(atom string) descriptorPath {
	var p descriptorPath
	depth := 0
	quoted := false
	start := 0
	inTypes := false
	for i := 0; i < len(atom); i++ {
		c := atom[i]
		switch {
		case c == '`':
			quoted = !quoted
		case quoted:
		case c == '<' || c == '(' || c == '[':
			depth++
		case c == '>' || c == ')' || c == ']':
			depth--
		case depth != 0:
		case c == '/' && !inTypes:
			p.prefix = atom[:i+1]
			start = i + 1
		case c == '#':
			inTypes = true
			p.types = append(p.types, atom[start:i])
			start = i + 1
		}
	}
	p.method = atom[start:]
	return p
}

func (p descriptorPath) String() string {
	var b strings.Builder
	b.WriteString(p.prefix)
	for _, t := range p.types {
		b.WriteString(t)
		b.WriteByte('#')
	}
	b.WriteString(p.method)
	return b.String()
}

// selfTypeFromSignature returns T for an explicit `self: T` receiver.
func selfTypeFromSignature(sig string) string {
	for _, param := range signatureParams(sig) {
		name, typ, ok := strings.Cut(param, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "mut "))
		if name == "self" {
			return rusttype.Normalize(typ)
		}
	}
	return ""
}

// firstArgType returns the type of the first parameter that is not the
// receiver.
func firstArgType(sig string) string {
	if params := paramTypes(sig); len(params) > 0 {
		return params[0]
	}
	return ""
}

// paramTypes returns the normalized types of the parameters other than the
// receiver.
func paramTypes(sig string) []string {
	var out []string
	for _, param := range signatureParams(sig) {
		name, typ, ok := strings.Cut(param, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "mut "))
		if name == "self" {
			continue
		}
		out = append(out, rusttype.Normalize(typ))
	}
	return out
}

// returnType returns the normalized type after `->`, without any where
// clause.
func returnType(sig string) string {
	_, end := paramSpan(sig)
	if end < 0 {
		return ""
	}
	rest := strings.TrimSpace(sig[end+1:])
	rest, ok := strings.CutPrefix(rest, "->")
	if !ok {
		return ""
	}
	if i := strings.Index(rest, " where "); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), "{")
	return rusttype.Normalize(rest)
}

// signatureParams returns the top-level parameters of the first
// parenthesized list in sig.
func signatureParams(sig string) []string {
	open, end := paramSpan(sig)
	if end < 0 {
		return nil
	}
	return rusttype.SplitTopLevel(sig[open+1:end], ',')
}

// paramSpan returns the offsets of the parentheses around the first
// parameter list, end is -1 when there is none.
func paramSpan(sig string) (open, end int) {
	open = strings.IndexByte(sig, '(')
	if open < 0 {
		return -1, -1
	}
	depth := 0
	for i := open; i < len(sig); i++ {
		switch sig[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return open, i
			}
		}
	}
	return open, -1
}
