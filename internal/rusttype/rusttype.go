// Package rusttype holds the small set of lexical helpers shared by the
// source indexer and the symbol disambiguator for reading Rust type text.
package rusttype

import (
	"strings"
	"unicode"
)

// Tokenize splits Rust type or signature text into lexical tokens.
// Lifetimes ('a) are kept as single tokens; `>>` is always split so that
// nested generic arguments close one level per token.
func Tokenize(s string) []string {
	var toks []string
	rs := []rune(s)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case isIdentRune(r):
			j := i + 1
			for j < len(rs) && isIdentRune(rs[j]) {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		case r == '\'':
			j := i + 1
			for j < len(rs) && isIdentRune(rs[j]) {
				j++
			}
			if j < len(rs) && rs[j] == '\'' {
				// char literal
				toks = append(toks, string(rs[i:j+1]))
				i = j + 1
				continue
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		case r == '"':
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				if rs[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(rs) {
				j = len(rs) - 1
			}
			toks = append(toks, string(rs[i:j+1]))
			i = j + 1
		default:
			if op := multiCharOp(rs[i:]); op != "" {
				toks = append(toks, op)
				i += len(op)
				continue
			}
			toks = append(toks, string(r))
			i++
		}
	}
	return toks
}

var multiCharOps = []string{"..=", "...", "::", "->", "=>", "..", "==", "!=", "<=", ">="}

func multiCharOp(rs []rune) string {
	for _, op := range multiCharOps {
		if len(rs) < len(op) {
			continue
		}
		if string(rs[:len(op)]) == op {
			return op
		}
	}
	return ""
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// IsLifetime reports whether tok is a lifetime such as 'a or '_.
func IsLifetime(tok string) bool {
	return len(tok) > 1 && tok[0] == '\'' && tok[len(tok)-1] != '\''
}

func isWord(tok string) bool {
	if tok == "" {
		return false
	}
	r := []rune(tok)[0]
	return isIdentRune(r) || r == '"'
}

// Normalize canonicalizes type or signature text: lifetimes are dropped,
// whitespace is collapsed and punctuation is spaced one fixed way.
// Reference markers and `mut` are preserved.
func Normalize(s string) string {
	return Join(dropLifetimes(Tokenize(s)))
}

func dropLifetimes(toks []string) []string {
	out := make([]string, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if !IsLifetime(t) {
			out = append(out, t)
			continue
		}
		next := ""
		if i+1 < len(toks) {
			next = toks[i+1]
		}
		prev := ""
		if len(out) > 0 {
			prev = out[len(out)-1]
		}
		switch {
		case next == ",":
			i++
		case prev == "," && next == ">":
			out = out[:len(out)-1]
		case prev == "+":
			out = out[:len(out)-1]
		}
	}
	// Remove generic brackets emptied by the pass above.
	cleaned := make([]string, 0, len(out))
	for i := 0; i < len(out); i++ {
		if out[i] == "<" && i+1 < len(out) && out[i+1] == ">" {
			if n := len(cleaned); n > 0 && cleaned[n-1] == "for" {
				cleaned = cleaned[:n-1]
			}
			i++
			continue
		}
		cleaned = append(cleaned, out[i])
	}
	return cleaned
}

// Join renders tokens back to text with canonical spacing.
func Join(toks []string) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 && needsSpace(toks[i-1], t) {
			b.WriteByte(' ')
		}
		b.WriteString(t)
	}
	return b.String()
}

func needsSpace(prev, t string) bool {
	switch {
	case t == "->" || t == "=>" || prev == "->" || prev == "=>":
		return true
	case prev == "," || prev == ";":
		return true
	case t == "+" || prev == "+" || t == "=" || prev == "=":
		return true
	case prev == ":":
		return true
	case isWord(t) && (isWord(prev) || prev == ")" || prev == "]" || prev == ">"):
		return true
	}
	return false
}

// Base returns the bare type name: reference markers, `mut`, `dyn`, generic
// arguments and leading path segments are removed. Tuple, slice and array
// types are returned normalized.
func Base(s string) string {
	toks := dropLifetimes(Tokenize(s))
	for len(toks) > 0 {
		switch toks[0] {
		case "&", "*", "mut", "const", "dyn", "impl":
			toks = toks[1:]
			continue
		}
		break
	}
	if len(toks) == 0 {
		return ""
	}
	if toks[0] == "(" || toks[0] == "[" {
		return Join(toks)
	}
	end := len(toks)
	for i, t := range toks {
		if t == "<" {
			end = i
			break
		}
	}
	head := toks[:end]
	for i := len(head) - 1; i >= 0; i-- {
		if head[i] == "::" {
			return Join(head[i+1:])
		}
	}
	return Join(head)
}

// GenericArgs returns the normalized text between the first top-level
// angle brackets of s, or "" when s carries no generic arguments.
func GenericArgs(s string) string {
	toks := dropLifetimes(Tokenize(s))
	depth := 0
	start := -1
	for i, t := range toks {
		switch t {
		case "<":
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ">":
			depth--
			if depth == 0 && start >= 0 {
				return Join(toks[start:i])
			}
		}
	}
	return ""
}

// SplitTopLevel splits s on sep, ignoring separators nested inside
// (), [], {} or <> pairs. Empty parts are dropped.
func SplitTopLevel(s string, sep rune) []string {
	var parts []string
	depth := 0
	start := 0
	rs := []rune(s)
	for i, r := range rs {
		switch r {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}':
			depth--
		case '>':
			if i > 0 && (rs[i-1] == '-' || rs[i-1] == '=') {
				continue
			}
			depth--
		case sep:
			if depth == 0 {
				if p := strings.TrimSpace(string(rs[start:i])); p != "" {
					parts = append(parts, p)
				}
				start = i + 1
			}
		}
	}
	if p := strings.TrimSpace(string(rs[start:])); p != "" {
		parts = append(parts, p)
	}
	return parts
}
