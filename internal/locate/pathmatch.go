package locate

import (
	"path"
	"sort"
	"strings"
)

// MatchKind describes how a queried path was matched to a known file.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchExact
	MatchSuffix
	MatchFilename
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchSuffix:
		return "suffix"
	case MatchFilename:
		return "filename"
	default:
		return "none"
	}
}

// PathMatcher resolves diagnostic or index paths against the set of files
// known to the indexer. Lookups fall back from exact match to path-suffix
// match to filename-only match.
type PathMatcher struct {
	known  map[string]bool
	byName map[string][]string
}

// NewPathMatcher builds a matcher over the given relative file paths.
func NewPathMatcher(files []string) *PathMatcher {
	m := &PathMatcher{
		known:  make(map[string]bool, len(files)),
		byName: make(map[string][]string),
	}
	for _, f := range files {
		f = Clean(f)
		if m.known[f] {
			continue
		}
		m.known[f] = true
		base := path.Base(f)
		m.byName[base] = append(m.byName[base], f)
	}
	for _, list := range m.byName {
		sort.Strings(list)
	}
	return m
}

// Clean normalizes separators and strips a leading "./".
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

// Match returns the known file that best corresponds to p.
// Among several suffix candidates the one sharing the most trailing path
// segments wins; remaining ties go to the lexicographically smallest path.
func (m *PathMatcher) Match(p string) (string, MatchKind, bool) {
	p = Clean(p)
	if m.known[p] {
		return p, MatchExact, true
	}
	candidates := m.byName[path.Base(p)]
	if len(candidates) == 0 {
		return "", MatchNone, false
	}
	best := ""
	bestScore := 0
	for _, c := range candidates {
		score := TrailingSegments(p, c)
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore >= 2 {
		return best, MatchSuffix, true
	}
	return best, MatchFilename, true
}

// TrailingSegments counts how many trailing path segments a and b share.
func TrailingSegments(a, b string) int {
	as := strings.Split(Clean(a), "/")
	bs := strings.Split(Clean(b), "/")
	n := 0
	for i, j := len(as)-1, len(bs)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		if as[i] != bs[j] || as[i] == ".." || as[i] == "." {
			break
		}
		n++
	}
	return n
}

// SameFile reports whether a and b refer to the same file, allowing one to
// be a segment-aligned suffix of the other.
func SameFile(a, b string) bool {
	a, b = Clean(a), Clean(b)
	if a == b {
		return true
	}
	short := strings.Count(a, "/") + 1
	if n := strings.Count(b, "/") + 1; n < short {
		short = n
	}
	return TrailingSegments(a, b) == short
}
