// Package locate answers "which span contains this line" questions for
// diagnostics and diffs.
package locate

import "sort"

// Interval is a closed line range [Start, End] carrying a value.
type Interval[T any] struct {
	Start int
	End   int
	Value T
}

// IntervalIndex is a read-only index over a laminar family of intervals
// (any two are disjoint or nested). Queries run in O(log n) plus the
// nesting depth.
type IntervalIndex[T any] struct {
	items  []Interval[T]
	parent []int
}

// NewIntervalIndex sorts the intervals by start (outer first on ties) and
// links every interval to its nearest enclosing one.
func NewIntervalIndex[T any](items []Interval[T]) *IntervalIndex[T] {
	sorted := make([]Interval[T], len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	parent := make([]int, len(sorted))
	var stack []int
	for i, it := range sorted {
		for len(stack) > 0 && sorted[stack[len(stack)-1]].End < it.Start {
			stack = stack[:len(stack)-1]
		}
		parent[i] = -1
		if len(stack) > 0 {
			parent[i] = stack[len(stack)-1]
		}
		stack = append(stack, i)
	}
	return &IntervalIndex[T]{items: sorted, parent: parent}
}

// Len returns the number of indexed intervals.
func (x *IntervalIndex[T]) Len() int {
	return len(x.items)
}

// Innermost returns the value of the smallest interval containing line.
func (x *IntervalIndex[T]) Innermost(line int) (T, bool) {
	var zero T
	// Last interval starting at or before line.
	i := sort.Search(len(x.items), func(k int) bool { return x.items[k].Start > line }) - 1
	for i >= 0 {
		if x.items[i].End >= line {
			return x.items[i].Value, true
		}
		i = x.parent[i]
	}
	return zero, false
}

// SpanIndex is a per-file collection of interval indices addressed through
// a PathMatcher, so that diagnostic paths need not match exactly.
type SpanIndex[T any] struct {
	matcher *PathMatcher
	files   map[string]*IntervalIndex[T]
}

// NewSpanIndex builds one interval index per file.
func NewSpanIndex[T any](byFile map[string][]Interval[T]) *SpanIndex[T] {
	files := make(map[string]*IntervalIndex[T], len(byFile))
	names := make([]string, 0, len(byFile))
	for f, items := range byFile {
		f = Clean(f)
		files[f] = NewIntervalIndex(items)
		names = append(names, f)
	}
	return &SpanIndex[T]{matcher: NewPathMatcher(names), files: files}
}

// Lookup resolves path to a known file and returns the innermost interval
// containing line. The resolved file is returned even when no interval
// contains the line.
func (s *SpanIndex[T]) Lookup(path string, line int) (value T, file string, ok bool) {
	file, _, found := s.matcher.Match(path)
	if !found {
		return value, "", false
	}
	value, ok = s.files[file].Innermost(line)
	return value, file, ok
}

// Matcher exposes the underlying path matcher.
func (s *SpanIndex[T]) Matcher() *PathMatcher {
	return s.matcher
}
