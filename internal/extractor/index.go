package extractor

import (
	"sort"
	"strings"
)

// Index is the result of one indexing pass: entities keyed by file plus the
// flat list, both in deterministic order (file, span start, outer first,
// name).
type Index struct {
	ByFile map[string][]*FunctionEntity
	All    []*FunctionEntity
}

// NewIndex sorts entities and builds both views in a single pass.
func NewIndex(entities []*FunctionEntity) *Index {
	all := make([]*FunctionEntity, len(entities))
	copy(all, entities)
	SortEntities(all)

	byFile := make(map[string][]*FunctionEntity)
	for _, e := range all {
		byFile[e.File] = append(byFile[e.File], e)
	}
	return &Index{ByFile: byFile, All: all}
}

// SortEntities orders entities by file, start line, end line (descending so
// that enclosing spans come first) and name.
func SortEntities(list []*FunctionEntity) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.EndLine != b.EndLine {
			return a.EndLine > b.EndLine
		}
		return a.Name < b.Name
	})
}

// Files returns the indexed file paths in sorted order.
func (x *Index) Files() []string {
	files := make([]string, 0, len(x.ByFile))
	for f := range x.ByFile {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Filter keeps entities whose module path contains module (when non-empty)
// and whose name equals function (when non-empty).
func (x *Index) Filter(module, function string) *Index {
	if module == "" && function == "" {
		return x
	}
	var kept []*FunctionEntity
	for _, e := range x.All {
		if module != "" && !strings.Contains(e.ModulePath, module) {
			continue
		}
		if function != "" && e.Name != function {
			continue
		}
		kept = append(kept, e)
	}
	return NewIndex(kept)
}

// Specified returns the entities carrying a precondition or postcondition.
func (x *Index) Specified() []*FunctionEntity {
	var out []*FunctionEntity
	for _, e := range x.All {
		if e.Specified() {
			out = append(out, e)
		}
	}
	return out
}
