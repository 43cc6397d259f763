package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"verimap/internal/schema"
)

// CodeText is the inclusive line span of an atom.
type CodeText struct {
	LinesStart int `json:"lines-start"`
	LinesEnd   int `json:"lines-end"`
}

// DependencyLocation is one call occurrence in the extended output.
type DependencyLocation struct {
	CodeName string   `json:"code-name"`
	Location Location `json:"location"`
	Line     int      `json:"line"`
}

// AtomRecord is the serialized form of one node.
type AtomRecord struct {
	DisplayName               string               `json:"display-name"`
	Dependencies              []string             `json:"dependencies"`
	DependenciesWithLocations []DependencyLocation `json:"dependencies-with-locations,omitempty"`
	CodeModule                string               `json:"code-module"`
	CodePath                  string               `json:"code-path"`
	CodeText                  CodeText             `json:"code-text"`
	Mode                      string               `json:"mode"`
	Approximate               bool                 `json:"approximate,omitempty"`
}

// Records converts the graph into its output map keyed by atom.
func (g *Graph) Records() map[string]AtomRecord {
	out := make(map[string]AtomRecord, len(g.Nodes))
	for _, a := range g.Atoms() {
		n := g.Nodes[a]
		rec := AtomRecord{
			DisplayName:  n.DisplayName,
			Dependencies: []string{},
			CodeModule:   n.Module,
			CodePath:     n.File,
			CodeText:     CodeText{LinesStart: n.StartLine, LinesEnd: n.EndLine},
			Mode:         n.Mode,
			Approximate:  n.Approximate,
		}
		for _, d := range g.GetDependencies(a) {
			rec.Dependencies = append(rec.Dependencies, string(d))
		}
		for _, e := range g.CallsFrom(a) {
			if e.Location == "" {
				continue
			}
			rec.DependenciesWithLocations = append(rec.DependenciesWithLocations, DependencyLocation{
				CodeName: string(e.To),
				Location: e.Location,
				Line:     e.Line,
			})
		}
		sort.SliceStable(rec.DependenciesWithLocations, func(i, j int) bool {
			x, y := rec.DependenciesWithLocations[i], rec.DependenciesWithLocations[j]
			if x.Line != y.Line {
				return x.Line < y.Line
			}
			return x.CodeName < y.CodeName
		})
		out[string(a)] = rec
	}
	return out
}

// WriteAtoms encodes records as indented JSON. Map keys are emitted in
// sorted order.
func WriteAtoms(w io.Writer, records map[string]AtomRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode atoms: %w", err)
	}
	return nil
}

// ReadAtoms decodes an atoms map written by WriteAtoms. The input is
// checked against the atoms schema first.
func ReadAtoms(r io.Reader) (map[string]AtomRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read atoms: %w", err)
	}
	if err := schema.Validate(schema.Atoms, data); err != nil {
		return nil, err
	}
	var records map[string]AtomRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode atoms: %w", err)
	}
	return records, nil
}

// ReverseDependencies maps every atom to the sorted atoms that depend on
// it.
func ReverseDependencies(records map[string]AtomRecord) map[string][]string {
	rev := make(map[string][]string)
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, d := range records[k].Dependencies {
			rev[d] = append(rev[d], k)
		}
	}
	return rev
}
