package graph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verimap/internal/extractor"
	"verimap/internal/symbols"
)

const lenSym = "rust-analyzer cargo vstd 0.1.0 seq/Seq#len()."

func sampleInputs(t *testing.T) (*symbols.Registry, *extractor.Index) {
	t.Helper()
	entities := []*extractor.FunctionEntity{
		{
			Name: "outer", File: "src/m.rs", ModulePath: "m", StartLine: 1, EndLine: 20, Kind: extractor.KindProof,
			HasRequires: true, HasEnsures: true,
			Requires: &extractor.ClauseSpan{Start: extractor.Position{Line: 3, Column: 4}, End: extractor.Position{Line: 4, Column: 20}},
			Ensures:  &extractor.ClauseSpan{Start: extractor.Position{Line: 5, Column: 4}, End: extractor.Position{Line: 6, Column: 10}},
		},
		{Name: "helper", File: "src/m.rs", ModulePath: "m", StartLine: 22, EndLine: 30, Kind: extractor.KindSpec},
		{Name: "mul", File: "src/m.rs", ModulePath: "m", StartLine: 40, EndLine: 45, Kind: extractor.KindExec},
		{Name: "mul", File: "src/m.rs", ModulePath: "m", StartLine: 50, EndLine: 55, Kind: extractor.KindExec},
	}

	raws := []symbols.RawIndexSymbol{
		{Symbol: "c/m/outer()", DisplayName: "outer", File: "curve/src/m.rs", Line: 2, Calls: []symbols.CallOccurrence{
			{Symbol: "c/m/helper()", Line: 10, Column: 4},
			{Symbol: "c/m/helper()", Line: 3, Column: 8},
			{Symbol: "c/m/helper()", Line: 5, Column: 6},
			{Symbol: lenSym, Line: 12, Column: 4},
			{Symbol: "c/m/outer()", Line: 15, Column: 4},
		}},
		{Symbol: "c/m/helper()", DisplayName: "helper", File: "curve/src/m.rs", Line: 23},
		{Symbol: "c/m/Mul#mul()", DisplayName: "mul", File: "curve/src/m.rs", Line: 41, SelfType: "&A", Signature: "fn mul(self, rhs: B) -> A"},
		{Symbol: "c/m/Mul#mul()", DisplayName: "mul", File: "curve/src/m.rs", Line: 51, SelfType: "&B", Signature: "fn mul(self, rhs: A) -> B"},
		{Symbol: "c/m/ghost_fn()", DisplayName: "ghost_fn", File: "curve/src/m.rs", Line: 100},
	}
	reg, err := symbols.NewRegistry(raws, symbols.Options{})
	require.NoError(t, err)
	return reg, extractor.NewIndex(entities)
}

func TestBuild(t *testing.T) {
	reg, idx := sampleInputs(t)
	g, err := Build(reg, idx, Options{WithLocations: true})
	require.NoError(t, err)

	assert.Equal(t, []symbols.Atom{
		"c/m/&A#Mul<B>#mul()", "c/m/&B#Mul<A>#mul()", "c/m/ghost_fn()", "c/m/helper()", "c/m/outer()",
	}, g.Atoms())

	records := g.Records()

	t.Run("Span join", func(t *testing.T) {
		outer := records["c/m/outer()"]
		assert.Equal(t, "outer", outer.DisplayName)
		assert.Equal(t, "src/m.rs", outer.CodePath)
		assert.Equal(t, "m", outer.CodeModule)
		assert.Equal(t, CodeText{LinesStart: 1, LinesEnd: 20}, outer.CodeText)
		assert.Equal(t, "proof", outer.Mode)
		assert.False(t, outer.Approximate)

		assert.Equal(t, CodeText{LinesStart: 40, LinesEnd: 45}, records["c/m/&A#Mul<B>#mul()"].CodeText)
		assert.Equal(t, CodeText{LinesStart: 50, LinesEnd: 55}, records["c/m/&B#Mul<A>#mul()"].CodeText)
		assert.Equal(t, "spec", records["c/m/helper()"].Mode)
	})

	t.Run("Unmatched definitions are approximate", func(t *testing.T) {
		ghost := records["c/m/ghost_fn()"]
		assert.True(t, ghost.Approximate)
		assert.Equal(t, "curve/src/m.rs", ghost.CodePath)
		assert.Equal(t, CodeText{LinesStart: 100, LinesEnd: 100}, ghost.CodeText)
	})

	t.Run("Dependencies", func(t *testing.T) {
		outer := records["c/m/outer()"]
		assert.Equal(t, []string{"c/m/helper()", "vstd/seq/Seq#len()"}, outer.Dependencies)
		assert.Equal(t, []DependencyLocation{
			{CodeName: "c/m/helper()", Location: LocationPrecondition, Line: 3},
			{CodeName: "c/m/helper()", Location: LocationPostcondition, Line: 5},
			{CodeName: "c/m/helper()", Location: LocationBody, Line: 10},
			{CodeName: "vstd/seq/Seq#len()", Location: LocationBody, Line: 12},
		}, outer.DependenciesWithLocations)
		assert.Equal(t, []string{}, records["c/m/helper()"].Dependencies)
	})

	t.Run("Dependents", func(t *testing.T) {
		assert.Equal(t, []symbols.Atom{"c/m/outer()"}, g.GetDependents("c/m/helper()"))
		assert.Empty(t, g.GetDependents("vstd/seq/Seq#len()"))
		assert.Equal(t, map[string][]string{
			"c/m/helper()":       {"c/m/outer()"},
			"vstd/seq/Seq#len()": {"c/m/outer()"},
		}, ReverseDependencies(records))
	})

	t.Run("Stats", func(t *testing.T) {
		st := g.Stats()
		assert.Equal(t, 5, st.Nodes)
		assert.Equal(t, 1, st.Approximate)
		assert.Equal(t, 4, st.Edges)
		assert.Equal(t, 1, st.ExternalEdges)
		assert.Equal(t, 2, st.ByLocation[LocationBody])
	})
}

func TestBuild_WithoutLocations(t *testing.T) {
	reg, idx := sampleInputs(t)
	g, err := Build(reg, idx, Options{})
	require.NoError(t, err)
	assert.Empty(t, g.Records()["c/m/outer()"].DependenciesWithLocations)
}

func TestGraph_DuplicateAtoms(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddNode(&Node{Atom: "a/f()", File: "src/a.rs", StartLine: 3}))
	err := g.AddNode(&Node{Atom: "a/f()", File: "src/a.rs", StartLine: 9})

	var dup *DuplicateAtomsError
	require.ErrorAs(t, err, &dup)
	assert.Len(t, dup.Entries, 2)
	assert.Contains(t, err.Error(), "a/f() (src/a.rs:9)")

	err = CheckDuplicates([]*Node{
		{Atom: "x", File: "f", StartLine: 1},
		{Atom: "y", File: "f", StartLine: 2},
		{Atom: "x", File: "f", StartLine: 3},
	})
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []DuplicateEntry{{Atom: "x", File: "f", Line: 1}, {Atom: "x", File: "f", Line: 3}}, dup.Entries)
	assert.NoError(t, CheckDuplicates(nil))
}

func TestAtoms_WriteRead(t *testing.T) {
	reg, idx := sampleInputs(t)
	g, err := Build(reg, idx, Options{WithLocations: true})
	require.NoError(t, err)

	var first, second bytes.Buffer
	require.NoError(t, WriteAtoms(&first, g.Records()))
	require.NoError(t, WriteAtoms(&second, g.Records()))
	assert.Equal(t, first.String(), second.String())
	assert.Contains(t, first.String(), `"lines-start": 1`)
	assert.Contains(t, first.String(), `"code-name": "c/m/helper()"`)
	assert.NotContains(t, first.String(), `"approximate": false`)

	records, err := ReadAtoms(&first)
	require.NoError(t, err)
	assert.Equal(t, g.Records(), records)

	_, err = ReadAtoms(bytes.NewBufferString("{"))
	assert.Error(t, err)
	_, err = ReadAtoms(bytes.NewBufferString(`{"c/f()": {"display-name": "f", "code-path": "src/m.rs"}}`))
	assert.ErrorContains(t, err, "atoms.schema.json")
}
