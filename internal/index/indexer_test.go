package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verimap/internal/crawler"
	"verimap/internal/extractor"
	"verimap/internal/graph"
	"verimap/internal/scip"
	"verimap/internal/symbols"
)

const libSource = `verus! {

pub open spec fn double(x: int) -> int {
    x * 2
}

proof fn lemma_double(x: int)
    requires
        x > 0,
    ensures
        double(x) > x,
{
}

} // verus!
`

const libRecords = `[
  {"symbol": "rust-analyzer cargo c 0.1.0 double().", "display-name": "double", "file": "src/lib.rs", "line": 3},
  {"symbol": "rust-analyzer cargo c 0.1.0 lemma_double().", "display-name": "lemma_double", "file": "src/lib.rs", "line": 7,
   "calls": [{"symbol": "rust-analyzer cargo c 0.1.0 double().", "line": 11, "column": 8}]}
]`

func newTestIndexer(t *testing.T) (*Indexer, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "lib.rs"), []byte(libSource), 0o644))

	c := crawler.NewCrawler(extractor.NewExtractor(extractor.DefaultOptions()), crawler.Options{Workers: 2})
	return NewIndexer(c, Options{WithLocations: true}), root
}

func TestIndexer_BuildGraph(t *testing.T) {
	idx, root := newTestIndexer(t)
	in, err := scip.Parse([]byte(libRecords))
	require.NoError(t, err)

	res, err := idx.BuildGraph(context.Background(), root, in)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Len(t, res.Index.All, 2)

	records := res.Graph.Records()
	require.Contains(t, records, "c/double()")
	require.Contains(t, records, "c/lemma_double()")

	double := records["c/double()"]
	assert.Equal(t, "spec", double.Mode)
	assert.Equal(t, graph.CodeText{LinesStart: 3, LinesEnd: 5}, double.CodeText)
	assert.False(t, double.Approximate)

	lemma := records["c/lemma_double()"]
	assert.Equal(t, "proof", lemma.Mode)
	assert.Equal(t, []string{"c/double()"}, lemma.Dependencies)
	assert.Equal(t, []graph.DependencyLocation{
		{CodeName: "c/double()", Location: graph.LocationPostcondition, Line: 11},
	}, lemma.DependenciesWithLocations)
}

func TestIndexer_BuildGraph_Collision(t *testing.T) {
	idx, root := newTestIndexer(t)
	in := &scip.Input{Records: []symbols.RawIndexSymbol{
		{Symbol: "c/double().", DisplayName: "double", File: "src/lib.rs", Line: 3},
		{Symbol: "c/double().", DisplayName: "double", File: "src/lib.rs", Line: 3},
	}}

	_, err := idx.BuildGraph(context.Background(), root, in)
	var collision *symbols.CollisionError
	require.ErrorAs(t, err, &collision)
}

func TestAttachHints(t *testing.T) {
	entities := extractor.NewIndex([]*extractor.FunctionEntity{
		{Name: "mul", File: "src/scalar.rs", StartLine: 10, EndLine: 14, SelfType: "&Scalar", TraitName: "Mul<&Point>"},
		{Name: "mul", File: "src/scalar.rs", StartLine: 20, EndLine: 24, SelfType: "&Point", TraitName: "Mul<&Scalar>"},
	})
	raws := []symbols.RawIndexSymbol{
		{Symbol: "c/Mul#mul().", DisplayName: "mul", File: "crate/src/scalar.rs", Line: 11},
		{Symbol: "c/Mul#mul().", DisplayName: "mul", File: "crate/src/scalar.rs", Line: 21, SelfType: "&Given"},
		{Symbol: "c/other().", DisplayName: "other", File: "crate/src/scalar.rs", Line: 12},
	}

	out := AttachHints(raws, entities)
	assert.Equal(t, "&Scalar", out[0].SelfType)
	assert.Equal(t, "Mul<&Point>", out[0].Trait)
	assert.Equal(t, "&Given", out[1].SelfType)
	assert.Equal(t, "Mul<&Scalar>", out[1].Trait)
	assert.Empty(t, out[2].SelfType)
	assert.Empty(t, raws[0].SelfType, "input must not be modified")
}

func TestSaveLoadAtoms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atoms.json")
	records := map[string]graph.AtomRecord{
		"c/f()": {
			DisplayName:  "f",
			Dependencies: []string{"c/g()"},
			CodeModule:   "m",
			CodePath:     "src/m.rs",
			CodeText:     graph.CodeText{LinesStart: 1, LinesEnd: 4},
			Mode:         "exec",
		},
	}
	require.NoError(t, SaveAtoms(path, records))

	loaded, err := LoadAtoms(path)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)

	_, err = LoadAtoms(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
