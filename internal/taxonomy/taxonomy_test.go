package taxonomy

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verimap/internal/extractor"
	"verimap/internal/graph"
)

func calls(names ...string) []extractor.CallRef {
	out := make([]extractor.CallRef, 0, len(names))
	for _, n := range names {
		out = append(out, extractor.CallRef{Name: n, FullPath: "spec::" + n})
	}
	return out
}

func execFn(ensures ...string) *extractor.FunctionEntity {
	return &extractor.FunctionEntity{
		Name:         "from_bytes",
		File:         "src/scalar.rs",
		Kind:         extractor.KindExec,
		Context:      extractor.ContextImpl,
		HasEnsures:   len(ensures) > 0,
		EnsuresCalls: calls(ensures...),
	}
}

const twoRules = `
[taxonomy]
version = "1"

[[taxonomy.rules]]
label = "data-invariant"
description = "d"
trust = "high"
[taxonomy.rules.match]
ensures_calls_contain = ["is_canonical"]

[[taxonomy.rules]]
label = "functional-correctness"
description = "f"
trust = "high"
[taxonomy.rules.match]
ensures_calls_contain = ["_to_nat"]
mode = ["exec"]
`

func TestClassify(t *testing.T) {
	tax, err := Parse(twoRules)
	require.NoError(t, err)

	assert.Equal(t, []string{"data-invariant", "functional-correctness"},
		tax.Classify(execFn("is_canonical_scalar52", "scalar52_to_nat")))
	assert.Equal(t, []string{"functional-correctness"}, tax.Classify(execFn("scalar52_to_nat")))

	proof := execFn("scalar52_to_nat")
	proof.Kind = extractor.KindProof
	assert.Empty(t, tax.Classify(proof))
}

func TestClassify_StopWordsAndFlags(t *testing.T) {
	tax, err := Parse(`
[taxonomy]
version = "1"
stop_words = ["len", "old"]

[[taxonomy.rules]]
label = "memory-safety"
description = "m"
trust = "medium"
[taxonomy.rules.match]
ensures_calls_empty = true
has_trusted_assumption = false
mode = ["exec"]
`)
	require.NoError(t, err)

	assert.Equal(t, []string{"memory-safety"}, tax.Classify(execFn("len", "old")))
	assert.Empty(t, tax.Classify(execFn("len", "spec_foo")))

	trusted := execFn()
	trusted.HasTrustedAssumption = true
	assert.Empty(t, tax.Classify(trusted))
}

func TestClassify_CallKinds(t *testing.T) {
	tax, err := Parse(`
[taxonomy]
[[taxonomy.rules]]
label = "method"
[taxonomy.rules.match]
ensures_method_calls_contain = ["view"]

[[taxonomy.rules]]
label = "path"
[taxonomy.rules.match]
requires_calls_full_contain = ["field::"]
context = ["impl"]
`)
	require.NoError(t, err)

	e := execFn()
	e.EnsuresCalls = []extractor.CallRef{{Name: "view", FullPath: "view", Method: true}}
	e.RequiresCalls = []extractor.CallRef{{Name: "fe_bounded", FullPath: "field::fe_bounded"}}
	assert.Equal(t, []string{"method", "path"}, tax.Classify(e))

	e.EnsuresCalls[0].Method = false
	assert.Equal(t, []string{"path"}, tax.Classify(e))
}

func TestExplain(t *testing.T) {
	tax, err := Parse(twoRules)
	require.NoError(t, err)

	ex := tax.Explain(execFn("is_canonical_scalar52"))
	require.Len(t, ex, 2)
	assert.True(t, ex[0].Matched)
	assert.False(t, ex[1].Matched)
	assert.Equal(t, []string{`ensures_calls_contain=["_to_nat"]`}, ex[1].Failed())
	assert.Equal(t, []Check{
		{Criterion: `mode=["exec"]`, Passed: true},
		{Criterion: `ensures_calls_contain=["_to_nat"]`, Passed: false},
	}, ex[1].Checks)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("[taxonomy]\n[[taxonomy.rules]]\nlabel = \"x\"\n[taxonomy.rules.match]\nensure_calls = [\"a\"]\n")
	assert.ErrorContains(t, err, "unknown taxonomy keys")

	_, err = Parse("[taxonomy]\n[[taxonomy.rules]]\ndescription = \"no label\"\n")
	assert.ErrorContains(t, err, "no label")

	_, err = Parse("[taxonomy]\n[[taxonomy.rules]]\nlabel = \"a\"\n[[taxonomy.rules]]\nlabel = \"a\"\n")
	assert.ErrorContains(t, err, "duplicate")

	_, err = Parse("[taxonomy")
	assert.Error(t, err)
}

func TestLoadAndDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.toml")
	require.NoError(t, os.WriteFile(path, []byte(twoRules), 0o644))
	tax, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1", tax.Version)
	assert.Equal(t, []string{"data-invariant", "functional-correctness"}, tax.Labels())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	def := Default()
	assert.Contains(t, def.Labels(), "trusted")
	lemma := &extractor.FunctionEntity{Name: "lemma_x", Kind: extractor.KindProof, HasEnsures: true}
	assert.Equal(t, []string{"lemma"}, def.Classify(lemma))
}

func TestSpecify(t *testing.T) {
	idx := extractor.NewIndex([]*extractor.FunctionEntity{
		{Name: "lemma_x", File: "src/a.rs", StartLine: 3, EndLine: 12, Kind: extractor.KindProof,
			HasEnsures: true, EnsuresText: "x > 0"},
		{Name: "helper", File: "src/a.rs", StartLine: 20, EndLine: 25},
		{Name: "orphan", File: "src/a.rs", StartLine: 30, EndLine: 31},
	})
	m := graph.NewAtomMatcher(map[string]graph.AtomRecord{
		"c/a/lemma_x()": {DisplayName: "lemma_x", CodePath: "crate/src/a.rs", CodeText: graph.CodeText{LinesStart: 11}},
		"c/a/helper()":  {DisplayName: "helper", CodePath: "crate/src/a.rs", CodeText: graph.CodeText{LinesStart: 20}},
	}, -1)

	out, st := Specify(idx, m, SpecifyOptions{Taxonomy: Default()})
	assert.Equal(t, SpecifyStats{Matched: 2, Unmatched: 1, Specified: 1, SpecifiedLabeled: 1, Labeled: 1}, st)
	require.Contains(t, out, "c/a/lemma_x()")
	assert.Equal(t, []string{"lemma"}, out["c/a/lemma_x()"].SpecLabels)
	assert.Empty(t, out["c/a/lemma_x()"].EnsuresText)
	assert.Equal(t, "x > 0", idx.All[0].EnsuresText, "source entities are not modified")

	out, _ = Specify(idx, m, SpecifyOptions{WithText: true})
	assert.Equal(t, "x > 0", out["c/a/lemma_x()"].EnsuresText)
	assert.Nil(t, out["c/a/helper()"].SpecLabels)
}

func TestSpecify_AtomConflict(t *testing.T) {
	idx := extractor.NewIndex([]*extractor.FunctionEntity{
		{Name: "helper", File: "src/a.rs", StartLine: 18, EndLine: 30},
		{Name: "helper", File: "src/a.rs", StartLine: 20, EndLine: 25},
	})
	m := graph.NewAtomMatcher(map[string]graph.AtomRecord{
		"c/a/helper()": {DisplayName: "helper", CodePath: "src/a.rs", CodeText: graph.CodeText{LinesStart: 20}},
	}, -1)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	out, st := Specify(idx, m, SpecifyOptions{Logger: logger})

	assert.Equal(t, SpecifyStats{Matched: 1, Conflicts: 1}, st)
	require.Contains(t, out, "c/a/helper()")
	assert.Equal(t, 18, out["c/a/helper()"].StartLine)
	assert.Contains(t, logs.String(), "dropped=src/a.rs:20")
}
