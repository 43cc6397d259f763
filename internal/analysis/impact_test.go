package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verimap/internal/graph"
)

const sampleDiff = `diff --git a/curve/src/field.rs b/curve/src/field.rs
index 1111111..2222222 100644
--- a/curve/src/field.rs
+++ b/curve/src/field.rs
@@ -12,0 +13,2 @@ fn mul
+    assert(x < p);
+    assert(y < p);
@@ -40,2 +41,0 @@ fn reduce
-    let t = x;
-    let u = t;
diff --git a/curve/src/old.rs b/curve/src/old.rs
deleted file mode 100644
index 3333333..0000000
--- a/curve/src/old.rs
+++ /dev/null
@@ -1,2 +0,0 @@
-fn legacy() {
-}
`

func TestParseDiff(t *testing.T) {
	files, err := ParseDiff([]byte(sampleDiff))
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "curve/src/field.rs", files[0].Path)
	assert.Equal(t, []int{13, 14, 42}, files[0].Lines)
	assert.False(t, files[0].Deleted)

	assert.Equal(t, "curve/src/old.rs", files[1].Path)
	assert.True(t, files[1].Deleted)
}

func TestParseDiff_NewFile(t *testing.T) {
	files, err := ParseDiff([]byte(`--- /dev/null
+++ b/src/new.rs
@@ -0,0 +1,2 @@
+fn a() {}
+fn b() {}
`))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].New)
	assert.Equal(t, "src/new.rs", files[0].Path)
	assert.Equal(t, []int{1, 2}, files[0].Lines)
}

func records() map[string]graph.AtomRecord {
	span := func(s, e int) graph.CodeText { return graph.CodeText{LinesStart: s, LinesEnd: e} }
	return map[string]graph.AtomRecord{
		"c/field/mul()":    {CodePath: "curve/src/field.rs", CodeText: span(10, 20)},
		"c/field/reduce()": {CodePath: "curve/src/field.rs", CodeText: span(38, 45)},
		"c/field/square()": {CodePath: "curve/src/field.rs", CodeText: span(50, 55), Dependencies: []string{"c/field/mul()"}},
		"c/point/add()":    {CodePath: "curve/src/point.rs", CodeText: span(1, 30), Dependencies: []string{"c/field/square()", "vstd/len()"}},
		"c/point/double()": {CodePath: "curve/src/point.rs", CodeText: span(31, 40), Dependencies: []string{"c/point/add()", "c/field/reduce()"}},
		"c/old/legacy()":   {CodePath: "curve/src/old.rs", CodeText: span(1, 2)},
		"c/misc/other()":   {CodePath: "curve/src/misc.rs", CodeText: span(1, 9)},
	}
}

func TestAnalyzeImpact(t *testing.T) {
	changes, err := ParseDiff([]byte(sampleDiff))
	require.NoError(t, err)

	report := NewAnalyzer(records()).AnalyzeImpact(changes)

	assert.Equal(t, []ImpactedAtom{
		{Atom: "c/field/mul()", CodePath: "curve/src/field.rs", Lines: []int{13, 14}},
		{Atom: "c/field/reduce()", CodePath: "curve/src/field.rs", Lines: []int{42}},
		{Atom: "c/old/legacy()", CodePath: "curve/src/old.rs", Lines: []int{1}},
	}, report.DirectlyAffected)

	assert.Equal(t, []ImpactedAtom{
		{Atom: "c/field/square()", CodePath: "curve/src/field.rs", Depth: 1, Via: "c/field/mul()"},
		{Atom: "c/point/add()", CodePath: "curve/src/point.rs", Depth: 2, Via: "c/field/square()"},
		{Atom: "c/point/double()", CodePath: "curve/src/point.rs", Depth: 1, Via: "c/field/reduce()"},
	}, report.IndirectlyAffected)
}

func TestAnalyzeImpact_MaxDepthAndSuffixPaths(t *testing.T) {
	a := NewAnalyzer(records())
	a.MaxDepth = 1
	report := a.AnalyzeImpact([]ChangedFile{{Path: "src/field.rs", Lines: []int{15}}})

	require.Len(t, report.DirectlyAffected, 1)
	assert.Equal(t, "c/field/mul()", report.DirectlyAffected[0].Atom)
	require.Len(t, report.IndirectlyAffected, 1)
	assert.Equal(t, "c/field/square()", report.IndirectlyAffected[0].Atom)

	empty := a.AnalyzeImpact(nil)
	assert.Empty(t, empty.DirectlyAffected)
	assert.NotNil(t, empty.IndirectlyAffected)
}
