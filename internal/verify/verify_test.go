package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verimap/internal/extractor"
	"verimap/internal/graph"
)

func sampleIndex() *extractor.Index {
	return extractor.NewIndex([]*extractor.FunctionEntity{
		{Name: "f", File: "src/lib.rs", ModulePath: "lib", StartLine: 10, EndLine: 20, HasEnsures: true},
		{Name: "g", File: "src/lib.rs", ModulePath: "lib", StartLine: 25, EndLine: 35, HasRequires: true},
		{Name: "h", File: "src/lib.rs", ModulePath: "lib", StartLine: 40, EndLine: 45},
		{Name: "t", File: "src/lib.rs", ModulePath: "lib", StartLine: 50, EndLine: 60, HasRequires: true, HasTrustedAssumption: true},
		{Name: "outer", File: "src/other.rs", ModulePath: "other", StartLine: 1, EndLine: 40, HasEnsures: true},
		{Name: "inner", File: "src/other.rs", ModulePath: "other", StartLine: 5, EndLine: 8, HasRequires: true},
	})
}

func names(list []FunctionVerdict) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, v.DisplayName)
	}
	return out
}

func analyze(t *testing.T, transcript string, exitCode int, opts Options) *AnalysisResult {
	t.Helper()
	res, err := NewAnalyzer(opts).Analyze(context.Background(), transcript, exitCode, sampleIndex())
	require.NoError(t, err)
	return res
}

func TestAnalyze_PostconditionFailure(t *testing.T) {
	transcript := "error: postcondition not satisfied\n  --> src/lib.rs:15:5\n"
	res := analyze(t, transcript, 1, Options{})

	assert.Equal(t, StatusVerificationFailed, res.Status)
	require.Len(t, res.VerificationErrors, 1)
	e := res.VerificationErrors[0]
	assert.Equal(t, KindPostconditionFailed, e.Kind)
	assert.Equal(t, "src/lib.rs", e.File)
	assert.Equal(t, 15, e.Line)
	assert.Equal(t, 5, e.Column)
	assert.Equal(t, "f", e.Function)

	assert.Equal(t, []string{"f"}, names(res.Failed))
	assert.Equal(t, []string{"g", "outer", "inner"}, names(res.Verified))
	assert.Equal(t, []string{"t"}, names(res.Unverified))
	assert.Empty(t, res.UnattributedErrors)
	assert.Empty(t, res.CompilationErrors)
}

func TestAnalyze_SuccessSummary(t *testing.T) {
	res := analyze(t, "verification results:: 40 verified, 0 errors\n", 0, Options{})

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.Failed)
	assert.Empty(t, res.UnattributedErrors)
	assert.Equal(t, &Tally{Verified: 40}, res.Summary.Reported)
	assert.Equal(t, 5, res.Summary.TotalFunctions)
}

func TestAnalyze_TrustedAssumption(t *testing.T) {
	// t carries an error and an assumption; the assumption decides.
	transcript := "error: assertion failed\n --> src/lib.rs:55:9\n"
	res := analyze(t, transcript, 1, Options{})

	require.Len(t, res.Unverified, 1)
	assert.Equal(t, "t", res.Unverified[0].DisplayName)
	assert.Len(t, res.Unverified[0].Errors, 1)
	assert.Empty(t, res.Failed)
}

func TestAnalyze_EveryVerdictBucketedOnce(t *testing.T) {
	res := analyze(t, "error: assertion failed\n --> src/other.rs:6:3\n", 1, Options{})

	seen := make(map[string]int)
	for _, v := range res.Verdicts() {
		seen[v.DisplayName]++
	}
	assert.Equal(t, map[string]int{"f": 1, "g": 1, "t": 1, "outer": 1, "inner": 1}, seen)
	assert.Equal(t, []string{"inner"}, names(res.Failed), "innermost span receives the error")
}

func TestAnalyze_ErrorInUnspecifiedHelperFailsEnclosing(t *testing.T) {
	idx := extractor.NewIndex([]*extractor.FunctionEntity{
		{Name: "outer", File: "src/lib.rs", StartLine: 1, EndLine: 30, HasEnsures: true},
		{Name: "helper", File: "src/lib.rs", StartLine: 10, EndLine: 15},
	})
	transcript := "error: assertion failed\n --> src/lib.rs:12:3\n"
	res, err := NewAnalyzer(Options{}).Analyze(context.Background(), transcript, 1, idx)
	require.NoError(t, err)

	assert.Equal(t, []string{"outer"}, names(res.Failed))
	assert.Empty(t, res.Verified)
	assert.Empty(t, res.UnattributedErrors)
	require.Len(t, res.Failed[0].Errors, 1)
	assert.Equal(t, "helper", res.Failed[0].Errors[0].Function)
}

func TestAnalyze_Lookback(t *testing.T) {
	var b strings.Builder
	b.WriteString("error: precondition not satisfied\n")
	for i := 0; i < 11; i++ {
		b.WriteString("   | padding\n")
	}
	b.WriteString("  --> src/lib.rs:30:1\n")

	res := analyze(t, b.String(), 1, Options{})
	require.Len(t, res.VerificationErrors, 1)
	assert.False(t, res.VerificationErrors[0].Located())
	assert.Len(t, res.UnattributedErrors, 1)
	assert.Empty(t, res.Failed)

	res = analyze(t, b.String(), 1, Options{Lookback: 12})
	require.Len(t, res.VerificationErrors, 1)
	assert.Equal(t, 30, res.VerificationErrors[0].Line)
	assert.Equal(t, []string{"g"}, names(res.Failed))
}

func TestAnalyze_WarningOwnsLocation(t *testing.T) {
	transcript := strings.Join([]string{
		"error: assertion failed",
		"warning: unused variable: `x`",
		"  --> src/lib.rs:12:9",
		"",
	}, "\n")
	res := analyze(t, transcript, 0, Options{})

	require.Len(t, res.VerificationErrors, 1)
	assert.False(t, res.VerificationErrors[0].Located())
	require.Len(t, res.CompilationWarnings, 1)
	assert.Equal(t, "unused variable: `x`", res.CompilationWarnings[0].Message)
	assert.Equal(t, 12, res.CompilationWarnings[0].Line)
	assert.Empty(t, res.Failed)
}

func TestAnalyze_CompilationFailure(t *testing.T) {
	transcript := strings.Join([]string{
		"\x1b[1;31merror[E0308]\x1b[0m: mismatched types",
		"  --> crate/src/lib.rs:30:9",
		"   |",
		"30 |     let x: u8 = 1u16;",
		"   |                 ^^^^ expected `u8`, found `u16`",
		"",
		"error: could not compile `demo` (lib) due to 1 previous error",
	}, "\n")
	res := analyze(t, transcript, 101, Options{})

	assert.Equal(t, StatusCompilationFailed, res.Status)
	require.Len(t, res.CompilationErrors, 2)
	assert.Equal(t, "mismatched types", res.CompilationErrors[0].Message)
	assert.Equal(t, "g", res.CompilationErrors[0].Function)
	assert.Len(t, res.CompilationErrors[0].Context, 4)
	assert.Equal(t, "compilation failed for crate: demo", res.CompilationErrors[1].Message)
	assert.Len(t, res.UnattributedErrors, 1)
	assert.Equal(t, []string{"g"}, names(res.Failed))
}

func TestAnalyze_ExitCodeOnly(t *testing.T) {
	res := analyze(t, "Compiling demo v0.1.0\n", 1, Options{})
	assert.Equal(t, StatusCompilationFailed, res.Status)

	res = analyze(t, "Compiling demo v0.1.0\n", 0, Options{})
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestAnalyze_ProcessFailure(t *testing.T) {
	transcript := strings.Join([]string{
		"error: could not compile `demo`",
		"Caused by:",
		"  process didn't exit successfully: `rustc --crate-name demo` (signal: 9, SIGKILL: kill)",
		"memory allocation of 1024 bytes failed",
	}, "\n")
	res := analyze(t, transcript, 101, Options{})

	require.Len(t, res.CompilationErrors, 1)
	msg := res.CompilationErrors[0].Message
	assert.True(t, strings.HasPrefix(msg, "compilation failed for crate: demo"))
	assert.Contains(t, msg, "memory allocation of 1024 bytes failed")
	assert.Equal(t, StatusCompilationFailed, res.Status)
}

func TestAnalyze_SummaryOverridesCargoFailure(t *testing.T) {
	transcript := strings.Join([]string{
		"error: postcondition not satisfied",
		"  --> src/lib.rs:15:5",
		"",
		"verification results:: 3 verified, 1 errors",
		"error: could not compile `demo` (lib) due to 1 previous error",
	}, "\n")
	res := analyze(t, transcript, 1, Options{})

	assert.Equal(t, StatusVerificationFailed, res.Status)
	assert.Empty(t, res.CompilationErrors)
	assert.Equal(t, &Tally{Verified: 3, Errors: 1}, res.Summary.Reported)
}

func TestAnalyze_Filters(t *testing.T) {
	res := analyze(t, "verification results:: 1 verified, 0 errors\n", 0, Options{Module: "other"})
	assert.Equal(t, []string{"outer", "inner"}, names(res.Verified))

	res = analyze(t, "verification results:: 1 verified, 0 errors\n", 0, Options{Function: "g"})
	assert.Equal(t, []string{"g"}, names(res.Verified))
	assert.Equal(t, 1, res.Summary.TotalFunctions)
}

func TestAnalyze_InputErrors(t *testing.T) {
	a := NewAnalyzer(Options{})
	_, err := a.Analyze(context.Background(), "  \n", 0, sampleIndex())
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, "verification results:: 1 verified, 0 errors", 0, sampleIndex())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnrichAndProofs(t *testing.T) {
	res := analyze(t, "error: postcondition not satisfied\n  --> src/lib.rs:15:5\n", 1, Options{})
	atoms := map[string]graph.AtomRecord{
		"c/f()":       {DisplayName: "f", CodePath: "curve/src/lib.rs", CodeText: graph.CodeText{LinesStart: 11}},
		"c/f_far()":   {DisplayName: "f", CodePath: "curve/src/lib.rs", CodeText: graph.CodeText{LinesStart: 30}},
		"c/g()":       {DisplayName: "g", CodePath: "src/lib.rs", CodeText: graph.CodeText{LinesStart: 25}},
		"c/t()":       {DisplayName: "t", CodePath: "src/lib.rs", CodeText: graph.CodeText{LinesStart: 54}},
		"c/other/g()": {DisplayName: "g", CodePath: "src/other.rs", CodeText: graph.CodeText{LinesStart: 25}},
	}
	m := graph.NewAtomMatcher(atoms, -1)

	n := Enrich(res, m)
	assert.Equal(t, 3, n)
	assert.Equal(t, "c/f()", res.Failed[0].CodeName)
	assert.Equal(t, "c/g()", res.Verified[0].CodeName)
	assert.Equal(t, "c/t()", res.Unverified[0].CodeName)

	proofs := ProofsOutput(res, m)
	assert.Equal(t, map[string]ProofEntry{
		"c/f()": {CodePath: "src/lib.rs", CodeLine: 10, Verified: false, Status: ProofFailure},
		"c/g()": {CodePath: "src/lib.rs", CodeLine: 25, Verified: true, Status: ProofSuccess},
		"c/t()": {CodePath: "src/lib.rs", CodeLine: 50, Verified: false, Status: ProofSorries},
	}, proofs)

	_, ok := graph.NewAtomMatcher(atoms, 0).Match("src/lib.rs", "f", 10)
	assert.False(t, ok, "zero tolerance requires the exact line")
}
