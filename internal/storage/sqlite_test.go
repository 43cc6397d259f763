package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verimap/internal/graph"
	"verimap/internal/verify"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func verdict(name, atom string, cat verify.Category, errs int) verify.FunctionVerdict {
	v := verify.FunctionVerdict{DisplayName: name, CodeName: atom, CodePath: "src/lib.rs", Category: cat}
	for i := 0; i < errs; i++ {
		v.Errors = append(v.Errors, verify.VerificationError{Kind: verify.KindPostconditionFailed})
	}
	return v
}

func TestSQLiteStore_AtomsSnapshot(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.CreateRun(ctx, Run{Command: "atomize", Root: "/src/curve"})
	require.NoError(t, err)
	require.Len(t, id, 36)

	first := map[string]graph.AtomRecord{
		"c/m/a()": {DisplayName: "a", CodePath: "src/m.rs", Mode: "exec",
			CodeText:     graph.CodeText{LinesStart: 1, LinesEnd: 10},
			Dependencies: []string{"c/m/b()"},
			DependenciesWithLocations: []graph.DependencyLocation{
				{CodeName: "c/m/b()", Location: graph.LocationBody, Line: 4},
			}},
		"c/m/b()": {DisplayName: "b", CodePath: "src/m.rs", Mode: "spec", Approximate: true,
			CodeText: graph.CodeText{LinesStart: 12, LinesEnd: 12}},
	}
	require.NoError(t, store.SaveAtoms(ctx, id, first))

	loaded, err := store.LoadAtoms(ctx, id)
	require.NoError(t, err)
	first["c/m/b()"] = withDeps(first["c/m/b()"])
	assert.Equal(t, first, loaded)

	// Saving again replaces the snapshot.
	second := map[string]graph.AtomRecord{"c/m/c()": {DisplayName: "c", Dependencies: []string{}}}
	require.NoError(t, store.SaveAtoms(ctx, id, second))
	loaded, err = store.LoadAtoms(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, second, loaded)
}

func withDeps(r graph.AtomRecord) graph.AtomRecord {
	r.Dependencies = []string{}
	return r
}

func TestSQLiteStore_VerdictsAndCompare(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	before, err := store.CreateRun(ctx, Run{Command: "verify", CreatedAt: base})
	require.NoError(t, err)
	after, err := store.CreateRun(ctx, Run{Command: "verify", CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	require.NoError(t, store.SaveVerdicts(ctx, before, &verify.AnalysisResult{
		Status:   verify.StatusVerificationFailed,
		Failed:   []verify.FunctionVerdict{verdict("f", "c/m/f()", verify.CategoryFailed, 2)},
		Verified: []verify.FunctionVerdict{verdict("g", "c/m/g()", verify.CategoryVerified, 0)},
	}))
	require.NoError(t, store.SaveVerdicts(ctx, after, &verify.AnalysisResult{
		Status: verify.StatusSuccess,
		Verified: []verify.FunctionVerdict{
			verdict("f", "c/m/f()", verify.CategoryVerified, 0),
			verdict("g", "c/m/g()", verify.CategoryVerified, 0),
			verdict("h", "", verify.CategoryVerified, 0),
		},
	}))

	rows, err := store.LoadVerdicts(ctx, before)
	require.NoError(t, err)
	assert.Equal(t, []VerdictRow{
		{Function: "c/m/f()", DisplayName: "f", CodePath: "src/lib.rs", Category: verify.CategoryFailed, Errors: 2},
		{Function: "c/m/g()", DisplayName: "g", CodePath: "src/lib.rs", Category: verify.CategoryVerified},
	}, rows)

	changes, err := store.CompareRuns(ctx, before, after)
	require.NoError(t, err)
	assert.Equal(t, []VerdictChange{
		{Function: "c/m/f()", Before: verify.CategoryFailed, After: verify.CategoryVerified},
		{Function: "h@src/lib.rs:0", After: verify.CategoryVerified},
	}, changes)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, after, runs[0].ID)
	assert.Equal(t, string(verify.StatusSuccess), runs[0].Status)
	assert.Equal(t, 3, runs[0].Verdicts)
	assert.True(t, runs[1].CreatedAt.Equal(base))

	runs, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLiteStore_UnknownRun(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	err := store.SaveAtoms(ctx, "missing", nil)
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = store.LoadVerdicts(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.ErrorIs(t, store.FinishRun(ctx, "missing", "success"), ErrRunNotFound)

	id, err := store.CreateRun(ctx, Run{Command: "run"})
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(ctx, id, "success"))
}

func TestSQLiteStore_VerdictsSharingAnAtom(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id, err := store.CreateRun(ctx, Run{Command: "verify"})
	require.NoError(t, err)

	other := verdict("f", "c/m/f()", verify.CategoryVerified, 0)
	other.CodeText.LinesStart = 40
	require.NoError(t, store.SaveVerdicts(ctx, id, &verify.AnalysisResult{
		Status:   verify.StatusVerificationFailed,
		Failed:   []verify.FunctionVerdict{verdict("f", "c/m/f()", verify.CategoryFailed, 1)},
		Verified: []verify.FunctionVerdict{other},
	}))

	rows, err := store.LoadVerdicts(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.ElementsMatch(t, []string{"c/m/f()", "f@src/lib.rs:40"}, []string{rows[0].Function, rows[1].Function})
}
