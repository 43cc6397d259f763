package storage

import (
	"context"
	"time"

	"verimap/internal/graph"
	"verimap/internal/verify"
)

// Run is one recorded invocation.
type Run struct {
	ID        string
	Command   string
	Root      string
	Status    string
	Atoms     int
	Verdicts  int
	CreatedAt time.Time
}

// VerdictRow is one stored function verdict.
type VerdictRow struct {
	Function    string
	DisplayName string
	CodePath    string
	Category    verify.Category
	Errors      int
}

// VerdictChange is a function whose category differs between two runs.
// An empty side means the function was absent from that run.
type VerdictChange struct {
	Function string
	Before   verify.Category
	After    verify.Category
}

// Store persists run snapshots.
type Store interface {
	RunStore
	SnapshotStore
	Close() error
}

// RunStore records invocations.
type RunStore interface {
	// CreateRun inserts a run and returns its id.
	CreateRun(ctx context.Context, run Run) (string, error)

	// FinishRun records the final status of a run.
	FinishRun(ctx context.Context, id, status string) error

	// ListRuns returns the newest runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// SnapshotStore persists the atoms and verdicts of a run.
type SnapshotStore interface {
	SaveAtoms(ctx context.Context, runID string, records map[string]graph.AtomRecord) error
	LoadAtoms(ctx context.Context, runID string) (map[string]graph.AtomRecord, error)

	SaveVerdicts(ctx context.Context, runID string, res *verify.AnalysisResult) error
	LoadVerdicts(ctx context.Context, runID string) ([]VerdictRow, error)

	// CompareRuns lists verdict changes from one run to another.
	CompareRuns(ctx context.Context, before, after string) ([]VerdictChange, error)
}
