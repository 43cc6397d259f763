package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"verimap/internal/graph"
	"verimap/internal/verify"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			command TEXT,
			root TEXT,
			status TEXT,
			created_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS atoms (
			run_id TEXT,
			atom TEXT,
			display_name TEXT,
			code_module TEXT,
			code_path TEXT,
			start_line INTEGER,
			end_line INTEGER,
			mode TEXT,
			approximate INTEGER,
			details JSON,
			PRIMARY KEY (run_id, atom)
		);`,
		`CREATE TABLE IF NOT EXISTS verdicts (
			run_id TEXT,
			function TEXT,
			display_name TEXT,
			code_path TEXT,
			category TEXT,
			errors INTEGER,
			PRIMARY KEY (run_id, function)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_atoms_path ON atoms(run_id, code_path);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- RunStore Implementation ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, root, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.Root, run.Status, run.CreatedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return run.ID, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.command, r.root, r.status, r.created_at,
			(SELECT COUNT(*) FROM atoms a WHERE a.run_id = r.id),
			(SELECT COUNT(*) FROM verdicts v WHERE v.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC, r.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created int64
		if err := rows.Scan(&r.ID, &r.Command, &r.Root, &r.Status, &created, &r.Atoms, &r.Verdicts); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.CreatedAt = time.Unix(0, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) runExists(ctx context.Context, id string) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// --- SnapshotStore Implementation ---

// atomDetails holds the record fields kept as JSON.
type atomDetails struct {
	Dependencies              []string                   `json:"dependencies"`
	DependenciesWithLocations []graph.DependencyLocation `json:"dependencies-with-locations,omitempty"`
}

// SaveAtoms replaces the atoms snapshot of a run.
func (s *SQLiteStore) SaveAtoms(ctx context.Context, runID string, records map[string]graph.AtomRecord) error {
	if err := s.runExists(ctx, runID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM atoms WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear atoms: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO atoms (run_id, atom, display_name, code_module, code_path, start_line, end_line, mode, approximate, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rec := records[k]
		details, err := json.Marshal(atomDetails{
			Dependencies:              rec.Dependencies,
			DependenciesWithLocations: rec.DependenciesWithLocations,
		})
		if err != nil {
			return fmt.Errorf("failed to encode atom %s: %w", k, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, k, rec.DisplayName, rec.CodeModule, rec.CodePath,
			rec.CodeText.LinesStart, rec.CodeText.LinesEnd, rec.Mode, rec.Approximate, details); err != nil {
			return fmt.Errorf("failed to insert atom %s: %w", k, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadAtoms(ctx context.Context, runID string) (map[string]graph.AtomRecord, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT atom, display_name, code_module, code_path, start_line, end_line, mode, approximate, details
		FROM atoms WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query atoms: %w", err)
	}
	defer rows.Close()

	out := make(map[string]graph.AtomRecord)
	for rows.Next() {
		var (
			atom    string
			rec     graph.AtomRecord
			details []byte
		)
		if err := rows.Scan(&atom, &rec.DisplayName, &rec.CodeModule, &rec.CodePath,
			&rec.CodeText.LinesStart, &rec.CodeText.LinesEnd, &rec.Mode, &rec.Approximate, &details); err != nil {
			return nil, fmt.Errorf("failed to scan atom: %w", err)
		}
		var d atomDetails
		if len(details) > 0 {
			if err := json.Unmarshal(details, &d); err != nil {
				return nil, fmt.Errorf("failed to decode atom %s: %w", atom, err)
			}
		}
		rec.Dependencies = d.Dependencies
		if rec.Dependencies == nil {
			rec.Dependencies = []string{}
		}
		rec.DependenciesWithLocations = d.DependenciesWithLocations
		out[atom] = rec
	}
	return out, rows.Err()
}

// SaveVerdicts replaces the verdicts snapshot of a run and records the
// analysis status on the run.
func (s *SQLiteStore) SaveVerdicts(ctx context.Context, runID string, res *verify.AnalysisResult) error {
	if err := s.runExists(ctx, runID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM verdicts WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear verdicts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO verdicts (run_id, function, display_name, code_path, category, errors)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	seen := make(map[string]bool)
	for _, v := range res.Verdicts() {
		key := verdictKey(v)
		if seen[key] {
			// Another verdict already holds the atom; keep this one under its
			// location.
			key = locationKey(v)
		}
		if seen[key] {
			return fmt.Errorf("duplicate verdict %s", key)
		}
		seen[key] = true
		if _, err := stmt.ExecContext(ctx, runID, key, v.DisplayName, v.CodePath, string(v.Category), len(v.Errors)); err != nil {
			return fmt.Errorf("failed to insert verdict %s: %w", v.DisplayName, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE runs SET status = ? WHERE id = ?`, string(res.Status), runID); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	return tx.Commit()
}

// verdictKey prefers the atom and falls back to the display name at its
// location.
func verdictKey(v verify.FunctionVerdict) string {
	if v.CodeName != "" {
		return v.CodeName
	}
	return locationKey(v)
}

func locationKey(v verify.FunctionVerdict) string {
	return fmt.Sprintf("%s@%s:%d", v.DisplayName, v.CodePath, v.CodeText.LinesStart)
}

func (s *SQLiteStore) LoadVerdicts(ctx context.Context, runID string) ([]VerdictRow, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT function, display_name, code_path, category, errors
		FROM verdicts WHERE run_id = ? ORDER BY function`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer rows.Close()

	var out []VerdictRow
	for rows.Next() {
		var v VerdictRow
		var category string
		if err := rows.Scan(&v.Function, &v.DisplayName, &v.CodePath, &category, &v.Errors); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		v.Category = verify.Category(category)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CompareRuns(ctx context.Context, before, after string) ([]VerdictChange, error) {
	old, err := s.LoadVerdicts(ctx, before)
	if err != nil {
		return nil, err
	}
	cur, err := s.LoadVerdicts(ctx, after)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]*VerdictChange)
	for _, v := range old {
		changes[v.Function] = &VerdictChange{Function: v.Function, Before: v.Category}
	}
	for _, v := range cur {
		c, ok := changes[v.Function]
		if !ok {
			c = &VerdictChange{Function: v.Function}
			changes[v.Function] = c
		}
		c.After = v.Category
	}

	var out []VerdictChange
	for _, c := range changes {
		if c.Before != c.After {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Function < out[j].Function })
	return out, nil
}
