package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"parburn/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    basename      TEXT NOT NULL,
    invocation    TEXT NOT NULL,
    status        TEXT NOT NULL,
    error_message TEXT,
    started_at    TEXT NOT NULL,
    finished_at   TEXT
);

CREATE TABLE IF NOT EXISTS sets (
    run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    set_idx      INTEGER NOT NULL,
    state        TEXT NOT NULL,
    members_json TEXT,
    error        TEXT,
    updated_at   TEXT NOT NULL,
    PRIMARY KEY (run_id, set_idx)
);

CREATE TABLE IF NOT EXISTS bundles (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    disc_idx    INTEGER NOT NULL,
    set_idx     INTEGER NOT NULL,
    disc_in_set INTEGER NOT NULL,
    label       TEXT NOT NULL,
    bytes       INTEGER NOT NULL,
    pure_parity INTEGER NOT NULL,
    files_json  TEXT,
    burned_at   TEXT NOT NULL,
    PRIMARY KEY (run_id, disc_idx)
);
`

// Store manages run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run database next to the logs.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureLogDir(); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "parburn.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// CreateRun inserts a new running run and returns it.
func (s *Store) CreateRun(ctx context.Context, basename, invocation string) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		Basename:   basename,
		Invocation: invocation,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, basename, invocation, status, started_at)
         VALUES (?, ?, ?, ?, ?)`,
		run.ID,
		run.Basename,
		run.Invocation,
		run.Status,
		run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the run's terminal status.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, errorMessage string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status,
		nullableString(errorMessage),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// UpsertSet records a set's current state, replacing any earlier record for
// the same run and index.
func (s *Store) UpsertSet(ctx context.Context, rec SetRecord) error {
	members, err := json.Marshal(rec.Members)
	if err != nil {
		return fmt.Errorf("marshal set members: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO sets (run_id, set_idx, state, members_json, error, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT (run_id, set_idx) DO UPDATE SET
             state = excluded.state,
             members_json = excluded.members_json,
             error = excluded.error,
             updated_at = excluded.updated_at`,
		rec.RunID,
		rec.SetIndex,
		rec.State,
		string(members),
		nullableString(rec.Error),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert set: %w", err)
	}
	return nil
}

// RecordBundle persists one burned disc.
func (s *Store) RecordBundle(ctx context.Context, rec BundleRecord) error {
	files, err := json.Marshal(rec.Files)
	if err != nil {
		return fmt.Errorf("marshal bundle files: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO bundles (run_id, disc_idx, set_idx, disc_in_set, label, bytes, pure_parity, files_json, burned_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (run_id, disc_idx) DO UPDATE SET
             set_idx = excluded.set_idx,
             disc_in_set = excluded.disc_in_set,
             label = excluded.label,
             bytes = excluded.bytes,
             pure_parity = excluded.pure_parity,
             files_json = excluded.files_json,
             burned_at = excluded.burned_at`,
		rec.RunID,
		rec.DiscIndex,
		rec.SetIndex,
		rec.DiscInSet,
		rec.Label,
		rec.Bytes,
		boolToInt(rec.PureParity),
		string(files),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record bundle: %w", err)
	}
	return nil
}

// GetRun fetches a run by identifier, nil when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	s.countChildren(ctx, run)
	return run, nil
}

// LatestRun returns the most recently started run, nil when the store is empty.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	s.countChildren(ctx, run)
	return run, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, run := range runs {
		s.countChildren(ctx, run)
	}
	return runs, nil
}

// ListSets returns the set records of a run in set order.
func (s *Store) ListSets(ctx context.Context, runID string) ([]SetRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, set_idx, state, members_json, error, updated_at FROM sets WHERE run_id = ? ORDER BY set_idx`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	defer rows.Close()

	var records []SetRecord
	for rows.Next() {
		var (
			rec        SetRecord
			members    sql.NullString
			errMsg     sql.NullString
			updatedRaw string
		)
		if err := rows.Scan(&rec.RunID, &rec.SetIndex, &rec.State, &members, &errMsg, &updatedRaw); err != nil {
			return nil, err
		}
		if members.Valid {
			if err := json.Unmarshal([]byte(members.String), &rec.Members); err != nil {
				return nil, fmt.Errorf("unmarshal set members: %w", err)
			}
		}
		rec.Error = errMsg.String
		if t, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
			rec.UpdatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListBundles returns a run's discs in burn order.
func (s *Store) ListBundles(ctx context.Context, runID string) ([]BundleRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, disc_idx, set_idx, disc_in_set, label, bytes, pure_parity, files_json, burned_at
         FROM bundles WHERE run_id = ? ORDER BY disc_idx`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var records []BundleRecord
	for rows.Next() {
		var (
			rec        BundleRecord
			pureParity int
			files      sql.NullString
			burnedRaw  string
		)
		if err := rows.Scan(&rec.RunID, &rec.DiscIndex, &rec.SetIndex, &rec.DiscInSet, &rec.Label, &rec.Bytes, &pureParity, &files, &burnedRaw); err != nil {
			return nil, err
		}
		rec.PureParity = pureParity != 0
		if files.Valid {
			if err := json.Unmarshal([]byte(files.String), &rec.Files); err != nil {
				return nil, fmt.Errorf("unmarshal bundle files: %w", err)
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, burnedRaw); err == nil {
			rec.BurnedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const runColumns = "id, basename, invocation, status, error_message, started_at, finished_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		statusStr   string
		errMsg      sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(&run.ID, &run.Basename, &run.Invocation, &statusStr, &errMsg, &startedRaw, &finishedRaw); err != nil {
		return nil, err
	}
	run.Status = RunStatus(statusStr)
	run.ErrorMessage = errMsg.String
	if t, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
		run.StartedAt = t
	}
	if finishedRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedRaw.String); err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}

func (s *Store) countChildren(ctx context.Context, run *Run) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sets WHERE run_id = ?`, run.ID)
	_ = row.Scan(&run.Sets)
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM bundles WHERE run_id = ?`, run.ID)
	_ = row.Scan(&run.Discs)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
