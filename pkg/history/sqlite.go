// Package history persists terminal run summaries, extraction snapshots and
// archived asset metadata in a local SQLite database.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding run, extraction and asset history.
type Store struct {
	db   *sql.DB
	keep int
}

// Open opens (or creates) the history database at path and runs pending
// migrations. Pass ":memory:" for an in-memory database (used by tests).
// keepRuns caps how many runs survive pruning; zero disables it.
func Open(path string, keepRuns int) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, keep: keepRuns}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// formatTime renders t for storage. Zero times become the empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// --- Runs ---

// SaveRun upserts a run summary and prunes history beyond the keep limit.
func (s *Store) SaveRun(r RunRecord) error {
	queuedAt := r.QueuedAt
	if queuedAt.IsZero() {
		queuedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, project_url, state, error, summary, steps_json, queued_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			error = excluded.error,
			summary = excluded.summary,
			steps_json = excluded.steps_json,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		r.ID, r.ProjectURL, r.State, r.Error, r.Summary, r.StepsJSON,
		formatTime(queuedAt), formatTime(r.StartedAt), formatTime(r.FinishedAt),
	)
	if err != nil {
		return err
	}
	return s.pruneRuns()
}

// pruneRuns drops the oldest runs past the keep limit, together with the
// assets they captured. Assets keyed to archive passes are untouched.
func (s *Store) pruneRuns() error {
	if s.keep <= 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning prune transaction: %w", err)
	}
	defer tx.Rollback()

	doomed := `SELECT id FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY queued_at DESC LIMIT ?)`
	if _, err := tx.Exec(`DELETE FROM assets WHERE run_id IN (`+doomed+`)`, s.keep); err != nil {
		return fmt.Errorf("pruning assets: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id IN (`+doomed+`)`, s.keep); err != nil {
		return fmt.Errorf("pruning runs: %w", err)
	}
	return tx.Commit()
}

// Run returns one run by ID.
func (s *Store) Run(id string) (RunRecord, error) {
	var r RunRecord
	var queuedAt, startedAt, finishedAt string
	err := s.db.QueryRow(`
		SELECT id, project_url, state, error, summary, steps_json, queued_at, started_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.ProjectURL, &r.State, &r.Error, &r.Summary, &r.StepsJSON, &queuedAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, err
	}
	if r.QueuedAt, err = parseTime(queuedAt); err != nil {
		return RunRecord{}, fmt.Errorf("parsing queued_at: %w", err)
	}
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return RunRecord{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if r.FinishedAt, err = parseTime(finishedAt); err != nil {
		return RunRecord{}, fmt.Errorf("parsing finished_at: %w", err)
	}
	return r, nil
}

// RecentRuns returns up to limit runs, most recently queued first.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, project_url, state, error, summary, steps_json, queued_at, started_at, finished_at
		FROM runs ORDER BY queued_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RunRecord
	for rows.Next() {
		var r RunRecord
		var queuedAt, startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.ProjectURL, &r.State, &r.Error, &r.Summary, &r.StepsJSON, &queuedAt, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if r.QueuedAt, err = parseTime(queuedAt); err != nil {
			return nil, fmt.Errorf("parsing queued_at: %w", err)
		}
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if r.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Extractions ---

// SaveExtraction records one extraction snapshot, pruning to the keep limit.
func (s *Store) SaveExtraction(e ExtractionRecord) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO extractions (id, folders_json, result_json, total_folders, total_files, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.FoldersJSON, e.ResultJSON, e.TotalFolders, e.TotalFiles, formatTime(createdAt),
	)
	if err != nil {
		return err
	}
	if s.keep <= 0 {
		return nil
	}
	_, err = s.db.Exec(`DELETE FROM extractions WHERE id NOT IN
		(SELECT id FROM extractions ORDER BY created_at DESC LIMIT ?)`, s.keep)
	return err
}

// RecentExtractions returns up to limit extraction snapshots, newest first.
func (s *Store) RecentExtractions(limit int) ([]ExtractionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, folders_json, result_json, total_folders, total_files, created_at
		FROM extractions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ExtractionRecord
	for rows.Next() {
		var e ExtractionRecord
		var createdAt string
		if err := rows.Scan(&e.ID, &e.FoldersJSON, &e.ResultJSON, &e.TotalFolders, &e.TotalFiles, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// --- Assets ---

// SaveAsset records one archived asset.
func (s *Store) SaveAsset(a AssetRecord) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO assets (run_id, folder, file_name, size, storage_url, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.Folder, a.FileName, a.Size, a.StorageURL, a.Text, formatTime(createdAt),
	)
	return err
}

// AssetsByRun returns the assets captured by one run or archive pass, in
// insertion order.
func (s *Store) AssetsByRun(runID string) ([]AssetRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, folder, file_name, size, storage_url, text, created_at
		FROM assets WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AssetRecord
	for rows.Next() {
		var a AssetRecord
		var createdAt string
		if err := rows.Scan(&a.ID, &a.RunID, &a.Folder, &a.FileName, &a.Size, &a.StorageURL, &a.Text, &createdAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}
