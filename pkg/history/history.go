// Package history keeps a SQLite record of project coverage over time, one
// snapshot per distinct resultset.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/model"
)

// Snapshot is the project state recorded for one resultset.
type Snapshot struct {
	ID                int64      `json:"id" yaml:"id"`
	Fingerprint       string     `json:"fingerprint" yaml:"fingerprint"`
	ResultsetPath     string     `json:"resultset" yaml:"resultset"`
	CoverageTimestamp int64      `json:"coverage_timestamp" yaml:"coverage_timestamp"`
	RecordedAt        time.Time  `json:"recorded_at" yaml:"recorded_at"`
	Covered           int        `json:"covered" yaml:"covered"`
	Total             int        `json:"total" yaml:"total"`
	Percentage        float64    `json:"percentage" yaml:"percentage"`
	FilesTotal        int        `json:"files_total" yaml:"files_total"`
	FilesStale        int        `json:"files_stale" yaml:"files_stale"`
	SuiteNames        []string   `json:"suites" yaml:"suites"`
	Files             []FileStat `json:"files,omitempty" yaml:"files,omitempty"`
}

// FileStat is one file's coverage within a snapshot.
type FileStat struct {
	Path       string           `json:"file" yaml:"file"`
	Covered    int              `json:"covered" yaml:"covered"`
	Total      int              `json:"total" yaml:"total"`
	Percentage float64          `json:"percentage" yaml:"percentage"`
	Stale      coverage.Verdict `json:"stale" yaml:"stale"`
}

// FilePoint is one file's coverage at one snapshot.
type FilePoint struct {
	Fingerprint       string           `json:"fingerprint" yaml:"fingerprint"`
	CoverageTimestamp int64            `json:"coverage_timestamp" yaml:"coverage_timestamp"`
	RecordedAt        time.Time        `json:"recorded_at" yaml:"recorded_at"`
	Covered           int              `json:"covered" yaml:"covered"`
	Total             int              `json:"total" yaml:"total"`
	Percentage        float64          `json:"percentage" yaml:"percentage"`
	Stale             coverage.Verdict `json:"stale" yaml:"stale"`
}

// FromList builds a snapshot from a listing. File paths are stored as
// returned by rel so snapshots survive moving the checkout.
func FromList(list *model.ListResult, suites []string, rel func(string) string, now time.Time) Snapshot {
	s := Snapshot{
		Fingerprint:       list.Fingerprint,
		ResultsetPath:     list.ResultsetPath,
		CoverageTimestamp: list.Timestamp,
		RecordedAt:        now.UTC(),
		SuiteNames:        suites,
	}
	for _, r := range list.Files {
		s.Covered += r.Covered
		s.Total += r.Total
		s.FilesTotal++
		if r.Stale.Stale() {
			s.FilesStale++
		}
		s.Files = append(s.Files, FileStat{
			Path:       rel(r.File),
			Covered:    r.Covered,
			Total:      r.Total,
			Percentage: r.Percentage,
			Stale:      r.Stale,
		})
	}
	s.Percentage = coverage.Percentage(s.Covered, s.Total)
	return s
}

// Store is a history database handle.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or upgrades the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

const schemaVersion = 2

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

		CREATE TABLE IF NOT EXISTS snapshots (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint        TEXT NOT NULL UNIQUE,
			resultset_path     TEXT NOT NULL DEFAULT '',
			coverage_timestamp INTEGER NOT NULL DEFAULT 0,
			recorded_at        TEXT NOT NULL DEFAULT '',
			covered_lines      INTEGER NOT NULL DEFAULT 0,
			total_lines        INTEGER NOT NULL DEFAULT 0,
			coverage_pct       REAL NOT NULL DEFAULT 0.0,
			files_total        INTEGER NOT NULL DEFAULT 0,
			files_stale        INTEGER NOT NULL DEFAULT 0,
			suites_json        TEXT NOT NULL DEFAULT '[]'
		);

		CREATE TABLE IF NOT EXISTS file_stats (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id   INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			file_path     TEXT NOT NULL,
			covered_lines INTEGER NOT NULL DEFAULT 0,
			total_lines   INTEGER NOT NULL DEFAULT 0,
			coverage_pct  REAL NOT NULL DEFAULT 0.0,
			stale         TEXT NOT NULL DEFAULT 'ok'
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_coverage_ts ON snapshots(coverage_timestamp);
		CREATE INDEX IF NOT EXISTS idx_file_stats_snapshot ON file_stats(snapshot_id);
		CREATE INDEX IF NOT EXISTS idx_file_stats_path ON file_stats(file_path);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err = db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
		return err
	}

	var currentVersion int
	if err := db.QueryRow("SELECT version FROM schema_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion < 2 {
		// v1 → v2: suite names per snapshot
		_, alterErr := db.Exec("ALTER TABLE snapshots ADD COLUMN suites_json TEXT NOT NULL DEFAULT '[]'")
		if alterErr != nil && !strings.Contains(alterErr.Error(), "duplicate column") {
			return fmt.Errorf("migrate v1→v2: %w", alterErr)
		}
	}
	if currentVersion < schemaVersion {
		if _, err := db.Exec("UPDATE schema_version SET version = ?", schemaVersion); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Record stores snap unless a snapshot with the same fingerprint exists.
// It reports whether a new row was written.
func (s *Store) Record(ctx context.Context, snap Snapshot) (bool, error) {
	if snap.Fingerprint == "" {
		return false, fmt.Errorf("snapshot has no fingerprint")
	}
	suites, err := json.Marshal(nonNil(snap.SuiteNames))
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (fingerprint, resultset_path, coverage_timestamp, recorded_at,
			covered_lines, total_lines, coverage_pct, files_total, files_stale, suites_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, snap.Fingerprint, snap.ResultsetPath, snap.CoverageTimestamp, snap.RecordedAt.UTC().Format(time.RFC3339),
		snap.Covered, snap.Total, snap.Percentage, snap.FilesTotal, snap.FilesStale, string(suites))
	if err != nil {
		return false, fmt.Errorf("insert snapshot %s: %w", snap.Fingerprint, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO file_stats (snapshot_id, file_path, covered_lines, total_lines, coverage_pct, stale)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return false, err
	}
	defer stmt.Close()
	for _, f := range snap.Files {
		if _, err := stmt.ExecContext(ctx, id, f.Path, f.Covered, f.Total, f.Percentage, string(f.Stale)); err != nil {
			return false, fmt.Errorf("insert file stats %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit snapshot %s: %w", snap.Fingerprint, err)
	}
	return true, nil
}

// Recent returns up to limit snapshots, newest coverage first. File stats
// are not loaded.
func (s *Store) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint, resultset_path, coverage_timestamp, recorded_at,
			covered_lines, total_lines, coverage_pct, files_total, files_stale, suites_json
		FROM snapshots
		ORDER BY coverage_timestamp DESC, id DESC
		LIMIT ?
	`, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		var recordedAt, suites string
		if err := rows.Scan(&snap.ID, &snap.Fingerprint, &snap.ResultsetPath, &snap.CoverageTimestamp, &recordedAt,
			&snap.Covered, &snap.Total, &snap.Percentage, &snap.FilesTotal, &snap.FilesStale, &suites); err != nil {
			return nil, err
		}
		snap.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		if err := json.Unmarshal([]byte(suites), &snap.SuiteNames); err != nil {
			return nil, fmt.Errorf("snapshot %s: invalid suites: %w", snap.Fingerprint, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// FileTrend returns up to limit points for file, newest coverage first.
func (s *Store) FileTrend(ctx context.Context, file string, limit int) ([]FilePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.fingerprint, s.coverage_timestamp, s.recorded_at,
			f.covered_lines, f.total_lines, f.coverage_pct, f.stale
		FROM file_stats f
		JOIN snapshots s ON s.id = f.snapshot_id
		WHERE f.file_path = ?
		ORDER BY s.coverage_timestamp DESC, s.id DESC
		LIMIT ?
	`, file, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query file trend: %w", err)
	}
	defer rows.Close()

	points := []FilePoint{}
	for rows.Next() {
		var p FilePoint
		var recordedAt, stale string
		if err := rows.Scan(&p.Fingerprint, &p.CoverageTimestamp, &recordedAt,
			&p.Covered, &p.Total, &p.Percentage, &stale); err != nil {
			return nil, err
		}
		p.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		p.Stale = coverage.Verdict(stale)
		points = append(points, p)
	}
	return points, rows.Err()
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
