// Package sqlite keeps a history of enrichment runs in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/flood-report-etl/internal/domain"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunStore records run summaries. It implements pipeline.HistoryRecorder.
type RunStore struct {
	db *sql.DB
}

// Open opens or creates the history database at path and applies the schema.
// ":memory:" gives a private in-memory store.
func Open(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping run history: %w", err)
	}

	s := &RunStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate run history: %w", err)
	}
	return s, nil
}

func (s *RunStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			job_id TEXT,
			status TEXT NOT NULL,
			report_path TEXT NOT NULL,
			source_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			depth_records INTEGER NOT NULL,
			flood_records INTEGER NOT NULL,
			depth_matched INTEGER NOT NULL,
			flood_matched INTEGER NOT NULL,
			class_matched INTEGER NOT NULL,
			error TEXT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			summary BLOB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_runs_job_id ON runs(job_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores a summary, replacing any earlier record with the same run ID.
func (s *RunStore) Record(ctx context.Context, sum domain.Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			run_id, job_id, status, report_path, source_path, output_path,
			depth_records, flood_records, depth_matched, flood_matched, class_matched,
			error, started_at, finished_at, summary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, nullString(sum.JobID), sum.Status, sum.ReportPath, sum.SourcePath, sum.OutputPath,
		sum.DepthRecords, sum.FloodRecords, sum.DepthMatched, sum.FloodMatched, sum.ClassMatched,
		nullString(sum.Error), sum.StartedAt.UTC().Format(time.RFC3339Nano), sum.FinishedAt.UTC().Format(time.RFC3339Nano), data,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", sum.RunID, err)
	}
	return nil
}

// Get returns the summary of one run.
func (s *RunStore) Get(ctx context.Context, runID string) (domain.Summary, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM runs WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Summary{}, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return domain.Summary{}, fmt.Errorf("query run %s: %w", runID, err)
	}
	return decodeSummary(data)
}

// List returns up to limit summaries, most recent first. A non-empty jobID
// restricts the result to runs of that job.
func (s *RunStore) List(ctx context.Context, jobID string, limit int) ([]domain.Summary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT summary FROM runs`
	args := []any{}
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY started_at DESC, run_id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []domain.Summary{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum, err := decodeSummary(data)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *RunStore) Close() error {
	return s.db.Close()
}

func decodeSummary(data []byte) (domain.Summary, error) {
	var sum domain.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return domain.Summary{}, fmt.Errorf("decode summary: %w", err)
	}
	return sum, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
