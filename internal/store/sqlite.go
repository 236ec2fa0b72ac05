package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/docbrief/internal/pipeline"
	_ "modernc.org/sqlite"
)

// ErrNotFound distinguishes a missing record from a storage-layer failure.
// Any other error returned by SQLiteStore means the storage layer itself
// misbehaved and must not be downgraded to a job-level error.
var ErrNotFound = errors.New("record not found")

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

var _ pipeline.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename
// (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *pipeline.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	docIDs, err := json.Marshal(job.DocumentIDs)
	if err != nil {
		return err
	}
	ctxJSON, err := json.Marshal(job.Context)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, status, progress, document_ids_json, context_json, error, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		string(job.Status),
		job.Progress,
		string(docIDs),
		string(ctxJSON),
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*pipeline.Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, progress, document_ids_json, context_json, error, created_at, updated_at, completed_at
		 FROM jobs WHERE id = ?`,
		id,
	)
	return scanJob(row)
}

// UpdateJob applies a partial update and returns the stored row. Only the
// run owning a job writes to it, so last-writer-wins semantics are enough.
func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, update pipeline.JobUpdate) (*pipeline.Job, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *update.Progress)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, update.CompletedAt.UTC())
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetJob(ctx, id)
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*pipeline.Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, status, progress, document_ids_json, context_json, error, created_at, updated_at, completed_at
		 FROM jobs ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*pipeline.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, job)
	}
	return ret, rows.Err()
}

// DeleteJobsBefore removes terminal jobs updated before cutoff together
// with their summaries, returning the audio URLs of deleted summaries so
// the caller can reap the blobs.
func (s *SQLiteStore) DeleteJobsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT s.audio_url FROM summaries s
		 JOIN jobs j ON j.id = s.job_id
		 WHERE j.status IN ('completed', 'error') AND j.updated_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return nil, err
	}
	audioURLs := make([]string, 0)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			rows.Close()
			return nil, err
		}
		if url != "" {
			audioURLs = append(audioURLs, url)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(
		ctx,
		`DELETE FROM summaries WHERE job_id IN (
			SELECT id FROM jobs WHERE status IN ('completed', 'error') AND updated_at < ?
		)`,
		cutoff.UTC(),
	); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status IN ('completed', 'error') AND updated_at < ?`,
		cutoff.UTC(),
	); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return audioURLs, nil
}

func (s *SQLiteStore) CreateSummary(ctx context.Context, summary *pipeline.Summary) error {
	if summary == nil {
		return fmt.Errorf("summary is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO summaries (
			id, job_id, title, description, body, audio_url, transcript_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID,
		summary.JobID,
		summary.Title,
		summary.Description,
		summary.Text,
		summary.AudioURL,
		summary.TranscriptPath,
		summary.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetSummaryByJobID(ctx context.Context, jobID string) (*pipeline.Summary, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, job_id, title, description, body, audio_url, transcript_path, created_at
		 FROM summaries WHERE job_id = ?`,
		jobID,
	)
	var item pipeline.Summary
	if err := row.Scan(
		&item.ID,
		&item.JobID,
		&item.Title,
		&item.Description,
		&item.Text,
		&item.AudioURL,
		&item.TranscriptPath,
		&item.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]*pipeline.Summary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, title, description, body, audio_url, transcript_path, created_at
		 FROM summaries ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*pipeline.Summary, 0)
	for rows.Next() {
		var item pipeline.Summary
		if err := rows.Scan(
			&item.ID,
			&item.JobID,
			&item.Title,
			&item.Description,
			&item.Text,
			&item.AudioURL,
			&item.TranscriptPath,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *pipeline.Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO documents (id, name, path, size, content_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			path=excluded.path,
			size=excluded.size,
			content_type=excluded.content_type`,
		doc.ID,
		doc.Name,
		doc.Path,
		doc.Size,
		doc.ContentType,
		doc.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*pipeline.Document, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, path, size, content_type, created_at FROM documents WHERE id = ?`,
		id,
	)
	var item pipeline.Document
	if err := row.Scan(&item.ID, &item.Name, &item.Path, &item.Size, &item.ContentType, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// GetDocuments resolves IDs in input order; IDs with no stored record are
// silently omitted.
func (s *SQLiteStore) GetDocuments(ctx context.Context, ids []string) ([]*pipeline.Document, error) {
	ret := make([]*pipeline.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.GetDocument(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ret = append(ret, doc)
	}
	return ret, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*pipeline.Document, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, path, size, content_type, created_at FROM documents ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*pipeline.Document, 0)
	for rows.Next() {
		var item pipeline.Document
		if err := rows.Scan(&item.ID, &item.Name, &item.Path, &item.Size, &item.ContentType, &item.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, &item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*pipeline.Job, error) {
	var item pipeline.Job
	var status string
	var docIDsJSON string
	var ctxJSON string
	var completedAt sql.NullTime
	if err := row.Scan(
		&item.ID,
		&status,
		&item.Progress,
		&docIDsJSON,
		&ctxJSON,
		&item.Error,
		&item.CreatedAt,
		&item.UpdatedAt,
		&completedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	item.Status = pipeline.Status(status)
	if err := json.Unmarshal([]byte(docIDsJSON), &item.DocumentIDs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ctxJSON), &item.Context); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}
	return &item, nil
}
