package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS download_history (
	job_id        TEXT    NOT NULL,
	idx           INTEGER NOT NULL,
	file_name     TEXT    NOT NULL,
	route         TEXT    NOT NULL,
	document_type TEXT    NOT NULL,
	row_count     INTEGER NOT NULL,
	created_at    TEXT    NOT NULL,
	PRIMARY KEY (job_id, idx)
)`

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save appends rec to the job's history and returns its index.
func (s *SQLiteStore) Save(ctx context.Context, jobID string, rec Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(idx) + 1, 0) FROM download_history WHERE job_id = ?`, jobID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate history index: %w", err)
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO download_history (job_id, idx, file_name, route, document_type, row_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		jobID, next, rec.FileName, rec.Route, rec.DocumentType, rec.Rows, created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save history record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit history record: %w", err)
	}
	return next, nil
}

// List returns the job's records in index order.
func (s *SQLiteStore) List(ctx context.Context, jobID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, file_name, route, document_type, row_count, created_at
		 FROM download_history WHERE job_id = ? ORDER BY idx`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec := Record{JobID: jobID}
		var created string
		if err := rows.Scan(&rec.Index, &rec.FileName, &rec.Route, &rec.DocumentType, &rec.Rows, &created); err != nil {
			return nil, fmt.Errorf("failed to read history row: %w", err)
		}
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("invalid history timestamp %q: %w", created, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// Delete removes one record.
func (s *SQLiteStore) Delete(ctx context.Context, jobID string, index int) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM download_history WHERE job_id = ? AND idx = ?`, jobID, index,
	)
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
