// Package history records completed downloads per conversion job.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned when a job has no record at an index.
var ErrRecordNotFound = errors.New("history record not found")

// Record describes one download.
type Record struct {
	// Index is assigned by Save; indices per job start at 0.
	Index        int       `json:"index"`
	JobID        string    `json:"job_id"`
	FileName     string    `json:"file_name"`
	Route        string    `json:"route"`
	DocumentType string    `json:"document_type"`
	Rows         int       `json:"rows"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists download records keyed by job id and record index.
//
//go:generate mockgen -destination=mocks/mock_history.go -source=history.go
type Store interface {
	Save(ctx context.Context, jobID string, rec Record) (int, error)
	List(ctx context.Context, jobID string) ([]Record, error)
	Delete(ctx context.Context, jobID string, index int) error
}
