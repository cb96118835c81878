package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/thehanda/countcam-app/pkg/models"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TypeArchiveClip copies an accepted clip from the local spool to object storage.
const TypeArchiveClip = "archive_clip"

// ArchiveClipPayload is the payload of a TypeArchiveClip job.
type ArchiveClipPayload struct {
	RecordID    string `json:"record_id"`
	SpoolPath   string `json:"spool_path"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Extension   string `json:"extension"`
	ProcessedAt string `json:"processed_at"`
}

// Queue is a durable FIFO job queue stored in the SQLite jobs table.
type Queue struct {
	db *sql.DB
}

func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Create enqueues a new pending job.
func (q *Queue) Create(ctx context.Context, jobType string, payload any) (int64, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	res, err := q.db.ExecContext(ctx, "INSERT INTO jobs (job_type, payload) VALUES (?, ?)", jobType, string(payloadBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// NextPending retrieves the oldest pending job, or nil when the queue is empty.
func (q *Queue) NextPending(ctx context.Context) (*models.Job, error) {
	row := q.db.QueryRowContext(ctx, `SELECT id, job_type, payload, status, error, created_at, updated_at
		FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`, StatusPending)

	var job models.Job
	err := row.Scan(&job.ID, &job.JobType, &job.Payload, &job.Status, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending job: %w", err)
	}
	return &job, nil
}

// Delete removes a job from the queue.
func (q *Queue) Delete(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}
	return nil
}

// UpdateStatus updates the status and error of a job.
func (q *Queue) UpdateStatus(ctx context.Context, id int64, status string, jobErr error) error {
	var errStr sql.NullString
	if jobErr != nil {
		errStr = sql.NullString{String: jobErr.Error(), Valid: true}
	}
	if _, err := q.db.ExecContext(ctx, "UPDATE jobs SET status = ?, error = ? WHERE id = ?", status, errStr, id); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// Counts returns the number of jobs per status.
func (q *Queue) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
