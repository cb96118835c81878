package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/archive"
	"github.com/thehanda/countcam-app/pkg/jobs"
	"github.com/thehanda/countcam-app/pkg/models"
)

const defaultPollInterval = 10 * time.Second

// Queue is the part of jobs.Queue the worker drives.
type Queue interface {
	NextPending(ctx context.Context) (*models.Job, error)
	UpdateStatus(ctx context.Context, id int64, status string, jobErr error) error
	Delete(ctx context.Context, id int64) error
}

// Archiver stores a clip in object storage.
type Archiver interface {
	Upload(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}

type Worker struct {
	queue        Queue
	archiver     Archiver
	log          *zap.Logger
	pollInterval time.Duration
}

// New builds a worker. archiver may be nil when archival is disabled; any
// archive jobs left in the queue then fail.
func New(queue Queue, archiver Archiver, log *zap.Logger) *Worker {
	return &Worker{queue: queue, archiver: archiver, log: log, pollInterval: defaultPollInterval}
}

// Start processes jobs one at a time until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("starting job worker")
	for {
		if !w.runOnce(ctx) {
			select {
			case <-ctx.Done():
				w.log.Info("job worker stopped")
				return
			case <-time.After(w.pollInterval):
			}
		} else if ctx.Err() != nil {
			w.log.Info("job worker stopped")
			return
		}
	}
}

// runOnce handles the oldest pending job and reports whether there was one.
func (w *Worker) runOnce(ctx context.Context) bool {
	job, err := w.queue.NextPending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("error getting pending job", zap.Error(err))
		}
		return false
	}
	if job == nil {
		return false
	}
	w.processJob(ctx, job)
	return true
}

func (w *Worker) processJob(ctx context.Context, job *models.Job) {
	log := w.log.With(zap.Int64("job", job.ID), zap.String("type", job.JobType))
	log.Info("processing job")
	if err := w.queue.UpdateStatus(ctx, job.ID, jobs.StatusRunning, nil); err != nil {
		log.Error("error updating job status to running", zap.Error(err))
		return
	}

	var jobErr error
	switch job.JobType {
	case jobs.TypeArchiveClip:
		jobErr = w.archiveClip(ctx, job.Payload)
	default:
		jobErr = fmt.Errorf("unknown job type: %s", job.JobType)
	}

	if jobErr != nil {
		log.Error("job failed", zap.Error(jobErr))
		if err := w.queue.UpdateStatus(ctx, job.ID, jobs.StatusFailed, jobErr); err != nil {
			log.Error("error updating job status after failure", zap.Error(err))
		}
		return
	}

	log.Info("job completed")
	if err := w.queue.Delete(ctx, job.ID); err != nil {
		log.Error("error deleting job", zap.Error(err))
	}
}

func (w *Worker) archiveClip(ctx context.Context, raw string) error {
	if w.archiver == nil {
		return errors.New("clip archival is not configured")
	}

	var payload jobs.ArchiveClipPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("invalid archive payload: %w", err)
	}
	if payload.RecordID == "" || payload.SpoolPath == "" {
		return errors.New("invalid archive payload: record_id and spool_path are required")
	}

	processedAt, err := time.Parse(time.RFC3339Nano, payload.ProcessedAt)
	if err != nil {
		return fmt.Errorf("invalid archive payload: processed_at: %w", err)
	}

	data, err := os.ReadFile(payload.SpoolPath)
	if err != nil {
		return fmt.Errorf("read spooled clip: %w", err)
	}

	key := archive.ObjectKey(payload.RecordID, payload.Extension, processedAt)
	location, err := w.archiver.Upload(ctx, key, data, payload.ContentType)
	if err != nil {
		return err
	}
	w.log.Info("clip archived", zap.String("id", payload.RecordID), zap.String("location", location))

	if err := os.Remove(payload.SpoolPath); err != nil && !os.IsNotExist(err) {
		w.log.Warn("failed to remove spooled clip", zap.String("path", payload.SpoolPath), zap.Error(err))
	}
	return nil
}
