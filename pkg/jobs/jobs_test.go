package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/database"
	"github.com/thehanda/countcam-app/pkg/models"
)

func setupTestQueue(t *testing.T) (*Queue, *database.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "jobs.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewQueue(db.SQL()), db
}

func TestCreateJob(t *testing.T) {
	q, db := setupTestQueue(t)
	ctx := context.Background()

	payload := ArchiveClipPayload{RecordID: "rec-1", SpoolPath: "/spool/rec-1.mp4", Extension: ".mp4"}
	id, err := q.Create(ctx, TypeArchiveClip, payload)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	var job models.Job
	err = db.SQL().QueryRow("SELECT id, job_type, payload, status FROM jobs WHERE id = ?", id).Scan(&job.ID, &job.JobType, &job.Payload, &job.Status)
	require.NoError(t, err)
	assert.Equal(t, TypeArchiveClip, job.JobType)
	assert.Equal(t, StatusPending, job.Status)

	var returned ArchiveClipPayload
	require.NoError(t, json.Unmarshal([]byte(job.Payload), &returned))
	assert.Equal(t, payload, returned)
}

func TestNextPendingIsFIFO(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	job, err := q.NextPending(ctx)
	assert.NoError(t, err)
	assert.Nil(t, job)

	first, err := q.Create(ctx, TypeArchiveClip, ArchiveClipPayload{RecordID: "a"})
	require.NoError(t, err)
	_, err = q.Create(ctx, TypeArchiveClip, ArchiveClipPayload{RecordID: "b"})
	require.NoError(t, err)

	job, err = q.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, first, job.ID)

	require.NoError(t, q.UpdateStatus(ctx, first, StatusRunning, nil))
	job, err = q.NextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.NotEqual(t, first, job.ID)
}

func TestUpdateStatusAndCounts(t *testing.T) {
	q, db := setupTestQueue(t)
	ctx := context.Background()

	id, err := q.Create(ctx, TypeArchiveClip, nil)
	require.NoError(t, err)
	_, err = q.Create(ctx, TypeArchiveClip, nil)
	require.NoError(t, err)

	require.NoError(t, q.UpdateStatus(ctx, id, StatusFailed, errors.New("bucket missing")))

	var status, jobErr string
	require.NoError(t, db.SQL().QueryRow("SELECT status, error FROM jobs WHERE id = ?", id).Scan(&status, &jobErr))
	assert.Equal(t, StatusFailed, status)
	assert.Equal(t, "bucket missing", jobErr)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{StatusFailed: 1, StatusPending: 1}, counts)
}

func TestDeleteJob(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	id, err := q.Create(ctx, TypeArchiveClip, nil)
	require.NoError(t, err)
	require.NoError(t, q.Delete(ctx, id))

	job, err := q.NextPending(ctx)
	assert.NoError(t, err)
	assert.Nil(t, job)
}
