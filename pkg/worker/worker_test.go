package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/database"
	"github.com/thehanda/countcam-app/pkg/jobs"
)

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
	data [][]byte
	err  error
}

func (f *fakeArchiver) Upload(_ context.Context, key string, payload []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	f.data = append(f.data, payload)
	return "s3://test/" + key, nil
}

func (f *fakeArchiver) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func setupTestQueue(t *testing.T) (*jobs.Queue, *database.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "worker.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return jobs.NewQueue(db.SQL()), db
}

func jobStatus(t *testing.T, db *database.DB, id int64) (string, bool) {
	t.Helper()
	var status string
	err := db.SQL().QueryRow("SELECT status FROM jobs WHERE id = ?", id).Scan(&status)
	if err != nil {
		return "", false
	}
	return status, true
}

func spool(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("clip"), 0644))
	return path
}

func TestArchiveClipJob(t *testing.T) {
	q, db := setupTestQueue(t)
	ctx := context.Background()
	arch := &fakeArchiver{}
	w := New(q, arch, zap.NewNop())

	path := spool(t, "rec-1.mp4")
	id, err := q.Create(ctx, jobs.TypeArchiveClip, jobs.ArchiveClipPayload{
		RecordID:    "rec-1",
		SpoolPath:   path,
		ContentType: "video/mp4",
		Extension:   ".mp4",
		ProcessedAt: "2024-07-12T14:30:00.123Z",
	})
	require.NoError(t, err)

	assert.True(t, w.runOnce(ctx))
	assert.Equal(t, []string{"clips/2024/07/12/rec-1.mp4"}, arch.uploaded())

	_, exists := jobStatus(t, db, id)
	assert.False(t, exists, "completed jobs are removed")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "spooled clip is removed after upload")

	assert.False(t, w.runOnce(ctx), "queue is empty")
}

func TestArchiveClipFailureKeepsJob(t *testing.T) {
	q, db := setupTestQueue(t)
	ctx := context.Background()
	w := New(q, &fakeArchiver{err: errors.New("bucket unavailable")}, zap.NewNop())

	path := spool(t, "rec-2.mp4")
	id, err := q.Create(ctx, jobs.TypeArchiveClip, jobs.ArchiveClipPayload{
		RecordID:    "rec-2",
		SpoolPath:   path,
		Extension:   ".mp4",
		ProcessedAt: "2024-07-12T14:30:00Z",
	})
	require.NoError(t, err)

	assert.True(t, w.runOnce(ctx))

	status, exists := jobStatus(t, db, id)
	require.True(t, exists)
	assert.Equal(t, jobs.StatusFailed, status)
	_, err = os.Stat(path)
	assert.NoError(t, err, "clip stays spooled for a later retry")
}

func TestProcessJobFailures(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name     string
		archiver Archiver
		jobType  string
		payload  any
	}{
		{"unknown type", &fakeArchiver{}, "unknown_job", nil},
		{"archival disabled", nil, jobs.TypeArchiveClip, jobs.ArchiveClipPayload{RecordID: "a", SpoolPath: "/x", ProcessedAt: "2024-07-12T14:30:00Z"}},
		{"invalid payload", &fakeArchiver{}, jobs.TypeArchiveClip, "invalid payload"},
		{"missing fields", &fakeArchiver{}, jobs.TypeArchiveClip, jobs.ArchiveClipPayload{RecordID: "a"}},
		{"bad timestamp", &fakeArchiver{}, jobs.TypeArchiveClip, jobs.ArchiveClipPayload{RecordID: "a", SpoolPath: "/x", ProcessedAt: "yesterday"}},
		{"missing spool file", &fakeArchiver{}, jobs.TypeArchiveClip, jobs.ArchiveClipPayload{RecordID: "a", SpoolPath: "/does/not/exist.mp4", ProcessedAt: "2024-07-12T14:30:00Z"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			q, db := setupTestQueue(t)
			w := New(q, tc.archiver, zap.NewNop())

			id, err := q.Create(ctx, tc.jobType, tc.payload)
			require.NoError(t, err)
			assert.True(t, w.runOnce(ctx))

			status, exists := jobStatus(t, db, id)
			require.True(t, exists)
			assert.Equal(t, jobs.StatusFailed, status)
		})
	}
}

func TestStartStopsWithContext(t *testing.T) {
	q, _ := setupTestQueue(t)
	arch := &fakeArchiver{}
	w := New(q, arch, zap.NewNop())
	w.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	_, err := q.Create(context.Background(), jobs.TypeArchiveClip, jobs.ArchiveClipPayload{
		RecordID:    "rec-3",
		SpoolPath:   spool(t, "rec-3.mp4"),
		Extension:   ".mp4",
		ProcessedAt: "2024-07-12T14:30:00Z",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(arch.uploaded()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
