package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/database"
	"github.com/thehanda/countcam-app/pkg/models"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRepository(db.SQL())
}

func record(count int, processed time.Time, recording *time.Time) models.VisitorLogRecord {
	return models.VisitorLogRecord{
		ID:                     uuid.NewString(),
		VisitorCount:           count,
		CountedDirection:       models.DirectionEntering,
		VideoFileName:          "clip.mp4",
		RecordingStartDateTime: recording,
		ProcessingTimestamp:    processed,
		UploadSource:           models.SourceUI,
		LocationName:           "North Gate",
	}
}

// exerciseRepository checks the contract every driver must satisfy.
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	base := time.Date(2024, 7, 12, 5, 30, 0, 0, time.UTC)
	jst := time.FixedZone("JST", 9*60*60)
	recorded := time.Date(2024, 7, 12, 14, 30, 0, 0, jst)

	older := record(3, base, &recorded)
	tieFirst := record(5, base.Add(time.Minute), nil)
	tieSecond := record(0, base.Add(time.Minute), nil)
	tieSecond.CountedDirection = models.DirectionBoth
	tieSecond.DirectionMismatch = true
	tieSecond.UploadSource = models.SourceAPI

	for _, rec := range []models.VisitorLogRecord{older, tieFirst, tieSecond} {
		require.NoError(t, repo.Insert(ctx, rec))
	}

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, tieSecond.ID, records[0].ID, "later write wins a timestamp tie")
	assert.Equal(t, tieFirst.ID, records[1].ID)
	assert.Equal(t, older.ID, records[2].ID)

	got := records[2]
	assert.Equal(t, 3, got.VisitorCount)
	assert.Equal(t, models.DirectionEntering, got.CountedDirection)
	assert.Equal(t, "clip.mp4", got.VideoFileName)
	assert.Equal(t, models.SourceUI, got.UploadSource)
	assert.Equal(t, "North Gate", got.LocationName)
	assert.True(t, base.Equal(got.ProcessingTimestamp))
	require.NotNil(t, got.RecordingStartDateTime)
	assert.Equal(t, "2024-07-12T14:30:00+09:00", got.RecordingStartDateTime.Format(time.RFC3339))

	assert.True(t, records[0].DirectionMismatch)
	assert.Equal(t, models.DirectionBoth, records[0].CountedDirection)
	assert.Nil(t, records[0].RecordingStartDateTime)

	bad := record(-1, base, nil)
	assert.ErrorIs(t, repo.Insert(ctx, bad), ErrInvalidRecord)
}

func TestSQLiteRepository(t *testing.T) {
	repo := newSQLiteRepo(t)

	records, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	exerciseRepository(t, repo)
}

func TestMongoRepository(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx := context.Background()
	dbName := "countcam_test_" + uuid.NewString()[:8]
	repo, err := NewMongoRepository(ctx, uri, dbName)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.client.Database(dbName).Drop(ctx)
		_ = repo.Close(ctx)
	})
	exerciseRepository(t, repo)
}

func TestPostgresRepository(t *testing.T) {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL not set")
	}
	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, url)
	require.NoError(t, err)
	_, err = repo.pool.Exec(ctx, "TRUNCATE visitor_logs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(ctx) })
	exerciseRepository(t, repo)
}
