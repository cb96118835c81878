package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thehanda/countcam-app/pkg/models"
)

// Fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository stores records in the visitor_logs table of the local database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec models.VisitorLogRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO visitor_logs
		(id, visitor_count, counted_direction, direction_mismatch, video_file_name,
		 recording_start, processing_timestamp, upload_source, location_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.VisitorCount, string(rec.CountedDirection), rec.DirectionMismatch, rec.VideoFileName,
		formatRecording(rec.RecordingStartDateTime), rec.ProcessingTimestamp.UTC().Format(sqliteTimeLayout),
		string(rec.UploadSource), rec.LocationName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert visitor log: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.VisitorLogRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, visitor_count, counted_direction, direction_mismatch,
		video_file_name, recording_start, processing_timestamp, upload_source, location_name
		FROM visitor_logs ORDER BY processing_timestamp DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query visitor logs: %w", err)
	}
	defer rows.Close()

	records := []models.VisitorLogRecord{}
	for rows.Next() {
		var (
			rec       models.VisitorLogRecord
			direction string
			source    string
			recording sql.NullString
			processed string
		)
		if err := rows.Scan(&rec.ID, &rec.VisitorCount, &direction, &rec.DirectionMismatch,
			&rec.VideoFileName, &recording, &processed, &source, &rec.LocationName); err != nil {
			return nil, fmt.Errorf("failed to scan visitor log: %w", err)
		}
		rec.CountedDirection = models.Direction(direction)
		rec.UploadSource = models.UploadSource(source)
		if recording.Valid {
			if rec.RecordingStartDateTime, err = parseRecording(&recording.String); err != nil {
				return nil, err
			}
		}
		if rec.ProcessingTimestamp, err = time.Parse(sqliteTimeLayout, processed); err != nil {
			return nil, fmt.Errorf("invalid stored processing time %q: %w", processed, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during visitor log iteration: %w", err)
	}
	return records, nil
}

// Close is a no-op; the connection belongs to the local database.
func (r *SQLiteRepository) Close(context.Context) error {
	return nil
}
