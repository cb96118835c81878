package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thehanda/countcam-app/pkg/models"
)

// PostgresRepository stores records in a PostgreSQL table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to connString and creates the schema if needed.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS visitor_logs (
			seq BIGSERIAL UNIQUE,
			id TEXT PRIMARY KEY,
			visitor_count INT NOT NULL CHECK (visitor_count >= 0),
			counted_direction TEXT NOT NULL,
			direction_mismatch BOOLEAN NOT NULL DEFAULT FALSE,
			video_file_name TEXT NOT NULL,
			recording_start TEXT,
			processing_timestamp TIMESTAMPTZ NOT NULL,
			upload_source TEXT NOT NULL,
			location_name TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS visitor_logs_processing_idx
			ON visitor_logs (processing_timestamp DESC, seq DESC);
	`)
	return err
}

func (r *PostgresRepository) Insert(ctx context.Context, rec models.VisitorLogRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO visitor_logs (id, visitor_count, counted_direction, direction_mismatch,
			video_file_name, recording_start, processing_timestamp, upload_source, location_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.VisitorCount, string(rec.CountedDirection), rec.DirectionMismatch, rec.VideoFileName,
		formatRecording(rec.RecordingStartDateTime), rec.ProcessingTimestamp.UTC(),
		string(rec.UploadSource), rec.LocationName)
	if err != nil {
		return fmt.Errorf("failed to insert visitor log: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.VisitorLogRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, visitor_count, counted_direction, direction_mismatch, video_file_name,
			recording_start, processing_timestamp, upload_source, location_name
		FROM visitor_logs ORDER BY processing_timestamp DESC, seq DESC
	`)
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
			recording *string
			processed time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.VisitorCount, &direction, &rec.DirectionMismatch,
			&rec.VideoFileName, &recording, &processed, &source, &rec.LocationName); err != nil {
			return nil, fmt.Errorf("failed to scan visitor log: %w", err)
		}
		rec.CountedDirection = models.Direction(direction)
		rec.UploadSource = models.UploadSource(source)
		rec.ProcessingTimestamp = processed.UTC()
		if rec.RecordingStartDateTime, err = parseRecording(recording); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during visitor log iteration: %w", err)
	}
	return records, nil
}

func (r *PostgresRepository) Close(context.Context) error {
	r.pool.Close()
	return nil
}
