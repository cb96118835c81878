package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB is the local SQLite database holding users, the job queue and, with the
// default store driver, the visitor log history.
type DB struct {
	sql *sql.DB
	log *zap.Logger
}

var migrations = []struct {
	name string
	stmt string
}{
	{"users table", `CREATE TABLE IF NOT EXISTS users (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"username" TEXT NOT NULL UNIQUE,
		"password_hash" TEXT NOT NULL,
		"is_admin" INTEGER NOT NULL DEFAULT 0
	);`},
	{"jobs table", `CREATE TABLE IF NOT EXISTS jobs (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"job_type" TEXT NOT NULL,
		"payload" TEXT,
		"status" TEXT NOT NULL DEFAULT 'pending',
		"error" TEXT,
		"created_at" DATETIME DEFAULT CURRENT_TIMESTAMP,
		"updated_at" DATETIME DEFAULT CURRENT_TIMESTAMP
	);`},
	{"jobs updated_at trigger", `CREATE TRIGGER IF NOT EXISTS update_jobs_updated_at
	AFTER UPDATE ON jobs
	FOR EACH ROW
	BEGIN
		UPDATE jobs SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
	END;`},
	{"visitor_logs table", `CREATE TABLE IF NOT EXISTS visitor_logs (
		"id" TEXT NOT NULL PRIMARY KEY,
		"visitor_count" INTEGER NOT NULL CHECK ("visitor_count" >= 0),
		"counted_direction" TEXT NOT NULL,
		"direction_mismatch" INTEGER NOT NULL DEFAULT 0,
		"video_file_name" TEXT NOT NULL,
		"recording_start" TEXT,
		"processing_timestamp" TEXT NOT NULL,
		"upload_source" TEXT NOT NULL,
		"location_name" TEXT NOT NULL
	);`},
	{"visitor_logs ordering index", `CREATE INDEX IF NOT EXISTS idx_visitor_logs_processing
		ON visitor_logs ("processing_timestamp" DESC);`},
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string, log *zap.Logger) (*DB, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{sql: conn, log: log}
	if err := d.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info("database ready", zap.String("path", path))
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := d.sql.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", m.name, err)
		}
	}
	return nil
}

// SQL exposes the connection pool to the job queue and the SQLite history driver.
func (d *DB) SQL() *sql.DB {
	return d.sql
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.sql.Close()
}
