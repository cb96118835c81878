package models

import (
	"database/sql"
	"strings"
	"time"
)

// Direction is the movement category the model is asked to count.
type Direction string

const (
	DirectionEntering Direction = "entering"
	DirectionExiting  Direction = "exiting"
	DirectionBoth     Direction = "both"
)

// Directions lists every accepted direction in display order.
var Directions = []Direction{DirectionEntering, DirectionExiting, DirectionBoth}

// ParseDirection normalizes s and reports whether it names a known direction.
func ParseDirection(s string) (Direction, bool) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Directions {
		if d == known {
			return d, true
		}
	}
	return "", false
}

// UploadSource records which ingestion path produced a record.
type UploadSource string

const (
	SourceUI  UploadSource = "ui"
	SourceAPI UploadSource = "api"
)

// ParseUploadSource normalizes s; an empty value falls back to SourceAPI.
func ParseUploadSource(s string) (UploadSource, bool) {
	switch UploadSource(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceAPI:
		return SourceAPI, true
	case SourceUI:
		return SourceUI, true
	}
	return "", false
}

// DefaultLocationName is stored when the uploader leaves the location blank.
const DefaultLocationName = "N/A"

// VisitorLogRecord is one processed video. Records are immutable once written.
type VisitorLogRecord struct {
	ID                     string       `json:"id"`
	VisitorCount           int          `json:"visitorCount"`
	CountedDirection       Direction    `json:"countedDirection"`
	DirectionMismatch      bool         `json:"directionMismatch"`
	VideoFileName          string       `json:"videoFileName"`
	RecordingStartDateTime *time.Time   `json:"recordingStartDateTime"`
	ProcessingTimestamp    time.Time    `json:"processingTimestamp"`
	UploadSource           UploadSource `json:"uploadSource"`
	LocationName           string       `json:"locationName"`
}

// FilterBySource returns the records produced by src, keeping their order.
// An empty src returns records unchanged.
func FilterBySource(records []VisitorLogRecord, src UploadSource) []VisitorLogRecord {
	if src == "" {
		return records
	}
	filtered := make([]VisitorLogRecord, 0, len(records))
	for _, r := range records {
		if r.UploadSource == src {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Job represents a job in the database job queue.
type Job struct {
	ID        int64
	JobType   string
	Payload   string
	Status    string
	Error     sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User represents a user account in the database.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}
