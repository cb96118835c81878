// Package history is the append-only store of processed clips. It keeps the
// records ordered newest first and pushes every new snapshot to live
// subscribers.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thehanda/countcam-app/pkg/models"
)

// Repository is a storage driver. Drivers only insert and list; records are
// never updated or deleted.
type Repository interface {
	// Insert persists a record whose ID and ProcessingTimestamp are already set.
	Insert(ctx context.Context, rec models.VisitorLogRecord) error
	// List returns every record by ProcessingTimestamp descending, with later
	// writes first when timestamps tie.
	List(ctx context.Context) ([]models.VisitorLogRecord, error)
	Close(ctx context.Context) error
}

var ErrInvalidRecord = errors.New("invalid visitor log record")

func validate(rec models.VisitorLogRecord) error {
	switch {
	case rec.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	case rec.VisitorCount < 0:
		return fmt.Errorf("%w: negative visitor count %d", ErrInvalidRecord, rec.VisitorCount)
	case rec.ProcessingTimestamp.IsZero():
		return fmt.Errorf("%w: missing processing timestamp", ErrInvalidRecord)
	}
	return nil
}

// Recording times keep their original offset, so they are stored as text.
func formatRecording(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func parseRecording(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil, fmt.Errorf("invalid stored recording time %q: %w", *s, err)
	}
	return &t, nil
}
