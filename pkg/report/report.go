// Package report renders visitor log snapshots as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/thehanda/countcam-app/pkg/models"
)

// Mode selects the export variant.
type Mode string

const (
	ModeRaw    Mode = "raw"
	ModeHourly Mode = "hourly"
)

// ParseMode defaults to ModeRaw.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRaw:
		return ModeRaw, nil
	case ModeHourly:
		return ModeHourly, nil
	}
	return "", fmt.Errorf("unknown export mode %q", s)
}

var rawHeader = []string{
	"ID", "Processing Timestamp", "Recording Start", "Video File", "Location",
	"Direction", "Visitor Count", "Direction Mismatch", "Upload Source",
}

// WriteRawCSV writes one row per record in the order given.
func WriteRawCSV(w io.Writer, records []models.VisitorLogRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rawHeader); err != nil {
		return err
	}
	for _, r := range records {
		recording := ""
		if r.RecordingStartDateTime != nil {
			recording = r.RecordingStartDateTime.Format(time.RFC3339)
		}
		row := []string{
			r.ID,
			r.ProcessingTimestamp.UTC().Format(time.RFC3339Nano),
			recording,
			r.VideoFileName,
			r.LocationName,
			string(r.CountedDirection),
			strconv.Itoa(r.VisitorCount),
			strconv.FormatBool(r.DirectionMismatch),
			string(r.UploadSource),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type bucketKey struct {
	date string
	hour int
}

// HourlyBucket is the visitor total for one hour of one day.
type HourlyBucket struct {
	Date     string
	Hour     int
	Entering int
	Exiting  int
	Both     int
}

func (b HourlyBucket) Total() int {
	return b.Entering + b.Exiting + b.Both
}

// Hourly groups records by the local date and hour of their recording time.
// Records without a recording time are left out. Buckets are sorted by date,
// then hour.
func Hourly(records []models.VisitorLogRecord, loc *time.Location) []HourlyBucket {
	buckets := make(map[bucketKey]*HourlyBucket)
	for _, r := range records {
		if r.RecordingStartDateTime == nil {
			continue
		}
		t := r.RecordingStartDateTime.In(loc)
		key := bucketKey{date: t.Format("2006-01-02"), hour: t.Hour()}
		b, ok := buckets[key]
		if !ok {
			b = &HourlyBucket{Date: key.date, Hour: key.hour}
			buckets[key] = b
		}
		switch r.CountedDirection {
		case models.DirectionEntering:
			b.Entering += r.VisitorCount
		case models.DirectionExiting:
			b.Exiting += r.VisitorCount
		default:
			b.Both += r.VisitorCount
		}
	}

	out := make([]HourlyBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

// WriteHourlyCSV writes the hourly aggregate of records in loc.
func WriteHourlyCSV(w io.Writer, records []models.VisitorLogRecord, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Hour", "Entering", "Exiting", "Both", "Total"}); err != nil {
		return err
	}
	for _, b := range Hourly(records, loc) {
		row := []string{
			b.Date,
			fmt.Sprintf("%02d:00", b.Hour),
			strconv.Itoa(b.Entering),
			strconv.Itoa(b.Exiting),
			strconv.Itoa(b.Both),
			strconv.Itoa(b.Total()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write renders records in the given mode.
func Write(w io.Writer, mode Mode, records []models.VisitorLogRecord, loc *time.Location) error {
	if mode == ModeHourly {
		return WriteHourlyCSV(w, records, loc)
	}
	return WriteRawCSV(w, records)
}

// FileName is the suggested download name for an export.
func FileName(mode Mode, now time.Time) string {
	return fmt.Sprintf("visitor_log_%s_%s.csv", mode, now.Format("20060102_150405"))
}
